// Package schedule holds the pure slot math behind the booking screen:
// grid generation, availability classification and the multi-slot
// selection rules. Nothing here touches the network or the wall clock
// directly; time comes in as data.
package schedule

import (
	"fmt"
	"time"

	"github.com/legalconnect/scheduler/internal/model"
	"github.com/legalconnect/scheduler/pkg/clock"
)

const (
	// Business-day window for offerable slots.
	DayStart = "07:00"
	DayEnd   = "22:00"

	// SlotStep is the grid resolution.
	SlotStep = 30 * time.Minute
)

// GenerateGrid returns the ordered "HH:mm" progression start, start+step,
// ..., end-step. The window must be a whole multiple of step. Pure and
// deterministic: identical inputs always yield the identical sequence.
func GenerateGrid(start, end string, step time.Duration) ([]string, error) {
	if step < time.Minute || step%time.Minute != 0 {
		return nil, fmt.Errorf("step %v is not a whole number of minutes", step)
	}
	startMin, err := ClockMinutes(start)
	if err != nil {
		return nil, err
	}
	endMin, err := ClockMinutes(end)
	if err != nil {
		return nil, err
	}
	if endMin <= startMin {
		return nil, fmt.Errorf("window %s-%s is empty", start, end)
	}
	stepMin := int(step / time.Minute)
	if (endMin-startMin)%stepMin != 0 {
		return nil, fmt.Errorf("window %s-%s is not a multiple of %v", start, end, step)
	}

	grid := make([]string, 0, (endMin-startMin)/stepMin)
	for t := startMin; t < endMin; t += stepMin {
		grid = append(grid, FormatMinutes(t))
	}
	return grid, nil
}

// StandardGrid is the canonical business-day grid (07:00 .. 21:30).
func StandardGrid() []string {
	grid, err := GenerateGrid(DayStart, DayEnd, SlotStep)
	if err != nil {
		panic(err) // constants are known-valid
	}
	return grid
}

// ComputeAvailability classifies every grid point for one provider day.
// A point is unavailable when it falls inside a busy interval (half-open
// [start, end)), when a non-terminal appointment occupies it
// (duration-aware: a 60-minute booking blocks both half-hour points), or
// when the day is today and the point is at or before the clock's now.
func ComputeAvailability(grid []string, busy []model.BusyInterval, appts []model.Appointment, date string, clk clock.Clock) []model.TimeSlot {
	now := clk.Now()
	nowMin := now.Hour()*60 + now.Minute()
	today := SameDay(date, now)
	elapsedDay := BeforeDay(date, now)

	slots := make([]model.TimeSlot, 0, len(grid))
	for _, t := range grid {
		tMin, err := ClockMinutes(t)
		if err != nil {
			continue
		}

		slot := model.TimeSlot{Time: FormatMinutes(tMin)}
		slot.Past = elapsedDay || (today && tMin <= nowMin)
		slot.Busy = inBusyInterval(tMin, busy)
		slot.Booked = occupiedByAppointment(tMin, date, appts)
		slot.Available = !slot.Past && !slot.Busy && !slot.Booked
		slots = append(slots, slot)
	}
	return slots
}

func inBusyInterval(tMin int, busy []model.BusyInterval) bool {
	for _, iv := range busy {
		start, err := ClockMinutes(iv.Start)
		if err != nil {
			continue
		}
		end, err := ClockMinutes(iv.End)
		if err != nil {
			continue
		}
		if tMin >= start && tMin < end {
			return true
		}
	}
	return false
}

func occupiedByAppointment(tMin int, date string, appts []model.Appointment) bool {
	for _, apt := range appts {
		if apt.Date != date || !apt.Status.Blocking() {
			continue
		}
		start, err := ClockMinutes(apt.Time)
		if err != nil {
			continue
		}
		dur := apt.DurationMinutes
		if dur <= 0 {
			dur = int(SlotStep / time.Minute)
		}
		if tMin >= start && tMin < start+dur {
			return true
		}
	}
	return false
}
