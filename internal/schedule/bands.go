package schedule

import (
	"fmt"

	"github.com/legalconnect/scheduler/internal/model"
)

// Display grouping for the booking screen. Derived views only; the
// TimeSlot list from ComputeAvailability stays authoritative.

type TimePeriod string

const (
	PeriodMorning TimePeriod = "Morning"
	PeriodNoon    TimePeriod = "Noon"
	PeriodEvening TimePeriod = "Evening"
)

// PeriodOf maps a slot time to its display period.
func PeriodOf(t string) TimePeriod {
	min, err := ClockMinutes(t)
	if err != nil {
		return PeriodMorning
	}
	switch h := min / 60; {
	case h < 12:
		return PeriodMorning
	case h < 17:
		return PeriodNoon
	default:
		return PeriodEvening
	}
}

// FilterByPeriod keeps the slots belonging to one display period.
func FilterByPeriod(slots []model.TimeSlot, period TimePeriod) []model.TimeSlot {
	out := make([]model.TimeSlot, 0, len(slots))
	for _, s := range slots {
		if PeriodOf(s.Time) == period {
			out = append(out, s)
		}
	}
	return out
}

// GroupByBand buckets slots into the rendering bands: wide blocks
// through the afternoon, two-hour blocks in the evening, spanning the
// business-day window. Keys look like "7-10".
func GroupByBand(slots []model.TimeSlot) map[string][]model.TimeSlot {
	grouped := make(map[string][]model.TimeSlot)
	for _, s := range slots {
		min, err := ClockMinutes(s.Time)
		if err != nil {
			continue
		}

		var start, end int
		switch h := min / 60; {
		case h < 10:
			start, end = 7, 10
		case h < 13:
			start, end = 10, 13
		case h < 17:
			start, end = 13, 17
		case h < 19:
			start, end = 17, 19
		case h < 21:
			start, end = 19, 21
		default:
			start, end = 21, 22
		}

		key := fmt.Sprintf("%d-%d", start, end)
		grouped[key] = append(grouped[key], s)
	}
	return grouped
}
