package schedule

import (
	"sort"
	"time"
)

// MaxSelectedSlots caps a single request at one contiguous hour.
const MaxSelectedSlots = 2

// Selection tracks the user's current multi-slot pick. At most two
// contiguous half-hour slots may be held at once; a click on anything
// else resets the selection to that click rather than silently producing
// a booking over disjoint ranges.
type Selection struct {
	slots []string
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{}
}

// Toggle applies one click:
//   - clicking a held slot releases it;
//   - clicking with nothing held selects the slot;
//   - clicking the slot exactly 30 minutes before or after a single held
//     slot extends the selection to a contiguous hour;
//   - anything else (non-adjacent, or already at the cap) resets the
//     selection to the clicked slot.
func (s *Selection) Toggle(slot string) {
	norm, err := NormalizeTime(slot)
	if err != nil {
		return
	}

	for i, held := range s.slots {
		if held == norm {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			return
		}
	}

	if len(s.slots) == 1 && s.adjacent(norm) {
		s.slots = append(s.slots, norm)
		sort.Strings(s.slots)
		return
	}

	s.slots = []string{norm}
}

func (s *Selection) adjacent(slot string) bool {
	a, err := ClockMinutes(s.slots[0])
	if err != nil {
		return false
	}
	b, err := ClockMinutes(slot)
	if err != nil {
		return false
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff == int(SlotStep/time.Minute)
}

// Slots returns the held slots in ascending order.
func (s *Selection) Slots() []string {
	out := make([]string, len(s.slots))
	copy(out, s.slots)
	return out
}

// PrimarySlot returns the earliest held slot, or "" when empty.
func (s *Selection) PrimarySlot() string {
	if len(s.slots) == 0 {
		return ""
	}
	return s.slots[0]
}

// EffectiveDuration is the booked length the selection represents.
func (s *Selection) EffectiveDuration() time.Duration {
	return time.Duration(len(s.slots)) * SlotStep
}

// Empty reports whether nothing is held.
func (s *Selection) Empty() bool {
	return len(s.slots) == 0
}

// Reset clears the selection; called on successful booking and on date
// change.
func (s *Selection) Reset() {
	s.slots = nil
}
