// Package engine ties the scheduling pieces together for a single user:
// case selection, the slot grid, the multi-slot selection, bookings and
// background refresh. A Session is the unit the HTTP handlers talk to.
package engine

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/legalconnect/scheduler/internal/cache"
	"github.com/legalconnect/scheduler/internal/gateway"
	"github.com/legalconnect/scheduler/internal/model"
	"github.com/legalconnect/scheduler/internal/schedule"
	"github.com/legalconnect/scheduler/internal/service/appointment"
	"github.com/legalconnect/scheduler/internal/service/refresh"
	"github.com/legalconnect/scheduler/pkg/clock"
	apperrors "github.com/legalconnect/scheduler/pkg/errors"
	"github.com/legalconnect/scheduler/pkg/logger"
)

// Session is the per-user scheduling state machine. All methods are safe
// for concurrent use; slow gateway calls run outside the session lock.
type Session struct {
	userID int64
	role   model.Role

	api          gateway.API
	availability *cache.Availability
	appointments *appointment.Service
	coordinator  *refresh.Coordinator
	clk          clock.Clock
	log          *logger.Logger

	mu        sync.Mutex
	caseCtx   *model.CaseContext
	parts     model.Participants
	date      string
	selection *schedule.Selection
	appts     []model.Appointment
}

func NewSession(userID int64, role model.Role, api gateway.API, availability *cache.Availability, appts *appointment.Service, coord *refresh.Coordinator, clk clock.Clock, log *logger.Logger) *Session {
	return &Session{
		userID:       userID,
		role:         role,
		api:          api,
		availability: availability,
		appointments: appts,
		coordinator:  coord,
		clk:          clk,
		log:          log.WithComponent("session").WithFields(map[string]interface{}{"user_id": userID}),
		selection:    schedule.NewSelection(),
	}
}

// SelectCase loads the case, derives the provider/requester pair for
// this user and resets date and selection. Booking is refused for
// resolved or closed cases up front, before any slot is ever shown.
func (s *Session) SelectCase(ctx context.Context, caseID int64) (*model.CaseContext, error) {
	cc, err := s.api.CaseByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	parts := appointment.ResolveParticipants(s.role, cc, s.userID)

	s.mu.Lock()
	s.caseCtx = cc
	s.parts = parts
	s.date = ""
	s.selection.Reset()
	s.mu.Unlock()

	if s.coordinator != nil {
		s.coordinator.Stop()
	}
	return cc, nil
}

// SelectDate switches the visible day. The selection is cleared, the
// availability fetch is kicked off through the cache (debounced, so
// rapid date flipping costs one request) and the poll watch re-keys.
func (s *Session) SelectDate(ctx context.Context, date string) error {
	if _, err := schedule.CombineDateTime(date, schedule.DayStart); err != nil {
		return apperrors.NewValidation("please select a valid date", err)
	}

	s.mu.Lock()
	if s.caseCtx == nil {
		s.mu.Unlock()
		return apperrors.NewValidation("select a case first", nil)
	}
	s.date = date
	s.selection.Reset()
	key := s.keyLocked()
	s.mu.Unlock()

	s.availability.Request(ctx, key)
	if s.coordinator != nil {
		s.coordinator.Watch(ctx, key)
	}
	return nil
}

// Slots returns the current day's slot view. A cache miss kicks off a
// fetch and reports loading=true with best-effort slots computed from
// no busy data, matching how the grid renders while a fetch is in
// flight.
func (s *Session) Slots(ctx context.Context) ([]model.TimeSlot, bool, error) {
	s.mu.Lock()
	if s.caseCtx == nil || s.date == "" {
		s.mu.Unlock()
		return nil, false, apperrors.NewValidation("select a case and date first", nil)
	}
	key := s.keyLocked()
	date := s.date
	appts := append([]model.Appointment(nil), s.appts...)
	s.mu.Unlock()

	grid := schedule.StandardGrid()
	if busy, ok := s.availability.Peek(key); ok {
		return schedule.ComputeAvailability(grid, busy, appts, date, s.clk), false, nil
	}

	s.availability.Request(ctx, key)
	return schedule.ComputeAvailability(grid, nil, appts, date, s.clk), true, nil
}

// supersededRetries caps how many times a blocked slot read re-issues
// its request after a background invalidation overtakes it.
const supersededRetries = 2

// SlotsWait behaves like Slots but blocks until the fetch settles, for
// callers that need a definitive answer rather than a loading view. A
// background invalidation that overtakes the wait is not a failure of
// this request; the read re-issues itself against the fresh state.
func (s *Session) SlotsWait(ctx context.Context) ([]model.TimeSlot, error) {
	s.mu.Lock()
	if s.caseCtx == nil || s.date == "" {
		s.mu.Unlock()
		return nil, apperrors.NewValidation("select a case and date first", nil)
	}
	key := s.keyLocked()
	date := s.date
	appts := append([]model.Appointment(nil), s.appts...)
	s.mu.Unlock()

	grid := schedule.StandardGrid()
	for attempt := 0; ; attempt++ {
		if busy, ok := s.availability.Peek(key); ok {
			return schedule.ComputeAvailability(grid, busy, appts, date, s.clk), nil
		}

		select {
		case <-ctx.Done():
			return nil, apperrors.NewTransient("availability fetch cancelled", ctx.Err())
		case res := <-s.availability.Request(ctx, key):
			if stderrors.Is(res.Err, cache.ErrSuperseded) {
				if attempt < supersededRetries {
					continue
				}
				return nil, apperrors.NewTransient("availability is refreshing, please retry", res.Err)
			}
			if res.Err != nil {
				return nil, res.Err
			}
			return schedule.ComputeAvailability(grid, res.Intervals, appts, date, s.clk), nil
		}
	}
}

// Toggle flips a slot in the selection. Unavailable and past slots are
// ignored rather than rejected, mirroring a disabled control.
func (s *Session) Toggle(ctx context.Context, slotTime string) ([]string, error) {
	slot, err := schedule.NormalizeTime(slotTime)
	if err != nil {
		return nil, apperrors.NewValidation("invalid time slot", err)
	}

	slots, err := s.SlotsWait(ctx)
	if err != nil {
		return nil, err
	}
	if !appointment.CanBook(slots, slot) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.selection.Slots(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Toggle(slot)
	return s.selection.Slots(), nil
}

// Selection returns the currently selected slot times.
func (s *Session) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Slots()
}

// Book submits the current selection as an appointment request. The
// slot view is re-read immediately before dispatch so a slot that was
// taken since selection fails fast instead of round-tripping a 409.
func (s *Session) Book(ctx context.Context, title, notes string) (*model.Appointment, error) {
	s.mu.Lock()
	if s.caseCtx == nil || s.date == "" {
		s.mu.Unlock()
		return nil, apperrors.NewValidation("select a case and date first", nil)
	}
	if s.selection.Empty() {
		s.mu.Unlock()
		return nil, apperrors.NewValidation("please select a time slot", nil)
	}
	cc := s.caseCtx
	parts := s.parts
	date := s.date
	primary := s.selection.PrimarySlot()
	duration := int(s.selection.EffectiveDuration().Minutes())
	s.mu.Unlock()

	req, err := s.appointments.BuildBookingRequest(date, primary, title, notes, parts, cc.CaseID, duration)
	if err != nil {
		return nil, err
	}

	fresh, err := s.SlotsWait(ctx)
	if err != nil {
		return nil, err
	}

	apt, err := s.appointments.Book(ctx, req, cc, fresh)
	if err != nil {
		if apperrors.IsConflict(err) {
			// The cache was invalidated by the service; pull the fresh
			// grid so the caller's next view reflects the lost race.
			s.refetch(ctx)
		}
		return nil, err
	}

	s.mu.Lock()
	s.selection.Reset()
	s.appts = append(s.appts, *apt)
	s.mu.Unlock()

	s.refetch(ctx)
	return apt, nil
}

// Decide confirms or rejects a pending appointment addressed to this
// user.
func (s *Session) Decide(ctx context.Context, appointmentID int64, to model.AppointmentStatus) (*model.Appointment, error) {
	apt := s.find(appointmentID)
	updated, err := s.appointments.ChangeStatus(ctx, apt, to, s.userID)
	if err != nil {
		return nil, err
	}
	s.replace(updated)
	s.refetch(ctx)
	return updated, nil
}

// Reschedule moves a confirmed appointment to a new date and time.
func (s *Session) Reschedule(ctx context.Context, appointmentID int64, newDate, newTime string) error {
	apt := s.find(appointmentID)
	if err := s.appointments.Reschedule(ctx, apt, newDate, newTime, s.userID); err != nil {
		return err
	}
	if apt != nil {
		updated := *apt
		updated.Date = newDate
		updated.Time, _ = schedule.NormalizeTime(newTime)
		// Moving a confirmed appointment re-enters the request flow and
		// needs the other party's confirmation again.
		updated.Status = model.AppointmentStatusPending
		s.replace(&updated)
	}
	s.refetch(ctx)
	return nil
}

// Cancel cancels a pending or confirmed appointment.
func (s *Session) Cancel(ctx context.Context, appointmentID int64) error {
	apt := s.find(appointmentID)
	if err := s.appointments.Cancel(ctx, apt, s.userID); err != nil {
		return err
	}
	if apt != nil {
		updated := *apt
		updated.Status = model.AppointmentStatusCancelled
		s.replace(&updated)
	}
	s.refetch(ctx)
	return nil
}

// OnExternalRefresh handles a calendar-changed notification delivered
// out of band: every cached view is stale, so invalidate, then refetch
// the visible day and the appointment list.
func (s *Session) OnExternalRefresh(ctx context.Context) {
	s.availability.InvalidateAll()
	s.refetch(ctx)
}

// DayAppointments returns the non-terminal appointments on the selected
// day.
func (s *Session) DayAppointments() []model.Appointment {
	s.mu.Lock()
	date := s.date
	appts := append([]model.Appointment(nil), s.appts...)
	s.mu.Unlock()

	out := make([]model.Appointment, 0, len(appts))
	for _, apt := range appts {
		if apt.Date == date && !apt.Status.Terminal() {
			out = append(out, apt)
		}
	}
	return out
}

// RefreshAppointments reloads this session's appointment list from the
// backend.
func (s *Session) RefreshAppointments(ctx context.Context) ([]model.Appointment, error) {
	s.mu.Lock()
	if s.caseCtx == nil {
		s.mu.Unlock()
		return nil, apperrors.NewValidation("select a case first", nil)
	}
	providerID := s.parts.ProviderID
	s.mu.Unlock()

	appts, err := s.api.Appointments(ctx, providerID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.appts = appts
	s.mu.Unlock()
	return appts, nil
}

// Upcoming lists the next future appointments this user is party to.
func (s *Session) Upcoming(limit int) []model.Appointment {
	if limit <= 0 {
		limit = 5
	}
	s.mu.Lock()
	appts := append([]model.Appointment(nil), s.appts...)
	s.mu.Unlock()
	return appointment.Upcoming(appts, s.userID, s.clk, limit)
}

// Close releases the session's background work.
func (s *Session) Close() {
	if s.coordinator != nil {
		s.coordinator.Stop()
	}
}

func (s *Session) keyLocked() cache.Key {
	return cache.Key{
		ProviderID:  s.parts.ProviderID,
		RequesterID: s.parts.RequesterID,
		Date:        s.date,
	}
}

func (s *Session) find(id int64) *model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.appts {
		if s.appts[i].ID == id {
			apt := s.appts[i]
			return &apt
		}
	}
	return nil
}

func (s *Session) replace(apt *model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.appts {
		if s.appts[i].ID == apt.ID {
			s.appts[i] = *apt
			return
		}
	}
	s.appts = append(s.appts, *apt)
}

func (s *Session) refetch(ctx context.Context) {
	s.mu.Lock()
	if s.caseCtx == nil || s.date == "" {
		s.mu.Unlock()
		return
	}
	key := s.keyLocked()
	s.mu.Unlock()
	s.availability.Request(ctx, key)
	if _, err := s.RefreshAppointments(ctx); err != nil {
		s.log.Warn("appointment list refresh failed", "error", err.Error())
	}
}
