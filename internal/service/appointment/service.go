// Package appointment drives the booking lifecycle: guard checks,
// payload construction, and the status transitions out of PENDING.
// Every guard runs before any network call; violations return typed
// errors and never reach the backend.
package appointment

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/legalconnect/scheduler/internal/cache"
	"github.com/legalconnect/scheduler/internal/gateway"
	"github.com/legalconnect/scheduler/internal/model"
	"github.com/legalconnect/scheduler/internal/schedule"
	"github.com/legalconnect/scheduler/pkg/clock"
	apperrors "github.com/legalconnect/scheduler/pkg/errors"
	"github.com/legalconnect/scheduler/pkg/logger"
	"github.com/legalconnect/scheduler/pkg/metrics"
)

type Service struct {
	api          gateway.API
	availability *cache.Availability
	validate     *validator.Validate
	clk          clock.Clock
	log          *logger.Logger
	metrics      *metrics.Metrics
}

func NewService(api gateway.API, availability *cache.Availability, clk clock.Clock, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		api:          api,
		availability: availability,
		validate:     validator.New(),
		clk:          clk,
		log:          log.WithComponent("appointment"),
		metrics:      m,
	}
}

// ResolveParticipants computes which party is provider and which is
// requester for a case selection. Lawyers and NGOs book out their own
// calendar for the case's citizen; citizens book against the case's
// lawyer. Computed once per case selection, consumed as data.
func ResolveParticipants(role model.Role, cc *model.CaseContext, currentUserID int64) model.Participants {
	if role.Provider() {
		return model.Participants{
			ProviderID:  currentUserID,
			RequesterID: cc.CitizenUserID,
		}
	}
	return model.Participants{
		ProviderID:  cc.LawyerID,
		RequesterID: currentUserID,
	}
}

// BuildBookingRequest constructs and validates a booking payload. Pure
// apart from the injected clock; returns a validation error rather than
// a partially built request.
func (s *Service) BuildBookingRequest(date, primarySlot, title, notes string, parts model.Participants, caseID int64, durationMinutes int) (*model.BookingRequest, error) {
	slot, err := schedule.NormalizeTime(primarySlot)
	if err != nil {
		return nil, apperrors.NewValidation("please select a time slot", err)
	}

	req := &model.BookingRequest{
		Date:            date,
		Time:            slot,
		Title:           strings.TrimSpace(title),
		Notes:           strings.TrimSpace(notes),
		ProviderID:      parts.ProviderID,
		RequesterID:     parts.RequesterID,
		CaseID:          caseID,
		DurationMinutes: durationMinutes,
	}

	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.NewValidation(validationMessage(err), err)
	}

	start, err := schedule.CombineDateTime(req.Date, req.Time)
	if err != nil {
		return nil, apperrors.NewValidation("invalid date or time", err)
	}
	if !start.After(s.clk.Now()) {
		return nil, apperrors.NewValidation("cannot book appointments in the past", nil)
	}

	return req, nil
}

// CanBook re-validates the chosen slot against the freshest availability
// immediately before dispatch; selection-time checks are not enough
// because time advances and the cache refreshes underneath the UI.
func CanBook(slots []model.TimeSlot, slotTime string) bool {
	for _, s := range slots {
		if s.Time == slotTime {
			return s.Available
		}
	}
	return false
}

// CanReschedule allows a participant to move an appointment they are
// party to, while it is confirmed and not in the past.
func CanReschedule(apt *model.Appointment, actorID int64, clk clock.Clock) error {
	if apt == nil {
		return apperrors.NewNotFound("appointment", nil)
	}
	if apt.Status != model.AppointmentStatusConfirmed {
		return apperrors.NewPermission(fmt.Sprintf("cannot reschedule a %s appointment", strings.ToLower(string(apt.Status))), nil)
	}
	if !isParticipant(apt, actorID) {
		return apperrors.NewPermission("only a participant may reschedule", nil)
	}
	if inPast(apt, clk) {
		return apperrors.NewPermission("cannot reschedule a past appointment", nil)
	}
	return nil
}

// CanCancel allows either participant to cancel a pending or confirmed
// appointment. Terminal states stay terminal.
func CanCancel(apt *model.Appointment, actorID int64) error {
	if apt == nil {
		return apperrors.NewNotFound("appointment", nil)
	}
	if apt.Status.Terminal() {
		return apperrors.NewPermission(fmt.Sprintf("appointment is already %s", strings.ToLower(string(apt.Status))), nil)
	}
	if !isParticipant(apt, actorID) {
		return apperrors.NewPermission("only a participant may cancel", nil)
	}
	return nil
}

// CanDecide allows the participant who did not initiate a pending
// request to confirm or reject it.
func CanDecide(apt *model.Appointment, actorID int64) error {
	if apt == nil {
		return apperrors.NewNotFound("appointment", nil)
	}
	if apt.Status != model.AppointmentStatusPending {
		return apperrors.NewPermission("only pending appointments can be confirmed or rejected", nil)
	}
	if !isParticipant(apt, actorID) {
		return apperrors.NewPermission("only a participant may decide", nil)
	}
	if apt.InitiatedBy != 0 && apt.InitiatedBy == actorID {
		return apperrors.NewPermission("the initiating party cannot decide its own request", nil)
	}
	return nil
}

// Book submits a validated booking request. The owning case must be
// open, and the primary slot must still be available in the supplied
// fresh slot view. A backend conflict invalidates the whole
// availability cache so the grid is never silently stale after a race.
func (s *Service) Book(ctx context.Context, req *model.BookingRequest, cc *model.CaseContext, freshSlots []model.TimeSlot) (*model.Appointment, error) {
	if cc != nil && cc.Status.Closed() {
		return nil, apperrors.NewPermission("cannot book appointments for a resolved or closed case", nil)
	}
	if !CanBook(freshSlots, req.Time) {
		return nil, apperrors.NewValidation("selected slot is not available", nil)
	}

	apt, err := s.api.CreateAppointment(ctx, req)
	if err != nil {
		if apperrors.IsConflict(err) {
			s.log.Warn("booking conflict, invalidating availability",
				"provider_id", req.ProviderID, "date", req.Date, "time", req.Time)
			s.availability.InvalidateAll()
			s.countBooking("conflict")
			if s.metrics != nil {
				s.metrics.BookingConflicts.Inc()
			}
		} else {
			s.countBooking("error")
		}
		return nil, err
	}

	// Any successful mutation makes every cached busy view stale.
	s.availability.InvalidateAll()
	s.countBooking("ok")
	s.log.Info("appointment requested",
		"appointment_id", apt.ID, "date", apt.Date, "time", apt.Time)
	return apt, nil
}

// ChangeStatus confirms or rejects a pending appointment. On
// confirmation without a backend-issued meeting link a deterministic
// fallback room link is attached.
func (s *Service) ChangeStatus(ctx context.Context, apt *model.Appointment, to model.AppointmentStatus, actorID int64) (*model.Appointment, error) {
	if to != model.AppointmentStatusConfirmed && to != model.AppointmentStatusRejected {
		return nil, apperrors.NewValidation(fmt.Sprintf("unsupported status %q", to), nil)
	}
	if err := CanDecide(apt, actorID); err != nil {
		return nil, err
	}

	updated, err := s.api.SetAppointmentStatus(ctx, apt.ID, to)
	if err != nil {
		if apperrors.IsConflict(err) {
			s.availability.InvalidateAll()
		}
		return nil, err
	}

	if updated.Status == model.AppointmentStatusConfirmed && updated.MeetLink == "" {
		updated.MeetLink = fallbackMeetLink(updated.ID)
	}

	s.availability.InvalidateAll()
	s.log.Info("appointment status changed", "appointment_id", apt.ID, "status", string(to))
	return updated, nil
}

// Reschedule moves a confirmed appointment in place: same id, new
// date/time. The new slot is validated like a fresh booking.
func (s *Service) Reschedule(ctx context.Context, apt *model.Appointment, newDate, newTime string, actorID int64) error {
	if err := CanReschedule(apt, actorID, s.clk); err != nil {
		return err
	}

	slot, err := schedule.NormalizeTime(newTime)
	if err != nil {
		return apperrors.NewValidation("invalid time", err)
	}
	start, err := schedule.CombineDateTime(newDate, slot)
	if err != nil {
		return apperrors.NewValidation("invalid date or time", err)
	}
	if !start.After(s.clk.Now()) {
		return apperrors.NewValidation("cannot reschedule into the past", nil)
	}

	if err := s.api.RescheduleAppointment(ctx, apt.ID, newDate, slot); err != nil {
		if apperrors.IsConflict(err) {
			s.availability.InvalidateAll()
		}
		return err
	}

	s.availability.InvalidateAll()
	s.log.Info("appointment rescheduled",
		"appointment_id", apt.ID, "date", newDate, "time", slot)
	return nil
}

// Cancel cancels a pending or confirmed appointment.
func (s *Service) Cancel(ctx context.Context, apt *model.Appointment, actorID int64) error {
	if err := CanCancel(apt, actorID); err != nil {
		return err
	}

	if err := s.api.CancelAppointment(ctx, apt.ID); err != nil {
		if apperrors.IsConflict(err) {
			s.availability.InvalidateAll()
		}
		return err
	}

	s.availability.InvalidateAll()
	s.log.Info("appointment cancelled", "appointment_id", apt.ID)
	return nil
}

// Upcoming filters to future, non-terminal appointments the user is
// party to, ordered by start, limited.
func Upcoming(appts []model.Appointment, userID int64, clk clock.Clock, limit int) []model.Appointment {
	now := clk.Now()
	out := make([]model.Appointment, 0, limit)
	for _, apt := range sortedByStart(appts) {
		if apt.Status.Terminal() || !isParticipant(&apt, userID) {
			continue
		}
		start, err := schedule.CombineDateTime(apt.Date, apt.Time)
		if err != nil || !start.After(now) {
			continue
		}
		out = append(out, apt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func sortedByStart(appts []model.Appointment) []model.Appointment {
	out := make([]model.Appointment, len(appts))
	copy(out, appts)
	sort.Slice(out, func(i, j int) bool { return startKey(out[i]) < startKey(out[j]) })
	return out
}

func startKey(apt model.Appointment) string {
	return apt.Date + "T" + apt.Time
}

func isParticipant(apt *model.Appointment, userID int64) bool {
	return userID != 0 && (apt.ProviderID == userID || apt.RequesterID == userID)
}

func inPast(apt *model.Appointment, clk clock.Clock) bool {
	start, err := schedule.CombineDateTime(apt.Date, apt.Time)
	if err != nil {
		return false
	}
	return !start.After(clk.Now())
}

func fallbackMeetLink(id int64) string {
	return fmt.Sprintf("https://meet.jit.si/CaseMeet-%d-%s", id, uuid.New().String()[:8])
}

func (s *Service) countBooking(outcome string) {
	if s.metrics != nil {
		s.metrics.Bookings.WithLabelValues(outcome).Inc()
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		switch f.Field() {
		case "Title":
			return "please enter a title"
		case "Date":
			return "please select a valid date"
		case "Time":
			return "please select a time slot"
		case "DurationMinutes":
			return "appointments are 30 or 60 minutes"
		}
	}
	return "invalid booking request"
}
