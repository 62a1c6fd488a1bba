// Package gateway reaches the appointment backend that owns persistence,
// calendar sync and notification fan-out. The engine only ever sees it
// through the API interface; tests substitute call-counting fakes.
package gateway

import (
	"context"

	"github.com/legalconnect/scheduler/internal/model"
)

// API is the boundary to the external appointment backend.
type API interface {
	// BusyIntervals returns the merged external-calendar and internal
	// booking busy times for one provider day. requesterID widens the
	// merge to the counterparty's calendar when non-zero.
	BusyIntervals(ctx context.Context, providerID, requesterID int64, date string) ([]model.BusyInterval, error)

	// Appointments returns the full appointment list for a provider,
	// any status.
	Appointments(ctx context.Context, providerID int64) ([]model.Appointment, error)

	// CreateAppointment submits a booking request. Fails with a
	// conflict error when the slot became unavailable between
	// validation and submission.
	CreateAppointment(ctx context.Context, req *model.BookingRequest) (*model.Appointment, error)

	// SetAppointmentStatus confirms or rejects a pending appointment.
	SetAppointmentStatus(ctx context.Context, id int64, status model.AppointmentStatus) (*model.Appointment, error)

	// RescheduleAppointment moves a confirmed appointment to a new
	// date/time, keeping its id stable.
	RescheduleAppointment(ctx context.Context, id int64, newDate, newTime string) error

	// CancelAppointment cancels a pending or confirmed appointment.
	CancelAppointment(ctx context.Context, id int64) error

	// CaseByID returns the read-only case context for payload
	// construction.
	CaseByID(ctx context.Context, id int64) (*model.CaseContext, error)
}
