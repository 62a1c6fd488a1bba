package model

import "time"

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "PENDING"
	AppointmentStatusConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
	AppointmentStatusRejected  AppointmentStatus = "REJECTED"
)

// Terminal reports whether no further transition is defined out of s.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCancelled || s == AppointmentStatusRejected
}

// Blocking reports whether an appointment in this status occupies its
// slot for availability purposes.
func (s AppointmentStatus) Blocking() bool {
	return !s.Terminal()
}

// Appointment is the engine's read-through view of a backend-owned
// appointment. Date is a calendar day ("2006-01-02"), Time a slot start
// ("15:04"), both in the provider's local zone.
type Appointment struct {
	ID              int64             `json:"id"`
	ProviderID      int64             `json:"providerId"`
	RequesterID     int64             `json:"requesterId"`
	CaseID          int64             `json:"caseId,omitempty"`
	Date            string            `json:"date"`
	Time            string            `json:"time"`
	DurationMinutes int               `json:"durationMinutes"`
	Title           string            `json:"title,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Status          AppointmentStatus `json:"status"`
	InitiatedBy     int64             `json:"initiatedBy,omitempty"`
	MeetLink        string            `json:"meetLink,omitempty"`
	CreatedAt       time.Time         `json:"createdAt,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt,omitempty"`
}

// BookingRequest is the payload for a new appointment request.
type BookingRequest struct {
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required,datetime=15:04"`
	Title           string `json:"title" validate:"required,max=200"`
	Notes           string `json:"notes" validate:"max=1000"`
	ProviderID      int64  `json:"providerId" validate:"required,gt=0"`
	RequesterID     int64  `json:"requesterId" validate:"required,gt=0"`
	CaseID          int64  `json:"caseId,omitempty"`
	DurationMinutes int    `json:"durationMinutes" validate:"oneof=30 60"`
}

// TimeSlot is a classified point on the half-hour grid. Derived, never
// persisted.
type TimeSlot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Past      bool   `json:"past,omitempty"`
	Busy      bool   `json:"busy,omitempty"`
	Booked    bool   `json:"booked,omitempty"`
}

// BusyInterval is an externally supplied range during which the provider
// is not offerable. Half-open: a slot starting at End is free, a slot
// starting at Start is not.
type BusyInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
