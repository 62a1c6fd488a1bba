package appointment

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalconnect/scheduler/internal/cache"
	"github.com/legalconnect/scheduler/internal/model"
	"github.com/legalconnect/scheduler/pkg/clock"
	apperrors "github.com/legalconnect/scheduler/pkg/errors"
	"github.com/legalconnect/scheduler/pkg/logger"
)

// fakeGateway counts calls so guard tests can prove nothing reached the
// network.
type fakeGateway struct {
	calls int32

	createErr  error
	created    *model.Appointment
	statusErr  error
	statusResp *model.Appointment
	reschedErr error
	cancelErr  error
}

func (f *fakeGateway) count() { atomic.AddInt32(&f.calls, 1) }

func (f *fakeGateway) BusyIntervals(ctx context.Context, providerID, requesterID int64, date string) ([]model.BusyInterval, error) {
	f.count()
	return nil, nil
}

func (f *fakeGateway) Appointments(ctx context.Context, providerID int64) ([]model.Appointment, error) {
	f.count()
	return nil, nil
}

func (f *fakeGateway) CreateAppointment(ctx context.Context, req *model.BookingRequest) (*model.Appointment, error) {
	f.count()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.created != nil {
		return f.created, nil
	}
	return &model.Appointment{
		ID: 100, ProviderID: req.ProviderID, RequesterID: req.RequesterID,
		Date: req.Date, Time: req.Time, DurationMinutes: req.DurationMinutes,
		Status: model.AppointmentStatusPending,
	}, nil
}

func (f *fakeGateway) SetAppointmentStatus(ctx context.Context, id int64, status model.AppointmentStatus) (*model.Appointment, error) {
	f.count()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.statusResp != nil {
		return f.statusResp, nil
	}
	return &model.Appointment{ID: id, Status: status}, nil
}

func (f *fakeGateway) RescheduleAppointment(ctx context.Context, id int64, newDate, newTime string) error {
	f.count()
	return f.reschedErr
}

func (f *fakeGateway) CancelAppointment(ctx context.Context, id int64) error {
	f.count()
	return f.cancelErr
}

func (f *fakeGateway) CaseByID(ctx context.Context, id int64) (*model.CaseContext, error) {
	f.count()
	return nil, nil
}

var testClock = clock.Fixed(time.Date(2026, 3, 9, 12, 0, 0, 0, time.Local))

func newTestService(gw *fakeGateway) (*Service, *cache.Availability) {
	avail := cache.New(func(ctx context.Context, key cache.Key) ([]model.BusyInterval, error) {
		return nil, nil
	}, 0, logger.Nop(), nil)
	return NewService(gw, avail, testClock, logger.Nop(), nil), avail
}

func availableSlots(times ...string) []model.TimeSlot {
	out := make([]model.TimeSlot, 0, len(times))
	for _, at := range times {
		out = append(out, model.TimeSlot{Time: at, Available: true})
	}
	return out
}

func TestResolveParticipants(t *testing.T) {
	cc := &model.CaseContext{CaseID: 7, LawyerID: 10, CitizenUserID: 20}

	p := ResolveParticipants(model.RoleLawyer, cc, 10)
	assert.Equal(t, model.Participants{ProviderID: 10, RequesterID: 20}, p)

	p = ResolveParticipants(model.RoleNGO, cc, 30)
	assert.Equal(t, model.Participants{ProviderID: 30, RequesterID: 20}, p)

	p = ResolveParticipants(model.RoleCitizen, cc, 20)
	assert.Equal(t, model.Participants{ProviderID: 10, RequesterID: 20}, p)
}

func TestBuildBookingRequestValidation(t *testing.T) {
	svc, _ := newTestService(&fakeGateway{})
	parts := model.Participants{ProviderID: 10, RequesterID: 20}

	req, err := svc.BuildBookingRequest("2026-03-10", "09:00:00", "  Intake meeting  ", "bring documents", parts, 7, 60)
	require.NoError(t, err)
	assert.Equal(t, "09:00", req.Time)
	assert.Equal(t, "Intake meeting", req.Title)
	assert.Equal(t, 60, req.DurationMinutes)

	_, err = svc.BuildBookingRequest("2026-03-10", "09:00", "   ", "", parts, 7, 30)
	assert.True(t, apperrors.IsValidation(err), "blank title")

	_, err = svc.BuildBookingRequest("2026-03-10", "", "Meeting", "", parts, 7, 30)
	assert.True(t, apperrors.IsValidation(err), "no slot selected")

	_, err = svc.BuildBookingRequest("2026-03-08", "09:00", "Meeting", "", parts, 7, 30)
	assert.True(t, apperrors.IsValidation(err), "past date")

	_, err = svc.BuildBookingRequest("2026-03-09", "11:00", "Meeting", "", parts, 7, 30)
	assert.True(t, apperrors.IsValidation(err), "past time today")

	_, err = svc.BuildBookingRequest("2026-03-10", "09:00", "Meeting", "", parts, 7, 45)
	assert.True(t, apperrors.IsValidation(err), "unsupported duration")
}

func TestBookGuardsShortCircuitBeforeNetwork(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(gw)
	req := &model.BookingRequest{Date: "2026-03-10", Time: "09:00", Title: "Meeting", ProviderID: 10, RequesterID: 20, CaseID: 7, DurationMinutes: 30}

	// Closed case refuses outright.
	closed := &model.CaseContext{CaseID: 7, Status: model.CaseStatusResolved}
	_, err := svc.Book(context.Background(), req, closed, availableSlots("09:00"))
	assert.True(t, apperrors.IsPermission(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&gw.calls), "guard failures must not reach the backend")

	// Slot gone from the fresh view refuses outright.
	open := &model.CaseContext{CaseID: 7, Status: model.CaseStatusOpen}
	_, err = svc.Book(context.Background(), req, open, availableSlots("10:00"))
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&gw.calls))
}

func TestBookSuccessInvalidatesCache(t *testing.T) {
	gw := &fakeGateway{}
	svc, avail := newTestService(gw)
	key := cache.Key{ProviderID: 10, RequesterID: 20, Date: "2026-03-10"}
	<-avail.Request(context.Background(), key)
	_, ok := avail.Peek(key)
	require.True(t, ok)

	req := &model.BookingRequest{Date: "2026-03-10", Time: "09:00", Title: "Meeting", ProviderID: 10, RequesterID: 20, CaseID: 7, DurationMinutes: 30}
	open := &model.CaseContext{CaseID: 7, Status: model.CaseStatusOpen}

	apt, err := svc.Book(context.Background(), req, open, availableSlots("09:00"))
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)

	_, ok = avail.Peek(key)
	assert.False(t, ok, "every cached view is stale after a mutation")
}

func TestBookConflictInvalidatesCache(t *testing.T) {
	gw := &fakeGateway{createErr: apperrors.NewConflict("", nil)}
	svc, avail := newTestService(gw)
	key := cache.Key{ProviderID: 10, RequesterID: 20, Date: "2026-03-10"}
	<-avail.Request(context.Background(), key)

	req := &model.BookingRequest{Date: "2026-03-10", Time: "09:00", Title: "Meeting", ProviderID: 10, RequesterID: 20, CaseID: 7, DurationMinutes: 30}
	open := &model.CaseContext{CaseID: 7, Status: model.CaseStatusOpen}

	_, err := svc.Book(context.Background(), req, open, availableSlots("09:00"))
	assert.True(t, apperrors.IsConflict(err))

	_, ok := avail.Peek(key)
	assert.False(t, ok, "a lost race must force a refetch")
}

func TestChangeStatusRules(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(gw)
	pending := &model.Appointment{ID: 5, ProviderID: 10, RequesterID: 20, Status: model.AppointmentStatusPending, InitiatedBy: 20}

	// The initiator cannot decide its own request.
	_, err := svc.ChangeStatus(context.Background(), pending, model.AppointmentStatusConfirmed, 20)
	assert.True(t, apperrors.IsPermission(err))

	// A stranger cannot decide.
	_, err = svc.ChangeStatus(context.Background(), pending, model.AppointmentStatusConfirmed, 99)
	assert.True(t, apperrors.IsPermission(err))

	// Only the confirm/reject pair is accepted here.
	_, err = svc.ChangeStatus(context.Background(), pending, model.AppointmentStatusCancelled, 10)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&gw.calls))

	// The counterpart confirms; a missing meet link gets a fallback room.
	gw.statusResp = &model.Appointment{ID: 5, ProviderID: 10, RequesterID: 20, Status: model.AppointmentStatusConfirmed}
	updated, err := svc.ChangeStatus(context.Background(), pending, model.AppointmentStatusConfirmed, 10)
	require.NoError(t, err)
	assert.Contains(t, updated.MeetLink, "https://meet.jit.si/CaseMeet-5-")

	// Terminal states cannot be decided again.
	rejected := &model.Appointment{ID: 6, ProviderID: 10, RequesterID: 20, Status: model.AppointmentStatusRejected}
	_, err = svc.ChangeStatus(context.Background(), rejected, model.AppointmentStatusConfirmed, 10)
	assert.True(t, apperrors.IsPermission(err))
}

func TestChangeStatusKeepsBackendMeetLink(t *testing.T) {
	gw := &fakeGateway{statusResp: &model.Appointment{
		ID: 5, ProviderID: 10, RequesterID: 20,
		Status: model.AppointmentStatusConfirmed, MeetLink: "https://meet.example.com/room-5",
	}}
	svc, _ := newTestService(gw)
	pending := &model.Appointment{ID: 5, ProviderID: 10, RequesterID: 20, Status: model.AppointmentStatusPending, InitiatedBy: 20}

	updated, err := svc.ChangeStatus(context.Background(), pending, model.AppointmentStatusConfirmed, 10)
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example.com/room-5", updated.MeetLink)
}

func TestRescheduleRules(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(gw)

	cancelled := &model.Appointment{ID: 5, ProviderID: 10, RequesterID: 20, Date: "2026-03-10", Time: "09:00", Status: model.AppointmentStatusCancelled}
	err := svc.Reschedule(context.Background(), cancelled, "2026-03-11", "09:00", 10)
	assert.True(t, apperrors.IsPermission(err), "terminal appointments never move")

	pending := &model.Appointment{ID: 5, ProviderID: 10, RequesterID: 20, Date: "2026-03-10", Time: "09:00", Status: model.AppointmentStatusPending}
	err = svc.Reschedule(context.Background(), pending, "2026-03-11", "09:00", 10)
	assert.True(t, apperrors.IsPermission(err), "only confirmed appointments move")

	confirmed := &model.Appointment{ID: 5, ProviderID: 10, RequesterID: 20, Date: "2026-03-10", Time: "09:00", Status: model.AppointmentStatusConfirmed}
	err = svc.Reschedule(context.Background(), confirmed, "2026-03-11", "09:00", 99)
	assert.True(t, apperrors.IsPermission(err), "strangers cannot reschedule")

	err = svc.Reschedule(context.Background(), confirmed, "2026-03-08", "09:00", 10)
	assert.True(t, apperrors.IsValidation(err), "cannot move into the past")
	assert.Equal(t, int32(0), atomic.LoadInt32(&gw.calls))

	err = svc.Reschedule(context.Background(), confirmed, "2026-03-11", "09:00", 20)
	require.NoError(t, err, "either participant may reschedule")
	assert.Equal(t, int32(1), atomic.LoadInt32(&gw.calls))
}

func TestCancelRules(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(gw)

	rejected := &model.Appointment{ID: 5, ProviderID: 10, RequesterID: 20, Status: model.AppointmentStatusRejected}
	err := svc.Cancel(context.Background(), rejected, 10)
	assert.True(t, apperrors.IsPermission(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&gw.calls))

	pending := &model.Appointment{ID: 5, ProviderID: 10, RequesterID: 20, Status: model.AppointmentStatusPending}
	err = svc.Cancel(context.Background(), pending, 20)
	require.NoError(t, err)

	confirmed := &model.Appointment{ID: 6, ProviderID: 10, RequesterID: 20, Status: model.AppointmentStatusConfirmed}
	err = svc.Cancel(context.Background(), confirmed, 10)
	require.NoError(t, err)
}

func TestUpcoming(t *testing.T) {
	appts := []model.Appointment{
		{ID: 1, ProviderID: 10, RequesterID: 20, Date: "2026-03-10", Time: "09:00", Status: model.AppointmentStatusConfirmed},
		{ID: 2, ProviderID: 10, RequesterID: 20, Date: "2026-03-09", Time: "09:00", Status: model.AppointmentStatusConfirmed}, // past
		{ID: 3, ProviderID: 10, RequesterID: 20, Date: "2026-03-12", Time: "09:00", Status: model.AppointmentStatusCancelled}, // terminal
		{ID: 4, ProviderID: 11, RequesterID: 21, Date: "2026-03-12", Time: "09:00", Status: model.AppointmentStatusConfirmed}, // not a party
		{ID: 5, ProviderID: 10, RequesterID: 20, Date: "2026-03-09", Time: "14:00", Status: model.AppointmentStatusPending},   // later today
	}

	got := Upcoming(appts, 10, testClock, 5)
	require.Len(t, got, 2)
	assert.Equal(t, int64(5), got[0].ID, "ordered by start")
	assert.Equal(t, int64(1), got[1].ID)

	got = Upcoming(appts, 10, testClock, 1)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].ID)

	got = Upcoming(appts, 20, testClock, 5)
	assert.Len(t, got, 2, "requester side sees the same upcoming set")
}
