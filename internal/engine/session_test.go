package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalconnect/scheduler/internal/cache"
	"github.com/legalconnect/scheduler/internal/model"
	"github.com/legalconnect/scheduler/internal/service/appointment"
	"github.com/legalconnect/scheduler/pkg/clock"
	apperrors "github.com/legalconnect/scheduler/pkg/errors"
	"github.com/legalconnect/scheduler/pkg/logger"
)

type fakeAPI struct {
	busyFetches int32
	busy        []model.BusyInterval
	appts       []model.Appointment
	createErr   error
	nextID      int64
	cc          *model.CaseContext
}

func (f *fakeAPI) BusyIntervals(ctx context.Context, providerID, requesterID int64, date string) ([]model.BusyInterval, error) {
	atomic.AddInt32(&f.busyFetches, 1)
	return f.busy, nil
}

func (f *fakeAPI) Appointments(ctx context.Context, providerID int64) ([]model.Appointment, error) {
	return f.appts, nil
}

func (f *fakeAPI) CreateAppointment(ctx context.Context, req *model.BookingRequest) (*model.Appointment, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	apt := model.Appointment{
		ID: f.nextID, ProviderID: req.ProviderID, RequesterID: req.RequesterID,
		Date: req.Date, Time: req.Time, DurationMinutes: req.DurationMinutes,
		Title: req.Title, Status: model.AppointmentStatusPending, InitiatedBy: req.RequesterID,
	}
	f.appts = append(f.appts, apt)
	return &apt, nil
}

func (f *fakeAPI) SetAppointmentStatus(ctx context.Context, id int64, status model.AppointmentStatus) (*model.Appointment, error) {
	return &model.Appointment{ID: id, Status: status}, nil
}

func (f *fakeAPI) RescheduleAppointment(ctx context.Context, id int64, newDate, newTime string) error {
	return nil
}

func (f *fakeAPI) CancelAppointment(ctx context.Context, id int64) error { return nil }

func (f *fakeAPI) CaseByID(ctx context.Context, id int64) (*model.CaseContext, error) {
	if f.cc != nil {
		return f.cc, nil
	}
	return &model.CaseContext{CaseID: id, LawyerID: 10, CitizenUserID: 20, Status: model.CaseStatusOpen}, nil
}

var testClock = clock.Fixed(time.Date(2026, 3, 9, 12, 0, 0, 0, time.Local))

func newTestSession(t *testing.T, api *fakeAPI, userID int64, role model.Role) *Session {
	t.Helper()
	avail := cache.New(func(ctx context.Context, key cache.Key) ([]model.BusyInterval, error) {
		return api.BusyIntervals(ctx, key.ProviderID, key.RequesterID, key.Date)
	}, 0, logger.Nop(), nil)
	svc := appointment.NewService(api, avail, testClock, logger.Nop(), nil)
	return NewSession(userID, role, api, avail, svc, nil, testClock, logger.Nop())
}

func TestSessionRequiresCaseAndDate(t *testing.T) {
	s := newTestSession(t, &fakeAPI{}, 20, model.RoleCitizen)

	_, _, err := s.Slots(context.Background())
	assert.True(t, apperrors.IsValidation(err))

	err = s.SelectDate(context.Background(), "2026-03-10")
	assert.True(t, apperrors.IsValidation(err), "date before case")

	_, err = s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	err = s.SelectDate(context.Background(), "not-a-date")
	assert.True(t, apperrors.IsValidation(err))
	require.NoError(t, s.SelectDate(context.Background(), "2026-03-10"))
}

func TestSessionSlotsReflectBusyAndBooked(t *testing.T) {
	api := &fakeAPI{busy: []model.BusyInterval{{Start: "09:00", End: "10:00"}}}
	s := newTestSession(t, api, 20, model.RoleCitizen)

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, s.SelectDate(context.Background(), "2026-03-10"))

	slots, err := s.SlotsWait(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 30)

	byTime := make(map[string]model.TimeSlot, len(slots))
	for _, sl := range slots {
		byTime[sl.Time] = sl
	}
	assert.False(t, byTime["09:00"].Available)
	assert.False(t, byTime["09:30"].Available)
	assert.True(t, byTime["10:00"].Available)
}

func TestSessionSlotsWaitSurvivesBackgroundInvalidation(t *testing.T) {
	api := &fakeAPI{busy: []model.BusyInterval{{Start: "09:00", End: "10:00"}}}
	avail := cache.New(func(ctx context.Context, key cache.Key) ([]model.BusyInterval, error) {
		return api.BusyIntervals(ctx, key.ProviderID, key.RequesterID, key.Date)
	}, 40*time.Millisecond, logger.Nop(), nil)
	svc := appointment.NewService(api, avail, testClock, logger.Nop(), nil)
	s := NewSession(20, model.RoleCitizen, api, avail, svc, nil, testClock, logger.Nop())

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, s.SelectDate(context.Background(), "2026-03-10"))

	// Invalidate while SlotsWait sits inside the quiet window, the way
	// the background poll does. The wait must re-issue its request and
	// settle cleanly instead of surfacing the invalidation.
	done := make(chan error, 1)
	var slots []model.TimeSlot
	go func() {
		var waitErr error
		slots, waitErr = s.SlotsWait(context.Background())
		done <- waitErr
	}()

	time.Sleep(15 * time.Millisecond)
	avail.InvalidateAll()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SlotsWait did not settle")
	}
	require.Len(t, slots, 30)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&api.busyFetches), int32(1))
}

func TestSessionToggleIgnoresUnavailableSlots(t *testing.T) {
	api := &fakeAPI{busy: []model.BusyInterval{{Start: "09:00", End: "10:00"}}}
	s := newTestSession(t, api, 20, model.RoleCitizen)

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, s.SelectDate(context.Background(), "2026-03-10"))

	sel, err := s.Toggle(context.Background(), "09:00")
	require.NoError(t, err)
	assert.Empty(t, sel, "busy slot click is a no-op")

	sel, err = s.Toggle(context.Background(), "10:00")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, sel)

	sel, err = s.Toggle(context.Background(), "10:30")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30"}, sel)
}

func TestSessionDateChangeResetsSelection(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(t, api, 20, model.RoleCitizen)

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, s.SelectDate(context.Background(), "2026-03-10"))

	_, err = s.Toggle(context.Background(), "10:00")
	require.NoError(t, err)

	require.NoError(t, s.SelectDate(context.Background(), "2026-03-11"))
	assert.Empty(t, s.Selection())
}

func TestSessionBookFlow(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(t, api, 20, model.RoleCitizen)

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, s.SelectDate(context.Background(), "2026-03-10"))

	_, err = s.Book(context.Background(), "Intake meeting", "")
	assert.True(t, apperrors.IsValidation(err), "empty selection cannot book")

	_, err = s.Toggle(context.Background(), "10:00")
	require.NoError(t, err)
	_, err = s.Toggle(context.Background(), "10:30")
	require.NoError(t, err)

	apt, err := s.Book(context.Background(), "Intake meeting", "bring documents")
	require.NoError(t, err)
	assert.Equal(t, "10:00", apt.Time)
	assert.Equal(t, 60, apt.DurationMinutes)
	assert.Equal(t, int64(10), apt.ProviderID, "citizen books against the case lawyer")
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)

	assert.Empty(t, s.Selection(), "selection resets after booking")

	// The fresh grid now shows the hour as booked.
	slots, err := s.SlotsWait(context.Background())
	require.NoError(t, err)
	for _, sl := range slots {
		if sl.Time == "10:00" || sl.Time == "10:30" {
			assert.False(t, sl.Available, sl.Time)
		}
	}
}

func TestSessionBookConflictRefetches(t *testing.T) {
	api := &fakeAPI{createErr: apperrors.NewConflict("", nil)}
	s := newTestSession(t, api, 20, model.RoleCitizen)

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, s.SelectDate(context.Background(), "2026-03-10"))

	_, err = s.Toggle(context.Background(), "10:00")
	require.NoError(t, err)

	before := atomic.LoadInt32(&api.busyFetches)
	_, err = s.Book(context.Background(), "Intake meeting", "")
	assert.True(t, apperrors.IsConflict(err))
	assert.Greater(t, atomic.LoadInt32(&api.busyFetches), before,
		"a lost race must refetch availability")
}

func TestSessionClosedCaseCannotBook(t *testing.T) {
	api := &fakeAPI{cc: &model.CaseContext{CaseID: 7, LawyerID: 10, CitizenUserID: 20, Status: model.CaseStatusClosed}}
	s := newTestSession(t, api, 20, model.RoleCitizen)

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, s.SelectDate(context.Background(), "2026-03-10"))

	_, err = s.Toggle(context.Background(), "10:00")
	require.NoError(t, err)

	_, err = s.Book(context.Background(), "Intake meeting", "")
	assert.True(t, apperrors.IsPermission(err))
}

func TestSessionReschedule(t *testing.T) {
	api := &fakeAPI{appts: []model.Appointment{
		{ID: 1, ProviderID: 10, RequesterID: 20, Date: "2026-03-10", Time: "09:00", Status: model.AppointmentStatusConfirmed},
	}}
	s := newTestSession(t, api, 20, model.RoleCitizen)

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	_, err = s.RefreshAppointments(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Reschedule(context.Background(), 1, "2026-03-11", "14:00"))

	// Terminal appointments refuse to move.
	cancelled := model.Appointment{ID: 2, ProviderID: 10, RequesterID: 20, Date: "2026-03-12", Time: "09:00", Status: model.AppointmentStatusCancelled}
	api.appts = append(api.appts, cancelled)
	_, err = s.RefreshAppointments(context.Background())
	require.NoError(t, err)

	err = s.Reschedule(context.Background(), 2, "2026-03-13", "09:00")
	assert.True(t, apperrors.IsPermission(err))
}

func TestSessionUpcomingFiltersAndLimits(t *testing.T) {
	api := &fakeAPI{appts: []model.Appointment{
		{ID: 1, ProviderID: 10, RequesterID: 20, Date: "2026-03-10", Time: "09:00", Status: model.AppointmentStatusConfirmed},
		{ID: 2, ProviderID: 10, RequesterID: 20, Date: "2026-03-08", Time: "09:00", Status: model.AppointmentStatusConfirmed},
		{ID: 3, ProviderID: 10, RequesterID: 20, Date: "2026-03-11", Time: "09:00", Status: model.AppointmentStatusRejected},
	}}
	s := newTestSession(t, api, 20, model.RoleCitizen)

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	_, err = s.RefreshAppointments(context.Background())
	require.NoError(t, err)

	got := s.Upcoming(0)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestSessionExternalRefresh(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(t, api, 20, model.RoleCitizen)

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, s.SelectDate(context.Background(), "2026-03-10"))

	before := atomic.LoadInt32(&api.busyFetches)
	s.OnExternalRefresh(context.Background())
	assert.Greater(t, atomic.LoadInt32(&api.busyFetches), before)
}

func TestSessionDayAppointments(t *testing.T) {
	api := &fakeAPI{appts: []model.Appointment{
		{ID: 1, ProviderID: 10, RequesterID: 20, Date: "2026-03-10", Time: "09:00", Status: model.AppointmentStatusConfirmed},
		{ID: 2, ProviderID: 10, RequesterID: 20, Date: "2026-03-10", Time: "11:00", Status: model.AppointmentStatusCancelled},
		{ID: 3, ProviderID: 10, RequesterID: 20, Date: "2026-03-11", Time: "09:00", Status: model.AppointmentStatusConfirmed},
	}}
	s := newTestSession(t, api, 20, model.RoleCitizen)

	_, err := s.SelectCase(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, s.SelectDate(context.Background(), "2026-03-10"))
	_, err = s.RefreshAppointments(context.Background())
	require.NoError(t, err)

	got := s.DayAppointments()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestManagerReusesSessions(t *testing.T) {
	api := &fakeAPI{}
	avail := cache.New(func(ctx context.Context, key cache.Key) ([]model.BusyInterval, error) {
		return nil, nil
	}, 0, logger.Nop(), nil)
	svc := appointment.NewService(api, avail, testClock, logger.Nop(), nil)
	m := NewManager(api, avail, svc, nil, testClock, logger.Nop())

	a := m.Session(20, model.RoleCitizen)
	b := m.Session(20, model.RoleLawyer)
	assert.Same(t, a, b)

	c := m.Session(21, model.RoleLawyer)
	assert.NotSame(t, a, c)

	m.Drop(20)
	d := m.Session(20, model.RoleCitizen)
	assert.NotSame(t, a, d)
}
