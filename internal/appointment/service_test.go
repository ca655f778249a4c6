package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-queue-scheduling/internal/config"
	"github.com/hackgods/clinic-queue-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-queue-scheduling/internal/redis"
	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
	"github.com/hackgods/clinic-queue-scheduling/pkg/logging"
)

type fakeRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]Patient
	appts    map[uuid.UUID]Appointment
	events   []EventLog
	created  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		patients: map[uuid.UUID]Patient{},
		appts:    map[uuid.UUID]Appointment{},
	}
}

func (r *fakeRepo) addPatient(name string) Patient {
	p := Patient{ID: uuid.New(), Name: name, Phone: "+919876543210"}
	r.patients[p.ID] = p
	return p
}

func (r *fakeRepo) add(a Appointment) Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.appts[a.ID] = a
	return a
}

func (r *fakeRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *fakeRepo) CreatePatient(_ context.Context, p Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.New()
	r.patients[p.ID] = p
	return &p, nil
}

func (r *fakeRepo) ListDay(_ context.Context, doctor, date string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.Doctor == doctor && a.Date == date {
			out = append(out, a)
		}
	}
	return NewLedger(out), nil
}

func (r *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *fakeRepo) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.appts {
		if existing.Doctor == a.Doctor && existing.Date == a.Date && existing.NumericToken == a.NumericToken {
			return nil, ErrConflict
		}
	}
	a.ID = uuid.New()
	r.appts[a.ID] = a
	r.created++
	return &a, nil
}

func (r *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	r.appts[id] = a
	return &a, nil
}

func (r *fakeRepo) SetSkipped(_ context.Context, id uuid.UUID, skipped bool) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.IsSkipped = skipped
	r.appts[id] = a
	return &a, nil
}

func (r *fakeRepo) FindStalePending(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.Status == StatusPending && a.ScheduledAt.Before(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type fakeDoctors map[string]schedule.Doctor

func (f fakeDoctors) GetDoctorByName(_ context.Context, name string) (*schedule.Doctor, error) {
	d, ok := f[name]
	if !ok {
		return nil, schedule.ErrDoctorNotFound
	}
	return &d, nil
}

// changingDoctors serves successive reads from reads, repeating the last.
type changingDoctors struct {
	mu    sync.Mutex
	reads []schedule.Doctor
	n     int
}

func (c *changingDoctors) GetDoctorByName(_ context.Context, name string) (*schedule.Doctor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.reads[min(c.n, len(c.reads)-1)]
	c.n++
	if d.Name != name {
		return nil, schedule.ErrDoctorNotFound
	}
	return &d, nil
}

type sentNotification struct {
	patientID uuid.UUID
	kind      notify.Kind
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, patientID uuid.UUID, kind notify.Kind, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{patientID: patientID, kind: kind})
	return nil
}

type busyLocker struct{}

func (busyLocker) WithDayLock(context.Context, string, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type fixture struct {
	repo     *fakeRepo
	notifier *recordingNotifier
	svc      *Service
	patient  Patient
	now      time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{repo: newFakeRepo(), notifier: &recordingNotifier{}, now: now}
	f.patient = f.repo.addPatient("Asha Kumar")

	d := morningDoctor()
	d.AdvanceBookingDays = 7
	cfg := config.Config{ClinicID: "clinic-1", Location: time.UTC, WalkInTokenAllotment: 3}
	f.svc = NewService(f.repo, fakeDoctors{d.Name: d}, redisclient.NoopLocker{}, cfg,
		WithClock(schedule.ClockFunc(func() time.Time { return f.now })),
		WithNotifier(f.notifier),
		WithLogger(logging.Discard()),
	)
	return f
}

func TestBookWalkInPlacesConsecutiveWalkIns(t *testing.T) {
	f := newFixture(t, at(9, 0))
	ctx := context.Background()

	first, est, err := f.svc.BookWalkIn(ctx, WalkInRequest{Doctor: "Dr. Meera Rao", PatientID: f.patient.ID})
	require.NoError(t, err)
	assert.Equal(t, "W001", first.TokenNumber)
	assert.Equal(t, "09:00 AM", first.Time)
	assert.Equal(t, "3 March 2025", first.Date)
	assert.Equal(t, 0, est.SlotIndex)
	assert.Equal(t, at(8, 45), first.CutOff)
	assert.Equal(t, at(9, 15), first.NoShowAt)

	second, est, err := f.svc.BookWalkIn(ctx, WalkInRequest{Doctor: "Dr. Meera Rao", PatientID: f.patient.ID})
	require.NoError(t, err)
	assert.Equal(t, "W002", second.TokenNumber)
	assert.Equal(t, "09:15 AM", second.Time)
	assert.Equal(t, 1, est.SlotIndex)

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, notify.KindWalkInToken, f.notifier.sent[0].kind)
	assert.Len(t, f.repo.events, 2)
}

func TestBookWalkInOutsideWindowWritesNothing(t *testing.T) {
	f := newFixture(t, at(8, 25))

	_, _, err := f.svc.BookWalkIn(context.Background(), WalkInRequest{Doctor: "Dr. Meera Rao", PatientID: f.patient.ID})
	assert.ErrorIs(t, err, ErrOutsideBookingWindow)
	assert.Zero(t, f.repo.created)
	assert.Empty(t, f.notifier.sent)
}

func TestBookWalkInValidation(t *testing.T) {
	f := newFixture(t, at(9, 0))
	ctx := context.Background()

	_, _, err := f.svc.BookWalkIn(ctx, WalkInRequest{Doctor: "Dr. Meera Rao"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = f.svc.BookWalkIn(ctx, WalkInRequest{Doctor: "Dr. Nobody", PatientID: f.patient.ID})
	assert.ErrorIs(t, err, schedule.ErrDoctorNotFound)

	_, _, err = f.svc.BookWalkIn(ctx, WalkInRequest{Doctor: "Dr. Meera Rao", PatientID: uuid.New()})
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestBookWalkInReportsBusyLedger(t *testing.T) {
	f := newFixture(t, at(9, 0))
	f.svc.locker = busyLocker{}

	_, _, err := f.svc.BookWalkIn(context.Background(), WalkInRequest{Doctor: "Dr. Meera Rao", PatientID: f.patient.ID})
	assert.ErrorIs(t, err, ErrLedgerBusy)
	assert.Zero(t, f.repo.created)
}

func TestBookAdvancedSharesTokenSequence(t *testing.T) {
	f := newFixture(t, at(9, 0))
	ctx := context.Background()

	_, _, err := f.svc.BookWalkIn(ctx, WalkInRequest{Doctor: "Dr. Meera Rao", PatientID: f.patient.ID})
	require.NoError(t, err)

	appt, err := f.svc.BookAdvanced(ctx, AdvancedBookingRequest{
		Doctor: "Dr. Meera Rao", PatientID: f.patient.ID, Date: "2025-03-03", Time: "10:15 AM",
	})
	require.NoError(t, err)
	assert.Equal(t, "A002", appt.TokenNumber)
	assert.Equal(t, 2, appt.NumericToken)
	assert.Equal(t, 5, appt.SlotIndex)
	assert.Equal(t, ChannelAdvanced, appt.BookedVia)
	assert.Equal(t, at(10, 15), appt.ScheduledAt)
	assert.Equal(t, notify.KindBookingConfirmed, f.notifier.sent[1].kind)
}

func TestBookAdvancedRejections(t *testing.T) {
	f := newFixture(t, at(9, 0))
	ctx := context.Background()
	req := func(date, clock string) AdvancedBookingRequest {
		return AdvancedBookingRequest{Doctor: "Dr. Meera Rao", PatientID: f.patient.ID, Date: date, Time: clock}
	}

	_, err := f.svc.BookAdvanced(ctx, req("3 March 2025", "10:00 AM"))
	require.NoError(t, err)

	_, err = f.svc.BookAdvanced(ctx, req("3 March 2025", "10:00 AM"))
	assert.ErrorIs(t, err, ErrSlotTaken)

	_, err = f.svc.BookAdvanced(ctx, req("2025-03-03", "10:05 AM"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = f.svc.BookAdvanced(ctx, req("2025-03-03", "08:45 AM"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.BookAdvanced(ctx, req("2025-03-04", "10:00 AM"))
	assert.ErrorIs(t, err, ErrNoAvailability)

	_, err = f.svc.BookAdvanced(ctx, req("2025-03-17", "10:00 AM"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.BookAdvanced(ctx, req("", "10:00 AM"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, 1, f.repo.created)
}

func TestBookAdvancedRefusesBreakSlots(t *testing.T) {
	f := newFixture(t, at(8, 0))
	d := morningDoctor()
	d.Leave = schedule.LeaveSet{}.With(at(10, 0), at(10, 15))
	f.svc.doctors = fakeDoctors{d.Name: d}

	_, err := f.svc.BookAdvanced(context.Background(), AdvancedBookingRequest{
		Doctor: d.Name, PatientID: f.patient.ID, Date: "2025-03-03", Time: "10:15 AM",
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBookAdvancedAfterBreakShiftsArrival(t *testing.T) {
	f := newFixture(t, at(8, 0))
	d := morningDoctor()
	d.Leave = schedule.LeaveSet{}.With(at(10, 0), at(10, 15))
	f.svc.doctors = fakeDoctors{d.Name: d}
	earlier := booked(ChannelAdvanced, 1, "10:45 AM", StatusPending).WithDerivedTimes(at(10, 45), 30*time.Minute)
	f.repo.add(earlier)

	appt, err := f.svc.BookAdvanced(context.Background(), AdvancedBookingRequest{
		Doctor: d.Name, PatientID: f.patient.ID, Date: "2025-03-03", Time: "11:00 AM",
	})
	require.NoError(t, err)
	assert.Equal(t, "11:00 AM", appt.Time)
	assert.Equal(t, at(11, 0), appt.ScheduledAt)
	assert.Equal(t, at(11, 30), appt.ArriveBy)
	assert.Equal(t, at(11, 15), appt.CutOff)
	assert.Equal(t, at(11, 45), appt.NoShowAt)
	assert.True(t, appt.ArriveBy.After(earlier.ArriveBy))

	before, err := f.svc.BookAdvanced(context.Background(), AdvancedBookingRequest{
		Doctor: d.Name, PatientID: f.patient.ID, Date: "2025-03-03", Time: "09:45 AM",
	})
	require.NoError(t, err)
	assert.Equal(t, at(9, 45), before.ArriveBy)
}

func TestBookAdvancedRechecksBreaksUnderLock(t *testing.T) {
	f := newFixture(t, at(8, 0))
	free := morningDoctor()
	onBreak := morningDoctor()
	onBreak.Leave = schedule.LeaveSet{}.With(at(10, 15))
	f.svc.doctors = &changingDoctors{reads: []schedule.Doctor{free, onBreak}}

	_, err := f.svc.BookAdvanced(context.Background(), AdvancedBookingRequest{
		Doctor: free.Name, PatientID: f.patient.ID, Date: "2025-03-03", Time: "10:15 AM",
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Zero(t, f.repo.created)
	assert.Empty(t, f.notifier.sent)
}

func TestBookWalkInReplansUnderLock(t *testing.T) {
	f := newFixture(t, at(9, 0))
	free := morningDoctor()
	onBreak := morningDoctor()
	onBreak.Leave = schedule.LeaveSet{}.With(at(9, 0), at(9, 15))
	f.svc.doctors = &changingDoctors{reads: []schedule.Doctor{free, onBreak}}

	appt, est, err := f.svc.BookWalkIn(context.Background(), WalkInRequest{Doctor: free.Name, PatientID: f.patient.ID})
	require.NoError(t, err)
	assert.Equal(t, "09:30 AM", appt.Time)
	assert.Equal(t, 2, est.SlotIndex)
	assert.Equal(t, at(10, 0), appt.ArriveBy)
	assert.Equal(t, at(9, 45), appt.CutOff)
	assert.Equal(t, at(10, 15), appt.NoShowAt)
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	f := newFixture(t, at(9, 0))
	ctx := context.Background()
	a := f.repo.add(booked(ChannelAdvanced, 1, "09:30 AM", StatusPending))

	updated, err := f.svc.UpdateStatus(ctx, a.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	_, err = f.svc.UpdateStatus(ctx, a.ID, StatusPending)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = f.svc.UpdateStatus(ctx, a.ID, "Rescheduled")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UpdateStatus(ctx, uuid.New(), StatusCompleted)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestSetSkipped(t *testing.T) {
	f := newFixture(t, at(9, 0))
	ctx := context.Background()
	pending := f.repo.add(booked(ChannelAdvanced, 1, "09:30 AM", StatusPending))
	done := f.repo.add(booked(ChannelAdvanced, 2, "09:45 AM", StatusCompleted))

	updated, err := f.svc.SetSkipped(ctx, pending.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsSkipped)

	_, err = f.svc.SetSkipped(ctx, done.ID, true)
	assert.ErrorIs(t, err, ErrSkipNotAllowed)
}

func TestSweepNoShowsIsIdempotent(t *testing.T) {
	f := newFixture(t, at(11, 0))
	ctx := context.Background()

	withSlot := func(a Appointment, slot time.Time) Appointment {
		a.ScheduledAt = slot
		return f.repo.add(a)
	}
	stale := withSlot(booked(ChannelAdvanced, 1, "09:00 AM", StatusPending), at(9, 0))
	future := withSlot(booked(ChannelAdvanced, 2, "11:30 AM", StatusPending), at(11, 30))
	confirmed := withSlot(booked(ChannelAdvanced, 3, "09:15 AM", StatusConfirmed), at(9, 15))
	completed := withSlot(booked(ChannelWalkIn, 4, "09:30 AM", StatusCompleted), at(9, 30))

	swept, err := f.svc.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	swept, err = f.svc.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)

	assert.Equal(t, StatusNoShow, f.repo.appts[stale.ID].Status)
	assert.Equal(t, StatusPending, f.repo.appts[future.ID].Status)
	assert.Equal(t, StatusConfirmed, f.repo.appts[confirmed.ID].Status)
	assert.Equal(t, StatusCompleted, f.repo.appts[completed.ID].Status)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notify.KindNoShow, f.notifier.sent[0].kind)
}

func TestDayLedgerAndBoard(t *testing.T) {
	f := newFixture(t, at(9, 0))
	ctx := context.Background()
	f.repo.add(booked(ChannelAdvanced, 1, "09:30 AM", StatusPending))
	f.repo.add(booked(ChannelWalkIn, 2, "09:00 AM", StatusNoShow))

	walkIns, err := f.svc.DayLedger(ctx, "Dr. Meera Rao", "2025-03-03", Filter{BookedVia: ChannelWalkIn})
	require.NoError(t, err)
	require.Len(t, walkIns, 1)
	assert.Equal(t, "W002", walkIns[0].TokenNumber)

	board, err := f.svc.Board(ctx, "Dr. Meera Rao", "3 March 2025")
	require.NoError(t, err)
	require.Len(t, board, 12)
	assert.Equal(t, SlotVacant, board[0].Status)
	assert.Equal(t, SlotAvailable, board[1].Status)
	assert.Equal(t, SlotAdvanced, board[2].Status)

	_, err = f.svc.DayLedger(ctx, "Dr. Meera Rao", "yesterday", Filter{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterPatientValidatesPhone(t *testing.T) {
	f := newFixture(t, at(9, 0))
	ctx := context.Background()

	_, err := f.svc.RegisterPatient(ctx, PatientInput{Name: "Ravi", Phone: "9876543210"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.RegisterPatient(ctx, PatientInput{Phone: "+919876543210"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err := f.svc.RegisterPatient(ctx, PatientInput{Name: " Ravi ", Age: 34, Sex: "M", Phone: "+91 98765 43210"})
	require.NoError(t, err)
	assert.Equal(t, "Ravi", p.Name)
	assert.Equal(t, "+919876543210", p.Phone)
	assert.Equal(t, []string{"clinic-1"}, p.ClinicIDs)
}

func TestPreviewWalkInDoesNotWrite(t *testing.T) {
	f := newFixture(t, at(9, 0))

	est, err := f.svc.PreviewWalkIn(context.Background(), "Dr. Meera Rao")
	require.NoError(t, err)
	assert.Equal(t, at(9, 0), est.EstimatedTime)
	assert.Equal(t, 1, est.NumericToken)
	assert.Zero(t, f.repo.created)
}
