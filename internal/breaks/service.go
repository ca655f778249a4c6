package breaks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-queue-scheduling/internal/appointment"
	"github.com/hackgods/clinic-queue-scheduling/internal/metrics"
	"github.com/hackgods/clinic-queue-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-queue-scheduling/internal/redis"
	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
	"github.com/hackgods/clinic-queue-scheduling/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.breaks")

// DayReader reads a doctor-day ledger outside any transaction.
type DayReader interface {
	ListDay(ctx context.Context, doctor, date string) ([]appointment.Appointment, error)
}

type Service struct {
	store    Store
	doctors  appointment.DoctorReader
	ledgers  DayReader
	locker   redisclient.Locker
	loc      *time.Location
	clock    schedule.Clock
	notifier notify.Notifier
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
}

type Option func(*Service)

func WithClock(c schedule.Clock) Option { return func(s *Service) { s.clock = c } }

func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *metrics.SchedulingMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *logging.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(store Store, doctors appointment.DoctorReader, ledgers DayReader, locker redisclient.Locker, loc *time.Location, opts ...Option) *Service {
	s := &Service{
		store:   store,
		doctors: doctors,
		ledgers: ledgers,
		locker:  locker,
		loc:     loc,
		clock:   schedule.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.locker == nil {
		s.locker = redisclient.NoopLocker{}
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

// Selection names a break by its first and last slot on a date.
type Selection struct {
	Doctor string
	Date   string // yyyy-MM-dd or "d MMMM yyyy"
	Start  string // clock time of the first slot
	End    string // clock time of the last slot
}

type selection struct {
	day        time.Time
	start, end time.Time
}

func (s *Service) parse(sel Selection) (selection, error) {
	if sel.Doctor == "" || sel.Date == "" || sel.Start == "" || sel.End == "" {
		return selection{}, fmt.Errorf("%w: doctor, date, start and end are required", ErrInvalidSelection)
	}
	day, err := schedule.ParseDate(sel.Date, s.loc)
	if err != nil {
		return selection{}, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}
	start, err := schedule.At(day, sel.Start)
	if err != nil {
		return selection{}, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}
	end, err := schedule.At(day, sel.End)
	if err != nil {
		return selection{}, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}
	return selection{day: day, start: start, end: end}, nil
}

// Propose analyses a break selection without writing anything.
func (s *Service) Propose(ctx context.Context, sel Selection) (Proposal, error) {
	p, err := s.parse(sel)
	if err != nil {
		return Proposal{}, err
	}
	d, err := s.doctors.GetDoctorByName(ctx, sel.Doctor)
	if err != nil {
		return Proposal{}, err
	}
	plan, err := schedule.PlanDay(*d, p.day)
	if err != nil {
		return Proposal{}, fmt.Errorf("plan day: %w", err)
	}
	appts, err := s.ledgers.ListDay(ctx, d.Name, schedule.DateLabel(p.day))
	if err != nil {
		return Proposal{}, fmt.Errorf("load ledger: %w", err)
	}
	return Propose(plan, appointment.NewLedger(appts), p.start, p.end)
}

// Confirm records the break and the chosen extension, shifting the arrival
// times of affected patients and notifying them.
func (s *Service) Confirm(ctx context.Context, sel Selection, choice ExtensionKind) (Proposal, Delta, error) {
	ctx, span := tracer.Start(ctx, "breaks.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.doctor", sel.Doctor), attribute.String("clinic.date", sel.Date))

	start := time.Now()
	prop, delta, err := s.confirm(ctx, sel, choice)
	s.metrics.ObserveBreak("confirm", metrics.Outcome(err))
	s.metrics.ObserveLatency("break_confirm", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return Proposal{}, Delta{}, err
	}

	s.notifyAffected(ctx, sel.Doctor, delta, notify.KindBreakScheduled)
	s.logger.Info("break confirmed",
		"doctor", sel.Doctor,
		"day", schedule.DayKey(delta.Day),
		"start", delta.Break.Start.Format(schedule.TimeLayout),
		"end", delta.Break.End.Format(schedule.TimeLayout),
		"extension", string(choice),
		"affected", len(delta.Appointments),
	)
	return prop, delta, nil
}

func (s *Service) confirm(ctx context.Context, sel Selection, choice ExtensionKind) (Proposal, Delta, error) {
	p, err := s.parse(sel)
	if err != nil {
		return Proposal{}, Delta{}, err
	}

	var prop Proposal
	var delta Delta
	err = s.withDayLock(ctx, sel.Doctor, p.day, func(lockCtx context.Context) error {
		delta, err = s.store.Apply(lockCtx, sel.Doctor, p.day, func(d schedule.Doctor, l appointment.Ledger) (Delta, error) {
			plan, err := schedule.PlanDay(d, p.day)
			if err != nil {
				return Delta{}, fmt.Errorf("plan day: %w", err)
			}
			prop, err = Propose(plan, l, p.start, p.end)
			if err != nil {
				return Delta{}, err
			}
			return Confirm(d, l, prop, choice)
		})
		return err
	})
	return prop, delta, err
}

// Cancel removes the break starting at start on date and restores the
// arrival times of affected patients.
func (s *Service) Cancel(ctx context.Context, doctor, date, start string) (Delta, error) {
	ctx, span := tracer.Start(ctx, "breaks.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.doctor", doctor), attribute.String("clinic.date", date))

	began := time.Now()
	delta, err := s.cancel(ctx, doctor, date, start)
	s.metrics.ObserveBreak("cancel", metrics.Outcome(err))
	s.metrics.ObserveLatency("break_cancel", time.Since(began).Seconds())
	if err != nil {
		span.RecordError(err)
		return Delta{}, err
	}

	s.notifyAffected(ctx, doctor, delta, notify.KindBreakCancelled)
	s.logger.Info("break cancelled",
		"doctor", doctor,
		"day", schedule.DayKey(delta.Day),
		"start", delta.Break.Start.Format(schedule.TimeLayout),
		"affected", len(delta.Appointments),
	)
	return delta, nil
}

func (s *Service) cancel(ctx context.Context, doctor, date, start string) (Delta, error) {
	if doctor == "" || date == "" || start == "" {
		return Delta{}, fmt.Errorf("%w: doctor, date and start are required", ErrInvalidSelection)
	}
	day, err := schedule.ParseDate(date, s.loc)
	if err != nil {
		return Delta{}, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}
	breakStart, err := schedule.At(day, start)
	if err != nil {
		return Delta{}, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}
	now := s.clock.Now().In(s.loc)

	var delta Delta
	err = s.withDayLock(ctx, doctor, day, func(lockCtx context.Context) error {
		delta, err = s.store.Apply(lockCtx, doctor, day, func(d schedule.Doctor, l appointment.Ledger) (Delta, error) {
			plan, err := schedule.PlanDay(d, day)
			if err != nil {
				return Delta{}, fmt.Errorf("plan day: %w", err)
			}
			if plan.Empty() {
				return Delta{}, ErrNoAvailability
			}
			return Cancel(d, plan, l, breakStart, now)
		})
		return err
	})
	return delta, err
}

func (s *Service) withDayLock(ctx context.Context, doctor string, day time.Time, fn func(ctx context.Context) error) error {
	err := s.locker.WithDayLock(ctx, doctor, schedule.DayKey(day), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return appointment.ErrLedgerBusy
	}
	return err
}

func (s *Service) notifyAffected(ctx context.Context, doctor string, delta Delta, kind notify.Kind) {
	for _, a := range delta.Appointments {
		notify.Send(ctx, s.notifier, s.logger, a.PatientID, kind, map[string]any{
			"doctor":       doctor,
			"date":         a.Date,
			"time":         a.Time,
			"token_number": a.TokenNumber,
			"arrive_by":    a.ArriveBy.Format(schedule.TimeLayout),
			"break_start":  delta.Break.Start.Format(schedule.TimeLayout),
			"break_end":    delta.Break.End.Format(schedule.TimeLayout),
		})
	}
}

// IsDomainError reports whether err is an expected break outcome.
func IsDomainError(err error) bool {
	for _, target := range []error{ErrNoAvailability, ErrOverlapsBreak, ErrInvalidExtension, ErrBreakNotFound, ErrCancelTooLate} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
