package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-queue-scheduling/internal/config"
	"github.com/hackgods/clinic-queue-scheduling/internal/metrics"
	"github.com/hackgods/clinic-queue-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-queue-scheduling/internal/redis"
	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
	"github.com/hackgods/clinic-queue-scheduling/pkg/logging"
)

const (
	EventAppointmentCreated = "APPOINTMENT_CREATED"
	EventStatusChanged      = "APPOINTMENT_STATUS_CHANGED"
	EventSkipChanged        = "APPOINTMENT_SKIP_CHANGED"
	EventNoShowSwept        = "APPOINTMENT_NO_SHOW"
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrNoAvailability          = errors.New("doctor has no availability today")
	ErrNoWalkInSlots           = errors.New("no available walk-in slots remaining for today")
	ErrOutsideBookingWindow    = errors.New("walk-in outside booking window")
	ErrSlotUnavailable         = errors.New("slot is not part of the doctor's schedule")
	ErrSlotTaken               = errors.New("slot already booked")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrSkipNotAllowed          = errors.New("completed or cancelled appointments cannot be skipped")
	ErrLedgerBusy              = errors.New("doctor's ledger is being updated, please retry")
)

var phonePattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

var tracer = otel.Tracer("clinic.internal.appointment")

// DoctorReader loads doctor templates by name.
type DoctorReader interface {
	GetDoctorByName(ctx context.Context, name string) (*schedule.Doctor, error)
}

type Service struct {
	repo     Repository
	doctors  DoctorReader
	locker   redisclient.Locker
	cfg      config.Config
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

func NewService(repo Repository, doctors DoctorReader, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		doctors: doctors,
		locker:  locker,
		cfg:     cfg,
		clock:   schedule.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Location == nil {
		s.cfg.Location = time.UTC
	}
	if s.locker == nil {
		s.locker = redisclient.NoopLocker{}
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

type AdvancedBookingRequest struct {
	Doctor    string
	PatientID uuid.UUID
	Date      string // yyyy-MM-dd or "d MMMM yyyy"
	Time      string // "hh:mm a"
}

type WalkInRequest struct {
	Doctor    string
	PatientID uuid.UUID
}

type PatientInput struct {
	Name              string
	Age               int
	Sex               string
	Phone             string
	RelatedPatientIDs []uuid.UUID
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(s.cfg.Location)
}

// RegisterPatient validates and stores a new patient for this clinic.
func (s *Service) RegisterPatient(ctx context.Context, in PatientInput) (*Patient, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.ReplaceAll(strings.TrimSpace(in.Phone), " ", "")
	switch {
	case in.Name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case !phonePattern.MatchString(in.Phone):
		return nil, fmt.Errorf("%w: phone %q must include a country prefix, e.g. +919876543210", ErrInvalidInput, in.Phone)
	case in.Age < 0 || in.Age > 150:
		return nil, fmt.Errorf("%w: age %d out of range", ErrInvalidInput, in.Age)
	}

	return s.repo.CreatePatient(ctx, Patient{
		Name:              in.Name,
		Age:               in.Age,
		Sex:               in.Sex,
		Phone:             in.Phone,
		ClinicIDs:         []string{s.cfg.ClinicID},
		RelatedPatientIDs: in.RelatedPatientIDs,
	})
}

// BookAdvanced books a specific slot ahead of time with an A-prefixed token.
func (s *Service) BookAdvanced(ctx context.Context, req AdvancedBookingRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.book_advanced")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.doctor", req.Doctor), attribute.String("clinic.date", req.Date))

	start := time.Now()
	appt, err := s.bookAdvanced(ctx, req)
	s.metrics.ObserveBooking(string(ChannelAdvanced), outcome(err))
	s.metrics.ObserveLatency("book_advanced", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
	}
	return appt, err
}

func (s *Service) bookAdvanced(ctx context.Context, req AdvancedBookingRequest) (*Appointment, error) {
	if req.Doctor == "" || req.PatientID == uuid.Nil || req.Date == "" || req.Time == "" {
		return nil, fmt.Errorf("%w: doctor, patient, date and time are required", ErrInvalidInput)
	}
	day, err := schedule.ParseDate(req.Date, s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	slot, err := schedule.At(day, req.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	patient, err := s.repo.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	doctor, err := s.loadDoctor(ctx, req.Doctor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := schedule.Midnight(now, s.cfg.Location)
	if slot.Before(now) {
		return nil, fmt.Errorf("%w: slot %s has already passed", ErrInvalidInput, slot.Format(time.RFC3339))
	}
	if doctor.AdvanceBookingDays > 0 && day.After(today.AddDate(0, 0, doctor.AdvanceBookingDays)) {
		return nil, fmt.Errorf("%w: %s is more than %d days ahead", ErrInvalidInput, schedule.DayKey(day), doctor.AdvanceBookingDays)
	}

	if _, _, err := s.bookableSlot(doctor, day, slot); err != nil {
		return nil, err
	}

	var created *Appointment
	err = s.withDayLock(ctx, doctor.Name, day, func(lockCtx context.Context) error {
		// Breaks are confirmed under this same lock; replan from a fresh read.
		doctor, err := s.loadDoctor(lockCtx, doctor.Name)
		if err != nil {
			return err
		}
		plan, idx, err := s.bookableSlot(doctor, day, slot)
		if err != nil {
			return err
		}
		ledger, err := s.loadLedger(lockCtx, doctor.Name, day)
		if err != nil {
			return err
		}
		if _, taken := ledger.OccupantAt(day, slot); taken {
			return ErrSlotTaken
		}

		tok := NextToken(ledger, ChannelAdvanced)
		appt, err := s.repo.CreateAppointment(lockCtx, s.newAppointment(doctor, patient, plan, slot, idx, ChannelAdvanced, tok))
		if err != nil {
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrPatientNotFound) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCreate(ctx, created)
	return created, nil
}

// BookWalkIn places a same-day walk-in with a W-prefixed token.
func (s *Service) BookWalkIn(ctx context.Context, req WalkInRequest) (*Appointment, WalkInEstimate, error) {
	ctx, span := tracer.Start(ctx, "appointment.book_walkin")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.doctor", req.Doctor))

	start := time.Now()
	appt, est, err := s.bookWalkIn(ctx, req)
	s.metrics.ObserveBooking(string(ChannelWalkIn), outcome(err))
	s.metrics.ObserveLatency("book_walkin", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
	} else {
		s.metrics.ObserveWalkInBranch(est.Branch)
	}
	return appt, est, err
}

func (s *Service) bookWalkIn(ctx context.Context, req WalkInRequest) (*Appointment, WalkInEstimate, error) {
	if req.Doctor == "" || req.PatientID == uuid.Nil {
		return nil, WalkInEstimate{}, fmt.Errorf("%w: doctor and patient are required", ErrInvalidInput)
	}

	patient, err := s.repo.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, WalkInEstimate{}, err
		}
		return nil, WalkInEstimate{}, fmt.Errorf("load patient: %w", err)
	}
	doctor, err := s.loadDoctor(ctx, req.Doctor)
	if err != nil {
		return nil, WalkInEstimate{}, err
	}

	now := s.now()
	plan, err := s.walkInPlan(doctor, now)
	if err != nil {
		return nil, WalkInEstimate{}, err
	}

	var (
		created *Appointment
		est     WalkInEstimate
	)
	err = s.withDayLock(ctx, doctor.Name, plan.Day, func(lockCtx context.Context) error {
		doctor, err := s.loadDoctor(lockCtx, doctor.Name)
		if err != nil {
			return err
		}
		plan, err := s.walkInPlan(doctor, now)
		if err != nil {
			return err
		}
		ledger, err := s.loadLedger(lockCtx, doctor.Name, plan.Day)
		if err != nil {
			return err
		}
		est, err = EstimateWalkIn(plan, ledger, now, s.cfg.WalkInTokenAllotment)
		if err != nil {
			return err
		}

		tok := Token{Number: FormatToken(ChannelWalkIn, est.NumericToken), Numeric: est.NumericToken}
		appt, err := s.repo.CreateAppointment(lockCtx, s.newAppointment(doctor, patient, plan, est.EstimatedTime, est.SlotIndex, ChannelWalkIn, tok))
		if err != nil {
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrPatientNotFound) {
				return err
			}
			return fmt.Errorf("create walk-in: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, WalkInEstimate{}, err
	}

	s.afterCreate(ctx, created)
	return created, est, nil
}

// PreviewWalkIn computes where a walk-in would land right now without booking it.
func (s *Service) PreviewWalkIn(ctx context.Context, doctorName string) (WalkInEstimate, error) {
	doctor, err := s.loadDoctor(ctx, doctorName)
	if err != nil {
		return WalkInEstimate{}, err
	}
	now := s.now()
	plan, err := s.walkInPlan(doctor, now)
	if err != nil {
		return WalkInEstimate{}, err
	}
	ledger, err := s.loadLedger(ctx, doctor.Name, plan.Day)
	if err != nil {
		return WalkInEstimate{}, err
	}
	return EstimateWalkIn(plan, ledger, now, s.cfg.WalkInTokenAllotment)
}

func (s *Service) walkInPlan(doctor *schedule.Doctor, now time.Time) (schedule.DayPlan, error) {
	plan, err := schedule.PlanDay(*doctor, schedule.Midnight(now, s.cfg.Location))
	if err != nil {
		return plan, fmt.Errorf("plan day: %w", err)
	}
	if plan.Empty() {
		return plan, ErrNoAvailability
	}
	if !schedule.InBookingWindow(plan, now) {
		return plan, ErrOutsideBookingWindow
	}
	return plan, nil
}

// DayLedger returns a doctor-day ledger, optionally filtered.
func (s *Service) DayLedger(ctx context.Context, doctor, date string, f Filter) (Ledger, error) {
	day, err := schedule.ParseDate(date, s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ledger, err := s.loadLedger(ctx, doctor, day)
	if err != nil {
		return nil, err
	}
	return ledger.Filter(f), nil
}

// Board returns the day's slot grid with a display status per slot.
func (s *Service) Board(ctx context.Context, doctorName, date string) ([]BoardSlot, error) {
	day, err := schedule.ParseDate(date, s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	doctor, err := s.loadDoctor(ctx, doctorName)
	if err != nil {
		return nil, err
	}
	plan, err := schedule.PlanDay(*doctor, day)
	if err != nil {
		return nil, fmt.Errorf("plan day: %w", err)
	}
	ledger, err := s.loadLedger(ctx, doctor.Name, day)
	if err != nil {
		return nil, err
	}
	return Board(plan, ledger), nil
}

// UpdateStatus moves an appointment along its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !CanTransition(appt.Status, to) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventStatusChanged, map[string]any{
		"from": appt.Status,
		"to":   to,
	})
	return updated, nil
}

// SetSkipped flags an appointment as skipped in the queue without touching its status.
func (s *Service) SetSkipped(ctx context.Context, id uuid.UUID, skipped bool) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status == StatusCompleted || appt.Status == StatusCancelled {
		return nil, ErrSkipNotAllowed
	}

	updated, err := s.repo.SetSkipped(ctx, id, skipped)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("set skipped: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventSkipChanged, map[string]any{"skipped": skipped})
	return updated, nil
}

// SweepNoShows moves every Pending appointment whose slot has passed to
// No-show. Rows that changed status in the meantime are left alone, so the
// sweep can run any number of times.
func (s *Service) SweepNoShows(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "appointment.sweep_no_shows")
	defer span.End()

	now := s.now()
	candidates, err := s.repo.FindStalePending(ctx, now)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	swept := 0
	for _, appt := range candidates {
		if !appt.ScheduledAt.Before(now) {
			continue
		}
		updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusPending, StatusNoShow)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.logger.Error("failed to sweep appointment", "appointment_id", appt.ID, "error", err)
			}
			continue
		}
		swept++
		s.logEvent(ctx, updated.ID, EventNoShowSwept, map[string]any{
			"reason":       "worker",
			"scheduled_at": appt.ScheduledAt,
		})
		notify.Send(ctx, s.notifier, s.logger, updated.PatientID, notify.KindNoShow, map[string]any{
			"doctor": updated.Doctor,
			"date":   updated.Date,
			"time":   updated.Time,
		})
	}

	s.metrics.AddNoShows(swept)
	span.SetAttributes(attribute.Int("clinic.swept", swept))
	return swept, nil
}

func (s *Service) loadDoctor(ctx context.Context, name string) (*schedule.Doctor, error) {
	d, err := s.doctors.GetDoctorByName(ctx, name)
	if err != nil {
		if errors.Is(err, schedule.ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return d, nil
}

func (s *Service) loadLedger(ctx context.Context, doctor string, day time.Time) (Ledger, error) {
	appts, err := s.repo.ListDay(ctx, doctor, schedule.DateLabel(day))
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return NewLedger(appts), nil
}

func (s *Service) withDayLock(ctx context.Context, doctor string, day time.Time, fn func(ctx context.Context) error) error {
	err := s.locker.WithDayLock(ctx, doctor, schedule.DayKey(day), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrLedgerBusy
	}
	return err
}

// bookableSlot plans day and returns the index of slot, refusing slots off
// the grid or inside a break.
func (s *Service) bookableSlot(doctor *schedule.Doctor, day, slot time.Time) (schedule.DayPlan, int, error) {
	plan, err := schedule.PlanDay(*doctor, day)
	if err != nil {
		return plan, -1, fmt.Errorf("plan day: %w", err)
	}
	if plan.Empty() {
		return plan, -1, ErrNoAvailability
	}
	idx := plan.IndexOf(slot)
	if idx < 0 || plan.OnBreak(slot) {
		return plan, -1, ErrSlotUnavailable
	}
	return plan, idx, nil
}

// newAppointment derives arrival times from breaks already on the plan so a
// booking made after a break agrees with the rest of the ledger.
func (s *Service) newAppointment(d *schedule.Doctor, p *Patient, plan schedule.DayPlan, slot time.Time, idx int, ch Channel, tok Token) Appointment {
	a := Appointment{
		ClinicID:     s.cfg.ClinicID,
		Doctor:       d.Name,
		Department:   d.Department,
		PatientID:    p.ID,
		PatientName:  p.Name,
		Date:         schedule.DateLabel(plan.Day),
		Time:         slot.Format(schedule.TimeLayout),
		Status:       StatusPending,
		BookedVia:    ch,
		TokenNumber:  tok.Number,
		NumericToken: tok.Numeric,
		SlotIndex:    idx,
		ScheduledAt:  slot,
	}
	return a.WithDerivedTimes(slot, plan.ShiftFor(slot))
}

func (s *Service) afterCreate(ctx context.Context, appt *Appointment) {
	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"doctor":        appt.Doctor,
		"date":          appt.Date,
		"time":          appt.Time,
		"token_number":  appt.TokenNumber,
		"numeric_token": appt.NumericToken,
		"slot_index":    appt.SlotIndex,
		"booked_via":    appt.BookedVia,
	})

	kind := notify.KindBookingConfirmed
	if appt.IsWalkIn() {
		kind = notify.KindWalkInToken
	}
	notify.Send(ctx, s.notifier, s.logger, appt.PatientID, kind, map[string]any{
		"doctor":       appt.Doctor,
		"date":         appt.Date,
		"time":         appt.Time,
		"token_number": appt.TokenNumber,
	})
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor", appt.Doctor,
		"token", appt.TokenNumber,
		"slot_index", appt.SlotIndex,
	)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("failed to insert event log", "event_type", eventType, "appointment_id", appointmentID, "error", err)
	}
}

// IsDomainError reports whether err is an expected business outcome rather
// than an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrNoAvailability, ErrNoWalkInSlots, ErrOutsideBookingWindow,
		ErrSlotUnavailable, ErrSlotTaken, ErrInvalidStatusTransition, ErrSkipNotAllowed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrLedgerBusy):
		return "conflict"
	case IsDomainError(err):
		return "rejected"
	default:
		return metrics.Outcome(err)
	}
}
