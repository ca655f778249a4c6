package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrConflict means a concurrent writer got to the doctor-day first.
	ErrConflict = errors.New("ledger changed concurrently, please retry")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	CreatePatient(ctx context.Context, p Patient) (*Patient, error)

	// Ledger reads, ordered by numeric token.
	ListDay(ctx context.Context, doctor, date string) ([]Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateAppointment inserts the appointment, appends the patient's visit
	// history and bumps their appointment count atomically.
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	SetSkipped(ctx context.Context, id uuid.UUID, skipped bool) (*Appointment, error)

	// No-show sweep
	FindStalePending(ctx context.Context, now time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
