package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-queue-scheduling/internal/db"
)

type PgRepository struct {
	pool db.Pool
}

func NewPgRepository(pool db.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, clinic_id, doctor, department, patient_id, patient_name, date, time,
	status, is_skipped, booked_via, token_number, numeric_token, slot_index,
	scheduled_at, arrive_by, cut_off, no_show_at, created_at, updated_at`

const patientColumns = `id, name, age, sex, phone, clinic_ids, related_patient_ids,
	total_appointments, created_at, updated_at`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var related []string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Age,
		&p.Sex,
		&p.Phone,
		&p.ClinicIDs,
		&related,
		&p.TotalAppointments,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	for _, s := range related {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("patient %s related id %q: %w", p.ID, s, err)
		}
		p.RelatedPatientIDs = append(p.RelatedPatientIDs, id)
	}
	return &p, nil
}

// ScanAppointment decodes one appointments row.
func ScanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status, channel string

	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.Doctor,
		&a.Department,
		&a.PatientID,
		&a.PatientName,
		&a.Date,
		&a.Time,
		&status,
		&a.IsSkipped,
		&channel,
		&a.TokenNumber,
		&a.NumericToken,
		&a.SlotIndex,
		&a.ScheduledAt,
		&a.ArriveBy,
		&a.CutOff,
		&a.NoShowAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = AppointmentStatus(status)
	a.BookedVia = Channel(channel)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := ScanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListDayForUpdate reads a doctor-day ledger inside tx, locking its rows.
func ListDayForUpdate(ctx context.Context, q db.Querier, doctor, date string) ([]Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor = $1 AND date = $2
		ORDER BY numeric_token ASC
		FOR UPDATE
	`, doctor, date)
	if err != nil {
		return nil, fmt.Errorf("list day for update: %w", err)
	}
	return scanAppointments(rows)
}

// SaveDerivedTimes writes an appointment's arrive-by, cut-off and no-show
// instants. The slot date and time are left alone.
func SaveDerivedTimes(ctx context.Context, q db.Querier, a Appointment) error {
	tag, err := q.Exec(ctx, `
		UPDATE appointments
		SET arrive_by = $2,
		    cut_off = $3,
		    no_show_at = $4,
		    updated_at = now()
		WHERE id = $1
	`, a.ID, a.ArriveBy, a.CutOff, a.NoShowAt)
	if err != nil {
		return fmt.Errorf("update derived times for %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	related := make([]string, 0, len(p.RelatedPatientIDs))
	for _, id := range p.RelatedPatientIDs {
		related = append(related, id.String())
	}
	if p.ClinicIDs == nil {
		p.ClinicIDs = []string{}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, age, sex, phone, clinic_ids, related_patient_ids, total_appointments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, now(), now())
		RETURNING `+patientColumns,
		p.ID, p.Name, p.Age, p.Sex, p.Phone, p.ClinicIDs, related)

	created, err := scanPatient(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: phone %s already registered", ErrInvalidInput, p.Phone)
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return created, nil
}

func (r *PgRepository) ListDay(ctx context.Context, doctor, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor = $1 AND date = $2
		ORDER BY numeric_token ASC
	`, doctor, date)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return ScanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	var created *Appointment
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (id, clinic_id, doctor, department, patient_id, patient_name, date, time,
				status, is_skipped, booked_via, token_number, numeric_token, slot_index,
				scheduled_at, arrive_by, cut_off, no_show_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
			RETURNING `+appointmentColumns,
			a.ID, a.ClinicID, a.Doctor, a.Department, a.PatientID, a.PatientName, a.Date, a.Time,
			string(a.Status), string(a.BookedVia), a.TokenNumber, a.NumericToken, a.SlotIndex,
			a.ScheduledAt, a.ArriveBy, a.CutOff, a.NoShowAt)

		appt, err := ScanAppointment(row)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert appointment: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO visit_history (patient_id, appointment_id, date, time, doctor, department, status, treatment)
			VALUES ($1, $2, $3, $4, $5, $6, $7, '')
		`, appt.PatientID, appt.ID, appt.Date, appt.Time, appt.Doctor, appt.Department, string(appt.Status)); err != nil {
			return fmt.Errorf("append visit history: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE patients
			SET total_appointments = total_appointments + 1,
			    updated_at = now()
			WHERE id = $1
		`, appt.PatientID)
		if err != nil {
			return fmt.Errorf("bump patient appointment count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrPatientNotFound
		}

		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	var updated *Appointment
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2,
			    updated_at = now()
			WHERE id = $1
			  AND status = $3
			RETURNING `+appointmentColumns, id, string(to), string(from))

		appt, err := ScanAppointment(row)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE visit_history
			SET status = $2
			WHERE appointment_id = $1
		`, id, string(to)); err != nil {
			return fmt.Errorf("update visit history: %w", err)
		}

		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) SetSkipped(ctx context.Context, id uuid.UUID, skipped bool) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET is_skipped = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status NOT IN ('Completed', 'Cancelled')
		RETURNING `+appointmentColumns, id, skipped)
	return ScanAppointment(row)
}

func (r *PgRepository) FindStalePending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'Pending'
		  AND scheduled_at < $1
		ORDER BY scheduled_at ASC
	`, now)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
