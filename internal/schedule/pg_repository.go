package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-queue-scheduling/internal/db"
)

var ErrDoctorNotFound = errors.New("doctor not found")

// Repository loads and edits doctor templates.
type Repository interface {
	GetDoctorByName(ctx context.Context, name string) (*Doctor, error)
	UpdateAvailability(ctx context.Context, name string, avail []DayAvailability, consultingMinutes int) (*Doctor, error)
}

type PgRepository struct {
	pool db.Pool
	loc  *time.Location
}

func NewPgRepository(pool db.Pool, loc *time.Location) *PgRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PgRepository{pool: pool, loc: loc}
}

const doctorColumns = `id, name, department, average_consulting_time, advance_booking_days,
	free_follow_up_days, availability_slots, leave_slots, availability_extensions, created_at, updated_at`

// ScanDoctor decodes a doctors row. Leave entries in either stored shape are
// normalised to markers here so nothing downstream branches on the shape.
func ScanDoctor(row pgx.Row, loc *time.Location) (*Doctor, error) {
	var d Doctor
	var avail, leave, exts []byte

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Department,
		&d.AverageConsultingTime,
		&d.AdvanceBookingDays,
		&d.FreeFollowUpDays,
		&avail,
		&leave,
		&exts,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if len(avail) > 0 {
		if err := json.Unmarshal(avail, &d.Availability); err != nil {
			return nil, fmt.Errorf("decode availability for %s: %w", d.Name, err)
		}
	}
	d.Leave, err = DecodeLeave(leave, d.ConsultingTime(), loc)
	if err != nil {
		return nil, fmt.Errorf("doctor %s: %w", d.Name, err)
	}
	d.Extensions = map[string]Extension{}
	if len(exts) > 0 && string(exts) != "null" {
		if err := json.Unmarshal(exts, &d.Extensions); err != nil {
			return nil, fmt.Errorf("decode extensions for %s: %w", d.Name, err)
		}
	}
	return &d, nil
}

// LoadDoctorForUpdate reads and row-locks a doctor inside tx.
func LoadDoctorForUpdate(ctx context.Context, q db.Querier, name string, loc *time.Location) (*Doctor, error) {
	row := q.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE name = $1 FOR UPDATE`, name)
	return ScanDoctor(row, loc)
}

// SaveLeave writes the doctor's leave markers and extensions.
func SaveLeave(ctx context.Context, q db.Querier, d *Doctor) error {
	leave, err := EncodeLeave(d.Leave)
	if err != nil {
		return fmt.Errorf("encode leave: %w", err)
	}
	exts := d.Extensions
	if exts == nil {
		exts = map[string]Extension{}
	}
	extJSON, err := json.Marshal(exts)
	if err != nil {
		return fmt.Errorf("encode extensions: %w", err)
	}
	tag, err := q.Exec(ctx, `
		UPDATE doctors
		SET leave_slots = $2,
		    availability_extensions = $3,
		    updated_at = now()
		WHERE id = $1
	`, d.ID, leave, extJSON)
	if err != nil {
		return fmt.Errorf("update doctor leave: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) GetDoctorByName(ctx context.Context, name string) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE name = $1`, name)
	return ScanDoctor(row, r.loc)
}

// UpdateAvailability replaces the weekly template and prunes leave markers
// orphaned by the edit, in one transaction.
func (r *PgRepository) UpdateAvailability(ctx context.Context, name string, avail []DayAvailability, consultingMinutes int) (*Doctor, error) {
	if err := ValidateAvailability(avail, consultingMinutes); err != nil {
		return nil, err
	}

	var updated *Doctor
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		d, err := LoadDoctorForUpdate(ctx, tx, name, r.loc)
		if err != nil {
			return err
		}
		d.Availability = avail
		if consultingMinutes > 0 {
			d.AverageConsultingTime = consultingMinutes
		}
		d.Leave = PruneLeave(*d)

		availJSON, err := json.Marshal(avail)
		if err != nil {
			return fmt.Errorf("encode availability: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE doctors
			SET availability_slots = $2,
			    average_consulting_time = $3,
			    updated_at = now()
			WHERE id = $1
		`, d.ID, availJSON, d.AverageConsultingTime); err != nil {
			return fmt.Errorf("update availability: %w", err)
		}
		if err := SaveLeave(ctx, tx, d); err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
