package breaks

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-queue-scheduling/internal/appointment"
	"github.com/hackgods/clinic-queue-scheduling/internal/db"
	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
)

// PlanFunc computes the writes for one doctor-day from its locked state.
type PlanFunc func(d schedule.Doctor, l appointment.Ledger) (Delta, error)

// Store applies a break change atomically: the doctor record and every
// affected appointment are written together or not at all.
type Store interface {
	Apply(ctx context.Context, doctor string, day time.Time, fn PlanFunc) (Delta, error)
}

type PgStore struct {
	pool db.Pool
	loc  *time.Location
}

func NewPgStore(pool db.Pool, loc *time.Location) *PgStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PgStore{pool: pool, loc: loc}
}

func (s *PgStore) Apply(ctx context.Context, doctor string, day time.Time, fn PlanFunc) (Delta, error) {
	var delta Delta
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		d, err := schedule.LoadDoctorForUpdate(ctx, tx, doctor, s.loc)
		if err != nil {
			return err
		}
		appts, err := appointment.ListDayForUpdate(ctx, tx, d.Name, schedule.DateLabel(day))
		if err != nil {
			return err
		}

		delta, err = fn(*d, appointment.NewLedger(appts))
		if err != nil {
			return err
		}

		d.Leave = delta.Leave
		d.Extensions = delta.Extensions
		if err := schedule.SaveLeave(ctx, tx, d); err != nil {
			return err
		}
		for _, a := range delta.Appointments {
			if err := appointment.SaveDerivedTimes(ctx, tx, a); err != nil {
				return fmt.Errorf("break on %s: %w", schedule.DayKey(day), err)
			}
		}
		return nil
	})
	if err != nil {
		return Delta{}, err
	}
	return delta, nil
}
