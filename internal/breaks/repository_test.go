package breaks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-queue-scheduling/internal/appointment"
	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
)

var doctorCols = []string{
	"id", "name", "department", "average_consulting_time", "advance_booking_days",
	"free_follow_up_days", "availability_slots", "leave_slots", "availability_extensions",
	"created_at", "updated_at",
}

var apptCols = []string{
	"id", "clinic_id", "doctor", "department", "patient_id", "patient_name", "date", "time",
	"status", "is_skipped", "booked_via", "token_number", "numeric_token", "slot_index",
	"scheduled_at", "arrive_by", "cut_off", "no_show_at", "created_at", "updated_at",
}

func doctorRows(id uuid.UUID) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(doctorCols).AddRow(
		id, "Dr. Meera Rao", "General Medicine", 15, 7, 5,
		[]byte(`[{"day":"Monday","timeSlots":[{"from":"09:00 AM","to":"12:00 PM"},{"from":"02:00 PM","to":"05:00 PM"}]}]`),
		[]byte(`[]`),
		[]byte(`{}`),
		now, now,
	)
}

func apptRows(list ...appointment.Appointment) *pgxmock.Rows {
	rows := pgxmock.NewRows(apptCols)
	now := time.Now()
	for _, a := range list {
		rows.AddRow(
			a.ID, "clinic-1", a.Doctor, "General Medicine", a.PatientID, "Asha Kumar", a.Date, a.Time,
			string(a.Status), a.IsSkipped, string(a.BookedVia), a.TokenNumber, a.NumericToken, a.SlotIndex,
			a.ScheduledAt, a.ArriveBy, a.CutOff, a.NoShowAt, now, now,
		)
	}
	return rows
}

func TestPgStoreApplyWritesDoctorAndAppointmentsTogether(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	doctorID := uuid.New()
	waiting := appt(1, "04:45 PM", appointment.StatusPending)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM doctors WHERE name = \\$1 FOR UPDATE").
		WithArgs("Dr. Meera Rao").
		WillReturnRows(doctorRows(doctorID))
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE doctor = \\$1 AND date = \\$2 ORDER BY numeric_token ASC FOR UPDATE").
		WithArgs("Dr. Meera Rao", "3 March 2025").
		WillReturnRows(apptRows(waiting))
	mock.ExpectExec("UPDATE doctors SET leave_slots").
		WithArgs(doctorID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointments SET arrive_by").
		WithArgs(waiting.ID, at(17, 15), at(17, 0), at(17, 30)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	store := NewPgStore(mock, time.UTC)
	delta, err := store.Apply(context.Background(), "Dr. Meera Rao", monday, func(d schedule.Doctor, l appointment.Ledger) (Delta, error) {
		require.Len(t, l, 1)
		p, err := schedule.PlanDay(d, monday)
		if err != nil {
			return Delta{}, err
		}
		prop, err := Propose(p, l, at(15, 0), at(15, 15))
		if err != nil {
			return Delta{}, err
		}
		return Confirm(d, l, prop, ExtendFull)
	})
	require.NoError(t, err)

	require.Len(t, delta.Appointments, 1)
	assert.Equal(t, 30, delta.Extension.ExtendedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreApplyRollsBackOnPlanError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM doctors").
		WithArgs("Dr. Meera Rao").
		WillReturnRows(doctorRows(uuid.New()))
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs("Dr. Meera Rao", "3 March 2025").
		WillReturnRows(apptRows())
	mock.ExpectRollback()

	store := NewPgStore(mock, time.UTC)
	_, err = store.Apply(context.Background(), "Dr. Meera Rao", monday, func(schedule.Doctor, appointment.Ledger) (Delta, error) {
		return Delta{}, ErrCancelTooLate
	})
	assert.ErrorIs(t, err, ErrCancelTooLate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreApplyRollsBackWhenAppointmentVanished(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	doctorID := uuid.New()
	waiting := appt(1, "04:45 PM", appointment.StatusPending)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM doctors").
		WithArgs("Dr. Meera Rao").
		WillReturnRows(doctorRows(doctorID))
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs("Dr. Meera Rao", "3 March 2025").
		WillReturnRows(apptRows(waiting))
	mock.ExpectExec("UPDATE doctors SET leave_slots").
		WithArgs(doctorID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointments SET arrive_by").
		WithArgs(waiting.ID, at(17, 15), at(17, 0), at(17, 30)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	store := NewPgStore(mock, time.UTC)
	_, err = store.Apply(context.Background(), "Dr. Meera Rao", monday, func(d schedule.Doctor, l appointment.Ledger) (Delta, error) {
		moved := l[0].WithDerivedTimes(at(16, 45), 30*time.Minute)
		return Delta{Day: monday, Leave: d.Leave, Extensions: d.Extensions, Appointments: []appointment.Appointment{moved}}, nil
	})
	assert.True(t, errors.Is(err, appointment.ErrAppointmentNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
