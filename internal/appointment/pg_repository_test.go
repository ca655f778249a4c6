package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apptCols = []string{
	"id", "clinic_id", "doctor", "department", "patient_id", "patient_name", "date", "time",
	"status", "is_skipped", "booked_via", "token_number", "numeric_token", "slot_index",
	"scheduled_at", "arrive_by", "cut_off", "no_show_at", "created_at", "updated_at",
}

func apptRow(a Appointment) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(apptCols).AddRow(
		a.ID, a.ClinicID, a.Doctor, a.Department, a.PatientID, a.PatientName, a.Date, a.Time,
		string(a.Status), a.IsSkipped, string(a.BookedVia), a.TokenNumber, a.NumericToken, a.SlotIndex,
		a.ScheduledAt, a.ArriveBy, a.CutOff, a.NoShowAt, now, now,
	)
}

func sampleAppointment() Appointment {
	a := booked(ChannelWalkIn, 1, "09:00 AM", StatusPending)
	a.ID = uuid.New()
	a.ClinicID = "clinic-1"
	a.PatientID = uuid.New()
	a.PatientName = "Asha Kumar"
	a.ScheduledAt = at(9, 0)
	return a.WithDerivedTimes(at(9, 0), 0)
}

// insertArgs lists the INSERT parameters in column order.
func insertArgs(a Appointment) []any {
	return []any{
		a.ID, a.ClinicID, a.Doctor, a.Department, a.PatientID, a.PatientName, a.Date, a.Time,
		string(a.Status), string(a.BookedVia), a.TokenNumber, a.NumericToken, a.SlotIndex,
		a.ScheduledAt, a.ArriveBy, a.CutOff, a.NoShowAt,
	}
}

func TestCreateAppointmentWritesHistoryInOneTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := sampleAppointment()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").WithArgs(insertArgs(a)...).WillReturnRows(apptRow(a))
	mock.ExpectExec("INSERT INTO visit_history").
		WithArgs(a.PatientID, a.ID, a.Date, a.Time, a.Doctor, a.Department, string(StatusPending)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE patients").
		WithArgs(a.PatientID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	repo := NewPgRepository(mock)
	created, err := repo.CreateAppointment(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, a.ID, created.ID)
	assert.Equal(t, "W001", created.TokenNumber)
	assert.Equal(t, ChannelWalkIn, created.BookedVia)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointmentMapsUniqueViolationToConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := sampleAppointment()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(insertArgs(a)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_doctor_date_token_key"})
	mock.ExpectRollback()

	repo := NewPgRepository(mock)
	_, err = repo.CreateAppointment(context.Background(), a)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointmentRollsBackWhenPatientMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := sampleAppointment()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").WithArgs(insertArgs(a)...).WillReturnRows(apptRow(a))
	mock.ExpectExec("INSERT INTO visit_history").
		WithArgs(a.PatientID, a.ID, a.Date, a.Time, a.Doctor, a.Department, string(StatusPending)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE patients").WithArgs(a.PatientID).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	repo := NewPgRepository(mock)
	_, err = repo.CreateAppointment(context.Background(), a)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAppointmentStatusRequiresExpectedStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, string(StatusNoShow), string(StatusPending)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	repo := NewPgRepository(mock)
	_, err = repo.UpdateAppointmentStatus(context.Background(), id, StatusPending, StatusNoShow)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDayOrdersByToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := sampleAppointment()
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE doctor = \\$1 AND date = \\$2 ORDER BY numeric_token ASC").
		WithArgs(a.Doctor, a.Date).
		WillReturnRows(apptRow(a))

	repo := NewPgRepository(mock)
	list, err := repo.ListDay(context.Background(), a.Doctor, a.Date)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusPending, list[0].Status)
	assert.Equal(t, at(9, 15), list[0].NoShowAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPatientByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM patients").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	repo := NewPgRepository(mock)
	_, err = repo.GetPatientByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
