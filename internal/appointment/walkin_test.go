package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
)

// 3 March 2025 is a Monday.
var monday = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return time.Date(2025, time.March, 3, h, m, 0, 0, time.UTC)
}

func morningDoctor() schedule.Doctor {
	return schedule.Doctor{
		Name:                  "Dr. Meera Rao",
		Department:            "General Medicine",
		AverageConsultingTime: 15,
		Availability: []schedule.DayAvailability{
			{Day: "Monday", TimeSlots: []schedule.Session{{From: "09:00 AM", To: "12:00 PM"}}},
		},
	}
}

func morningPlan(t *testing.T) schedule.DayPlan {
	t.Helper()
	plan, err := schedule.PlanDay(morningDoctor(), monday)
	require.NoError(t, err)
	require.Len(t, plan.Slots, 12)
	return plan
}

func booked(ch Channel, numeric int, clock string, status AppointmentStatus) Appointment {
	return Appointment{
		Doctor:       "Dr. Meera Rao",
		Date:         schedule.DateLabel(monday),
		Time:         clock,
		Status:       status,
		BookedVia:    ch,
		TokenNumber:  FormatToken(ch, numeric),
		NumericToken: numeric,
	}
}

func TestEstimateWalkInFirstWalkInTakesCurrentSlot(t *testing.T) {
	plan := morningPlan(t)

	est, err := EstimateWalkIn(plan, nil, at(9, 0), 3)
	require.NoError(t, err)

	assert.Equal(t, 0, est.SlotIndex)
	assert.Equal(t, at(9, 0), est.EstimatedTime)
	assert.Equal(t, 1, est.NumericToken)
	assert.Equal(t, 0, est.PatientsAhead)
	assert.Equal(t, BranchConsecutive, est.Branch)
}

func TestEstimateWalkInSecondWalkInIsConsecutive(t *testing.T) {
	plan := morningPlan(t)
	ledger := NewLedger([]Appointment{booked(ChannelWalkIn, 1, "09:00 AM", StatusPending)})

	est, err := EstimateWalkIn(plan, ledger, at(9, 0), 3)
	require.NoError(t, err)

	assert.Equal(t, 1, est.SlotIndex)
	assert.Equal(t, at(9, 15), est.EstimatedTime)
	assert.Equal(t, 2, est.NumericToken)
	assert.Equal(t, BranchConsecutive, est.Branch)
}

func TestEstimateWalkInLeavesSpacingAheadOfAdvancedBookings(t *testing.T) {
	plan := morningPlan(t)
	ledger := NewLedger([]Appointment{booked(ChannelAdvanced, 1, "10:15 AM", StatusPending)})

	est, err := EstimateWalkIn(plan, ledger, at(9, 0), 3)
	require.NoError(t, err)

	assert.Equal(t, 3, est.SlotIndex)
	assert.Equal(t, at(9, 45), est.EstimatedTime)
	assert.Equal(t, 2, est.NumericToken)
	assert.Equal(t, BranchSpaced, est.Branch)
}

func TestEstimateWalkInSpacingSkipsOccupiedSlots(t *testing.T) {
	plan := morningPlan(t)
	ledger := NewLedger([]Appointment{
		booked(ChannelAdvanced, 1, "09:15 AM", StatusConfirmed),
		booked(ChannelAdvanced, 2, "11:00 AM", StatusPending),
	})

	est, err := EstimateWalkIn(plan, ledger, at(9, 0), 2)
	require.NoError(t, err)

	// 09:00 and 09:30 are the two skipped free slots; 09:15 is taken.
	assert.Equal(t, at(9, 45), est.EstimatedTime)
	assert.Equal(t, 1, est.PatientsAhead)
	assert.Equal(t, 3, est.NumericToken)
}

func TestEstimateWalkInFallsBackWhenSpacingCannotBeHonoured(t *testing.T) {
	plan := morningPlan(t)
	ledger := NewLedger([]Appointment{booked(ChannelAdvanced, 1, "11:45 AM", StatusPending)})

	est, err := EstimateWalkIn(plan, ledger, at(11, 10), 3)
	require.NoError(t, err)

	// Only 11:15 and 11:30 remain free before the advanced booking.
	assert.Equal(t, BranchFallback, est.Branch)
	assert.Equal(t, at(11, 15), est.EstimatedTime)
}

func TestEstimateWalkInNoSlotsLeft(t *testing.T) {
	plan := morningPlan(t)

	_, err := EstimateWalkIn(plan, nil, at(12, 0), 3)
	assert.ErrorIs(t, err, ErrNoWalkInSlots)
}

func TestEstimateWalkInNoAvailability(t *testing.T) {
	d := morningDoctor()
	plan, err := schedule.PlanDay(d, monday.AddDate(0, 0, 1))
	require.NoError(t, err)

	_, err = EstimateWalkIn(plan, nil, at(9, 0), 3)
	assert.ErrorIs(t, err, ErrNoAvailability)
}

func TestEstimateWalkInAvoidsBreakSlots(t *testing.T) {
	d := morningDoctor()
	d.Leave = schedule.LeaveSet{}.With(at(9, 0), at(9, 15))
	plan, err := schedule.PlanDay(d, monday)
	require.NoError(t, err)

	est, err := EstimateWalkIn(plan, nil, at(9, 0), 3)
	require.NoError(t, err)
	assert.Equal(t, at(9, 30), est.EstimatedTime)
}

func TestEstimateWalkInReusesReleasedSlots(t *testing.T) {
	plan := morningPlan(t)
	ledger := NewLedger([]Appointment{
		booked(ChannelAdvanced, 1, "09:30 AM", StatusCancelled),
	})

	est, err := EstimateWalkIn(plan, ledger, at(9, 20), 0)
	require.NoError(t, err)
	assert.Equal(t, at(9, 30), est.EstimatedTime)
	assert.Equal(t, 2, est.NumericToken)
}

func TestPatientsAheadCountsOnlyActiveQueue(t *testing.T) {
	skipped := booked(ChannelAdvanced, 3, "09:45 AM", StatusPending)
	skipped.IsSkipped = true
	ledger := NewLedger([]Appointment{
		booked(ChannelAdvanced, 1, "09:15 AM", StatusPending),
		booked(ChannelAdvanced, 2, "09:30 AM", StatusCompleted),
		skipped,
		booked(ChannelWalkIn, 4, "10:00 AM", StatusConfirmed),
		booked(ChannelAdvanced, 5, "10:30 AM", StatusPending),
	})

	assert.Equal(t, 2, patientsAhead(ledger, monday, at(9, 0), at(10, 30)))
	assert.Equal(t, 0, patientsAhead(ledger, monday, at(9, 15), at(9, 15)))
}
