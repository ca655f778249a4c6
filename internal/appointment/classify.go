package appointment

import (
	"time"

	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotAdvanced  SlotStatus = "advanced"
	SlotWalkIn    SlotStatus = "walkin"
	SlotSkipped   SlotStatus = "skipped"
	SlotCompleted SlotStatus = "completed"
	SlotVacant    SlotStatus = "vacant"
	SlotCancelled SlotStatus = "cancelled"
)

// ClassifySlot maps a slot index of plan to its display status. The
// appointment holding the slot wins; a slot with only released appointments
// reports the most recent one. Status-based labels take priority over the
// channel label.
func ClassifySlot(plan schedule.DayPlan, idx int, l Ledger) (SlotStatus, *Appointment) {
	if idx < 0 || idx >= len(plan.Slots) {
		return SlotAvailable, nil
	}
	t := plan.Slots[idx]
	entries := l.AtTime(plan.Day, t)
	if len(entries) == 0 {
		return SlotAvailable, nil
	}

	pick := entries[len(entries)-1]
	if occupant, ok := entries.OccupantAt(plan.Day, t); ok {
		pick = occupant
	}
	return classify(pick), &pick
}

func classify(a Appointment) SlotStatus {
	switch {
	case a.Status == StatusCompleted:
		return SlotCompleted
	case a.Status == StatusCancelled:
		return SlotCancelled
	case a.Status == StatusNoShow:
		return SlotVacant
	case a.IsSkipped:
		return SlotSkipped
	case a.IsWalkIn():
		return SlotWalkIn
	default:
		return SlotAdvanced
	}
}

// BoardSlot is one row of the front-desk slot board.
type BoardSlot struct {
	Index       int
	Time        time.Time
	Status      SlotStatus
	OnBreak     bool
	Appointment *Appointment
}

// Board classifies every slot of the day.
func Board(plan schedule.DayPlan, l Ledger) []BoardSlot {
	out := make([]BoardSlot, 0, len(plan.Slots))
	for i, t := range plan.Slots {
		status, appt := ClassifySlot(plan, i, l)
		out = append(out, BoardSlot{
			Index:       i,
			Time:        t,
			Status:      status,
			OnBreak:     plan.OnBreak(t),
			Appointment: appt,
		})
	}
	return out
}
