package appointment

import (
	"time"

	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
)

const (
	BranchConsecutive = "consecutive" // past every advanced booking
	BranchSpaced      = "spaced"      // interleaved ahead of advanced bookings
	BranchFallback    = "fallback"    // spacing could not be honoured
)

// WalkInEstimate is where a new walk-in would land.
type WalkInEstimate struct {
	EstimatedTime time.Time
	PatientsAhead int
	NumericToken  int
	SlotIndex     int
	Branch        string
}

// EstimateWalkIn places a walk-in into the day's slot grid.
//
// Once the search point is past the last advanced booking the walk-in takes
// the first free slot. Before that, allotment free slots are left open ahead
// of it so advanced patients are not bumped; if the grid cannot honour that
// spacing the first free slot is used instead.
func EstimateWalkIn(plan schedule.DayPlan, l Ledger, now time.Time, allotment int) (WalkInEstimate, error) {
	if plan.Empty() {
		return WalkInEstimate{}, ErrNoAvailability
	}
	if allotment < 0 {
		allotment = 0
	}

	advanced := l.Advanced()
	walkIns := l.WalkIns()

	taken := make(map[int64]bool, len(l))
	for _, a := range l {
		if !a.Occupies() {
			continue
		}
		if t, err := a.SlotOn(plan.Day); err == nil {
			taken[t.Unix()] = true
		}
	}

	lastAdvanced := lastSlot(advanced, plan.Day)
	lastWalkIn := lastSlot(walkIns, plan.Day)

	searchStart := lastWalkIn
	if now.After(lastWalkIn) {
		searchStart = now
	}
	startIdx := searchStartIndex(plan.Slots, now, lastWalkIn)

	free := func(i int) bool {
		t := plan.Slots[i]
		return !taken[t.Unix()] && !plan.OnBreak(t)
	}

	chosen, branch := -1, BranchConsecutive
	if searchStart.After(lastAdvanced) {
		chosen = firstFree(startIdx, len(plan.Slots), free)
	} else {
		branch = BranchSpaced
		skipped := 0
		for i := startIdx; i < len(plan.Slots); i++ {
			if !free(i) {
				continue
			}
			if skipped < allotment {
				skipped++
				continue
			}
			chosen = i
			break
		}
	}
	if chosen < 0 {
		branch = BranchFallback
		chosen = firstFree(startIdx, len(plan.Slots), free)
	}
	if chosen < 0 {
		return WalkInEstimate{}, ErrNoWalkInSlots
	}

	estimated := plan.Slots[chosen]
	return WalkInEstimate{
		EstimatedTime: estimated,
		PatientsAhead: patientsAhead(l, plan.Day, now, estimated),
		NumericToken:  NextToken(l, ChannelWalkIn).Numeric,
		SlotIndex:     chosen,
		Branch:        branch,
	}, nil
}

// searchStartIndex finds the first slot at or after now that is also strictly
// after the most recent walk-in, or len(slots) if there is none.
func searchStartIndex(slots []time.Time, now, lastWalkIn time.Time) int {
	for i, s := range slots {
		if !s.Before(now) && s.After(lastWalkIn) {
			return i
		}
	}
	return len(slots)
}

func firstFree(from, to int, free func(int) bool) int {
	for i := from; i < to; i++ {
		if free(i) {
			return i
		}
	}
	return -1
}

// lastSlot is the slot time of the last appointment in ledger order, or the
// zero instant when there is none.
func lastSlot(l Ledger, day time.Time) time.Time {
	last, ok := l.Last()
	if !ok {
		return time.Time{}
	}
	t, err := last.SlotOn(day)
	if err != nil {
		return time.Time{}
	}
	return t
}

func patientsAhead(l Ledger, day, now, estimated time.Time) int {
	n := 0
	for _, a := range l {
		if !a.InQueue() {
			continue
		}
		t, err := a.SlotOn(day)
		if err != nil {
			continue
		}
		if t.After(now) && t.Before(estimated) {
			n++
		}
	}
	return n
}
