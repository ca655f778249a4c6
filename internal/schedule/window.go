package schedule

import "time"

// WalkInLead is how far either side of a session the walk-in desk is shifted:
// it opens this long before a session starts and closes this long before it ends.
const WalkInLead = 30 * time.Minute

// InBookingWindow reports whether now lies inside
// [sessionStart-30m, sessionEnd-30m] for at least one session of the plan.
func InBookingWindow(p DayPlan, now time.Time) bool {
	for _, w := range p.Sessions {
		open := w.Start.Add(-WalkInLead)
		closeAt := w.End.Add(-WalkInLead)
		if !now.Before(open) && !now.After(closeAt) {
			return true
		}
	}
	return false
}
