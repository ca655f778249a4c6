package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidAvailability = errors.New("invalid availability")

var weekdays = map[string]time.Weekday{
	"Sunday": time.Sunday, "Monday": time.Monday, "Tuesday": time.Tuesday,
	"Wednesday": time.Wednesday, "Thursday": time.Thursday, "Friday": time.Friday,
	"Saturday": time.Saturday,
}

// ValidateAvailability checks an availability edit: known weekdays, one entry
// per weekday, sessions that parse, run forward, come in order and do not
// overlap, and a consulting time of at least five minutes.
func ValidateAvailability(avail []DayAvailability, consultingMinutes int) error {
	if consultingMinutes != 0 && consultingMinutes < MinConsultingMinutes {
		return fmt.Errorf("%w: consulting time must be at least %d minutes", ErrInvalidAvailability, MinConsultingMinutes)
	}
	seen := make(map[string]bool, len(avail))
	for _, day := range avail {
		if _, ok := weekdays[day.Day]; !ok {
			return fmt.Errorf("%w: unknown day %q", ErrInvalidAvailability, day.Day)
		}
		if seen[day.Day] {
			return fmt.Errorf("%w: %s listed twice", ErrInvalidAvailability, day.Day)
		}
		seen[day.Day] = true

		prevEnd := -1
		for _, sess := range day.TimeSlots {
			from, err := ParseClock(sess.From)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidAvailability, day.Day, err)
			}
			to, err := ParseClock(sess.To)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidAvailability, day.Day, err)
			}
			if to <= from {
				return fmt.Errorf("%w: %s session %s-%s ends before it starts", ErrInvalidAvailability, day.Day, sess.From, sess.To)
			}
			if from < prevEnd {
				return fmt.Errorf("%w: %s session %s-%s overlaps or is out of order", ErrInvalidAvailability, day.Day, sess.From, sess.To)
			}
			prevEnd = to
		}
	}
	return nil
}

// PruneLeave drops leave markers that no longer fall inside a session of their
// weekday (taking that day's extension into account).
func PruneLeave(d Doctor) LeaveSet {
	out := LeaveSet{}
	keys := make([]string, 0, len(d.Leave))
	for k := range d.Leave {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		markers := d.Leave[key]
		if len(markers) == 0 {
			continue
		}
		plan, err := PlanDay(d, Midnight(markers[0], markers[0].Location()))
		if err != nil {
			continue
		}
		var kept []time.Time
		for _, m := range markers {
			if _, ok := plan.SessionAt(m); ok {
				kept = append(kept, m)
			}
		}
		if len(kept) > 0 {
			out[key] = kept
		}
	}
	return out
}
