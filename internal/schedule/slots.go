package schedule

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoAvailability = errors.New("doctor has no availability on this day")

// GenerateSlots steps through each session from its start, emitting one slot
// per consulting interval while the slot start is before the session end.
// Sessions are concatenated in declaration order.
func GenerateSlots(sessions []Session, consulting time.Duration, day time.Time) ([]time.Time, error) {
	if consulting < MinConsultingMinutes*time.Minute {
		return nil, fmt.Errorf("consulting time %s below minimum of %d minutes", consulting, MinConsultingMinutes)
	}
	var slots []time.Time
	for _, sess := range sessions {
		from, err := At(day, sess.From)
		if err != nil {
			return nil, err
		}
		to, err := At(day, sess.To)
		if err != nil {
			return nil, err
		}
		for cur := from; cur.Before(to); cur = cur.Add(consulting) {
			slots = append(slots, cur)
		}
	}
	return slots, nil
}

// SessionWindow is a session resolved to instants on a concrete day.
type SessionWindow struct {
	Start       time.Time
	End         time.Time
	OriginalEnd time.Time // End before any extension
	FirstSlot   int
	SlotCount   int
}

func (w SessionWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DayPlan is a doctor's resolved schedule for one calendar day.
type DayPlan struct {
	Doctor     string
	Day        time.Time
	Consulting time.Duration
	Sessions   []SessionWindow
	Slots      []time.Time
	Breaks     []Interval
	Extension  *Extension
}

// PlanDay resolves the doctor's weekly template, any extension and any breaks
// recorded for day. day must already be in the clinic location.
func PlanDay(d Doctor, day time.Time) (DayPlan, error) {
	day = Midnight(day, day.Location())
	consulting := d.ConsultingTime()
	plan := DayPlan{Doctor: d.Name, Day: day, Consulting: consulting}

	sessions := d.SessionsFor(day.Weekday())
	if len(sessions) == 0 {
		return plan, nil
	}

	ext, hasExt := d.ExtensionOn(day)
	var extOrig, extNew int
	if hasExt {
		var err error
		if extOrig, err = ParseClock(ext.OriginalEndTime); err != nil {
			return plan, fmt.Errorf("extension on %s: %w", DayKey(day), err)
		}
		if extNew, err = ParseClock(ext.NewEndTime); err != nil {
			return plan, fmt.Errorf("extension on %s: %w", DayKey(day), err)
		}
		plan.Extension = &ext
	}

	effective := make([]Session, 0, len(sessions))
	for _, sess := range sessions {
		from, err := At(day, sess.From)
		if err != nil {
			return plan, err
		}
		toMin, err := ParseClock(sess.To)
		if err != nil {
			return plan, err
		}
		window := SessionWindow{Start: from, End: atMinutes(day, toMin), OriginalEnd: atMinutes(day, toMin)}
		to := sess.To
		if hasExt && toMin == extOrig {
			window.End = atMinutes(day, extNew)
			to = FormatClock(extNew)
		}
		plan.Sessions = append(plan.Sessions, window)
		effective = append(effective, Session{From: sess.From, To: to})
	}

	slots, err := GenerateSlots(effective, consulting, day)
	if err != nil {
		return plan, err
	}
	plan.Slots = slots

	for i := range plan.Sessions {
		w := &plan.Sessions[i]
		w.FirstSlot = -1
		for idx, s := range slots {
			if w.Contains(s) {
				if w.FirstSlot < 0 {
					w.FirstSlot = idx
				}
				w.SlotCount++
			}
		}
	}

	plan.Breaks = d.Leave.Intervals(day, consulting)
	return plan, nil
}

// Empty reports whether the doctor works at all on the plan's day.
func (p DayPlan) Empty() bool {
	return len(p.Slots) == 0
}

// IndexOf returns the slot index starting exactly at t, or -1.
func (p DayPlan) IndexOf(t time.Time) int {
	for i, s := range p.Slots {
		if s.Equal(t) {
			return i
		}
	}
	return -1
}

// OnBreak reports whether t falls inside a break.
func (p DayPlan) OnBreak(t time.Time) bool {
	for _, b := range p.Breaks {
		if b.Contains(t) {
			return true
		}
	}
	return false
}

// SessionAt returns the session containing t.
func (p DayPlan) SessionAt(t time.Time) (SessionWindow, bool) {
	for _, w := range p.Sessions {
		if w.Contains(t) {
			return w, true
		}
	}
	return SessionWindow{}, false
}

// ShiftFor is how far breaks push back the patient booked at slot: the
// summed length of breaks in the same session starting at or before it.
func (p DayPlan) ShiftFor(slot time.Time) time.Duration {
	sess, ok := p.SessionAt(slot)
	if !ok {
		return 0
	}
	var shift time.Duration
	for _, b := range p.Breaks {
		if sess.Contains(b.Start) && !b.Start.After(slot) {
			shift += b.Duration()
		}
	}
	return shift
}

// FirstSessionStart is the earliest session start of the day.
func (p DayPlan) FirstSessionStart() (time.Time, bool) {
	if len(p.Sessions) == 0 {
		return time.Time{}, false
	}
	first := p.Sessions[0].Start
	for _, w := range p.Sessions[1:] {
		if w.Start.Before(first) {
			first = w.Start
		}
	}
	return first, true
}
