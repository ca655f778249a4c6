package breaks

import (
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/clinic-queue-scheduling/internal/appointment"
	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
)

var (
	ErrNoAvailability   = errors.New("doctor has no availability on this date")
	ErrInvalidSelection = errors.New("invalid break selection")
	ErrOverlapsBreak    = errors.New("selection overlaps or touches an existing break")
	ErrInvalidExtension = errors.New("extension choice not offered for this break")
	ErrBreakNotFound    = errors.New("no break starts at that time")
	ErrCancelTooLate    = errors.New("break cancellation too close to session start")
)

// CancelLead is how long before the day's first session a break must be cancelled.
const CancelLead = 60 * time.Minute

type ExtensionKind string

const (
	ExtendNone    ExtensionKind = "none"
	ExtendMinimal ExtensionKind = "minimal" // just enough for already-booked patients
	ExtendFull    ExtensionKind = "full"    // restores the day's slot capacity
)

type ExtensionOption struct {
	Kind    ExtensionKind
	Minutes int
	NewEnd  time.Time
	Label   string
}

// Proposal is the analysis of a selected break before it is committed.
type Proposal struct {
	Start           time.Time // first selected slot
	EndSlot         time.Time // last selected slot
	End             time.Time // EndSlot plus one consulting interval
	Duration        time.Duration
	Session         schedule.SessionWindow
	LastTokenBefore time.Time // zero when the session has no bookings
	LastTokenAfter  time.Time
	Overrun         time.Duration
	Options         []ExtensionOption
}

func (p Proposal) HasOverrun() bool {
	return p.Overrun > 0
}

func (p Proposal) Option(kind ExtensionKind) (ExtensionOption, bool) {
	for _, o := range p.Options {
		if o.Kind == kind {
			return o, true
		}
	}
	return ExtensionOption{}, false
}

// Delta is the full set of writes a confirm or cancel produces.
type Delta struct {
	Day          time.Time
	Break        schedule.Interval
	Leave        schedule.LeaveSet
	Extensions   map[string]schedule.Extension
	Extension    *schedule.Extension // the day's extension after the change
	Appointments []appointment.Appointment
}

// Propose validates a [startSlot, endSlot] selection against the day's plan
// and works out how far the session would overrun.
func Propose(plan schedule.DayPlan, l appointment.Ledger, startSlot, endSlot time.Time) (Proposal, error) {
	if plan.Empty() {
		return Proposal{}, ErrNoAvailability
	}
	startIdx, endIdx := plan.IndexOf(startSlot), plan.IndexOf(endSlot)
	if startIdx < 0 || endIdx < 0 {
		return Proposal{}, fmt.Errorf("%w: both ends must be slots of %s", ErrInvalidSelection, schedule.DayKey(plan.Day))
	}
	if endIdx < startIdx {
		return Proposal{}, fmt.Errorf("%w: end slot is before start slot", ErrInvalidSelection)
	}

	sess, ok := plan.SessionAt(startSlot)
	if !ok || !sess.Contains(endSlot) {
		return Proposal{}, fmt.Errorf("%w: a break must stay inside one session", ErrInvalidSelection)
	}

	// Touching an existing break would merge the two on cancel.
	for t := startSlot.Add(-plan.Consulting); !t.After(endSlot.Add(plan.Consulting)); t = t.Add(plan.Consulting) {
		if plan.OnBreak(t) {
			return Proposal{}, ErrOverlapsBreak
		}
	}

	prop := Proposal{
		Start:    startSlot,
		EndSlot:  endSlot,
		End:      endSlot.Add(plan.Consulting),
		Duration: endSlot.Sub(startSlot) + plan.Consulting,
		Session:  sess,
	}

	prop.LastTokenBefore = lastBookedIn(sess, plan.Day, l)
	prop.LastTokenAfter = prop.LastTokenBefore
	if !prop.LastTokenBefore.IsZero() && !prop.LastTokenBefore.Before(startSlot) {
		prop.LastTokenAfter = prop.LastTokenBefore.Add(prop.Duration)
	}
	if !prop.LastTokenAfter.IsZero() && prop.LastTokenAfter.After(sess.End) {
		prop.Overrun = prop.LastTokenAfter.Sub(sess.End)
	}

	if prop.HasOverrun() {
		prop.Options = []ExtensionOption{
			option(ExtendMinimal, sess.End, prop.Overrun),
			option(ExtendFull, sess.End, prop.Duration),
		}
	} else {
		prop.Options = []ExtensionOption{
			option(ExtendFull, sess.End, prop.Duration),
			{Kind: ExtendNone, NewEnd: sess.End, Label: "no extension"},
		}
	}
	return prop, nil
}

func option(kind ExtensionKind, end time.Time, by time.Duration) ExtensionOption {
	minutes := int(by / time.Minute)
	newEnd := end.Add(by)
	return ExtensionOption{
		Kind:    kind,
		Minutes: minutes,
		NewEnd:  newEnd,
		Label:   fmt.Sprintf("extend to %s (+%d min)", newEnd.Format("15:04"), minutes),
	}
}

// lastBookedIn is the latest slot held by an active appointment in sess.
func lastBookedIn(sess schedule.SessionWindow, day time.Time, l appointment.Ledger) time.Time {
	var last time.Time
	for _, a := range l {
		if !a.Occupies() {
			continue
		}
		t, err := a.SlotOn(day)
		if err != nil || !sess.Contains(t) {
			continue
		}
		if t.After(last) {
			last = t
		}
	}
	return last
}

// Confirm turns a proposal and the chosen extension into the writes that
// record it: break markers, the merged extension and shifted arrival times.
func Confirm(d schedule.Doctor, l appointment.Ledger, prop Proposal, choice ExtensionKind) (Delta, error) {
	opt, ok := prop.Option(choice)
	if !ok {
		return Delta{}, fmt.Errorf("%w: %q", ErrInvalidExtension, choice)
	}

	day := schedule.Midnight(prop.Start, prop.Start.Location())
	consulting := d.ConsultingTime()

	next := d
	next.Leave = d.Leave.With(schedule.BreakMarkers(prop.Start, prop.EndSlot, consulting)...)
	next.Extensions = cloneExtensions(d.Extensions)

	if opt.Minutes > 0 {
		ext, err := mergeExtension(d, day, prop.Session, prop.Start, opt.Minutes)
		if err != nil {
			return Delta{}, err
		}
		next.Extensions[schedule.DayKey(day)] = ext
	}

	return finish(next, day, schedule.Interval{Start: prop.Start, End: prop.End}, l)
}

func mergeExtension(d schedule.Doctor, day time.Time, sess schedule.SessionWindow, breakStart time.Time, minutes int) (schedule.Extension, error) {
	origEnd := clockOf(sess.OriginalEnd)
	key := schedule.FormatClock(clockOf(breakStart))
	existing, ok := d.ExtensionOn(day)
	if !ok {
		return schedule.Extension{
			ExtendedBy:      minutes,
			OriginalEndTime: schedule.FormatClock(origEnd),
			NewEndTime:      schedule.FormatClock(origEnd + minutes),
			Breaks:          map[string]int{key: minutes},
		}, nil
	}

	recorded, err := schedule.ParseClock(existing.OriginalEndTime)
	if err != nil {
		return schedule.Extension{}, fmt.Errorf("extension on %s: %w", schedule.DayKey(day), err)
	}
	if recorded != origEnd {
		return schedule.Extension{}, fmt.Errorf("%w: %s already extends another session", ErrInvalidExtension, schedule.DayKey(day))
	}
	newEnd, err := schedule.ParseClock(existing.NewEndTime)
	if err != nil {
		return schedule.Extension{}, fmt.Errorf("extension on %s: %w", schedule.DayKey(day), err)
	}
	contributions := make(map[string]int, len(existing.Breaks)+1)
	for k, m := range existing.Breaks {
		contributions[k] = m
	}
	contributions[key] += minutes
	return schedule.Extension{
		ExtendedBy:      existing.ExtendedBy + minutes,
		OriginalEndTime: existing.OriginalEndTime,
		NewEndTime:      schedule.FormatClock(newEnd + minutes),
		Breaks:          contributions,
	}, nil
}

// Cancel removes the break starting at breakStart. It is refused within
// CancelLead of the day's first session. Arrival times are rederived from
// each appointment's own slot time, which is never rewritten.
func Cancel(d schedule.Doctor, plan schedule.DayPlan, l appointment.Ledger, breakStart, now time.Time) (Delta, error) {
	var iv schedule.Interval
	found := false
	for _, b := range plan.Breaks {
		if b.Start.Equal(breakStart) {
			iv, found = b, true
			break
		}
	}
	if !found {
		return Delta{}, ErrBreakNotFound
	}

	first, ok := plan.FirstSessionStart()
	if !ok {
		return Delta{}, ErrNoAvailability
	}
	if now.After(first.Add(-CancelLead)) {
		return Delta{}, ErrCancelTooLate
	}

	next := d
	next.Leave = d.Leave.Without(iv)
	next.Extensions = cloneExtensions(d.Extensions)

	key := schedule.DayKey(plan.Day)
	if ext, ok := d.ExtensionOn(plan.Day); ok {
		sess, inSession := plan.SessionAt(iv.Start)
		by, rest := contribution(ext, iv)
		if inSession && by > 0 && clockOf(sess.OriginalEnd) == mustClock(ext.OriginalEndTime) {
			reduced, keep := shrinkExtension(ext, sess, by, rest, plan.Day, l)
			switch {
			case keep:
			case reduced == nil:
				delete(next.Extensions, key)
			default:
				next.Extensions[key] = *reduced
			}
		}
	}

	return finish(next, plan.Day, iv, l)
}

// contribution sums the minutes ext records for breaks starting inside iv and
// returns the remaining record. An extension without a record falls back to
// the interval's own length.
func contribution(ext schedule.Extension, iv schedule.Interval) (time.Duration, map[string]int) {
	if ext.Breaks == nil {
		return iv.Duration(), nil
	}
	from, to := clockOf(iv.Start), clockOf(iv.End)
	var minutes int
	var rest map[string]int
	for k, m := range ext.Breaks {
		if c := mustClock(k); c >= from && c < to {
			minutes += m
			continue
		}
		if rest == nil {
			rest = make(map[string]int, len(ext.Breaks))
		}
		rest[k] = m
	}
	return time.Duration(minutes) * time.Minute, rest
}

// shrinkExtension takes a break's contribution back off an extension. keep
// is true when doing so would leave active appointments past the new end.
func shrinkExtension(ext schedule.Extension, sess schedule.SessionWindow, by time.Duration, rest map[string]int, day time.Time, l appointment.Ledger) (*schedule.Extension, bool) {
	minutes := int(by / time.Minute)
	remaining := ext.ExtendedBy - minutes

	newEnd := sess.OriginalEnd
	if remaining > 0 {
		newEnd = sess.End.Add(-by)
	}
	for _, a := range l {
		if a.Status.Terminal() {
			continue
		}
		t, err := a.SlotOn(day)
		if err != nil {
			continue
		}
		if !t.Before(newEnd) && t.Before(sess.End) && !t.Before(sess.Start) {
			return nil, true
		}
	}

	if remaining <= 0 {
		return nil, false
	}
	return &schedule.Extension{
		ExtendedBy:      remaining,
		OriginalEndTime: ext.OriginalEndTime,
		NewEndTime:      schedule.FormatClock(clockOf(newEnd)),
		Breaks:          rest,
	}, false
}

// finish replans the day with the updated leave and extensions and collects
// every waiting appointment whose arrival times change as a result.
func finish(next schedule.Doctor, day time.Time, iv schedule.Interval, l appointment.Ledger) (Delta, error) {
	plan, err := schedule.PlanDay(next, day)
	if err != nil {
		return Delta{}, fmt.Errorf("replan %s: %w", schedule.DayKey(day), err)
	}

	delta := Delta{
		Day:        day,
		Break:      iv,
		Leave:      next.Leave,
		Extensions: next.Extensions,
	}
	if ext, ok := next.ExtensionOn(day); ok {
		delta.Extension = &ext
	}
	delta.Appointments = Rederive(plan, l)
	return delta, nil
}

// Rederive recomputes arrive-by, cut-off and no-show instants for every
// waiting appointment in the ledger and returns those that changed. Each
// appointment is pushed back by the breaks that start at or before its slot
// in the same session.
func Rederive(plan schedule.DayPlan, l appointment.Ledger) []appointment.Appointment {
	var changed []appointment.Appointment
	for _, a := range l {
		if a.Status.Terminal() {
			continue
		}
		slot, err := a.SlotOn(plan.Day)
		if err != nil {
			continue
		}
		updated := a.WithDerivedTimes(slot, plan.ShiftFor(slot))
		if !updated.ArriveBy.Equal(a.ArriveBy) || !updated.CutOff.Equal(a.CutOff) || !updated.NoShowAt.Equal(a.NoShowAt) {
			changed = append(changed, updated)
		}
	}
	return changed
}

func cloneExtensions(in map[string]schedule.Extension) map[string]schedule.Extension {
	out := make(map[string]schedule.Extension, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clockOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func mustClock(s string) int {
	m, err := schedule.ParseClock(s)
	if err != nil {
		return -1
	}
	return m
}
