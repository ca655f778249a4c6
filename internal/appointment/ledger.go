package appointment

import (
	"sort"
	"time"
)

// Ledger is one doctor-day of appointments ordered by NumericToken.
type Ledger []Appointment

func NewLedger(appts []Appointment) Ledger {
	l := append(Ledger(nil), appts...)
	sort.SliceStable(l, func(i, j int) bool { return l[i].NumericToken < l[j].NumericToken })
	return l
}

// Filter narrows a ledger. Zero fields match everything.
type Filter struct {
	BookedVia Channel
	Status    AppointmentStatus
}

func (l Ledger) Filter(f Filter) Ledger {
	var out Ledger
	for _, a := range l {
		if f.BookedVia != "" && a.BookedVia != f.BookedVia {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Advanced is every appointment not booked as a walk-in, in ledger order.
func (l Ledger) Advanced() Ledger {
	var out Ledger
	for _, a := range l {
		if !a.IsWalkIn() {
			out = append(out, a)
		}
	}
	return out
}

func (l Ledger) WalkIns() Ledger {
	return l.Filter(Filter{BookedVia: ChannelWalkIn})
}

func (l Ledger) Last() (Appointment, bool) {
	if len(l) == 0 {
		return Appointment{}, false
	}
	return l[len(l)-1], true
}

// AtTime returns the appointments whose slot starts at t on day. Slot times
// rather than stored indices identify a slot, since an extension to an
// earlier session shifts the indices of every later one.
func (l Ledger) AtTime(day, t time.Time) Ledger {
	var out Ledger
	for _, a := range l {
		if st, err := a.SlotOn(day); err == nil && st.Equal(t) {
			out = append(out, a)
		}
	}
	return out
}

// OccupantAt returns the appointment currently holding the slot at t, if any.
func (l Ledger) OccupantAt(day, t time.Time) (Appointment, bool) {
	for _, a := range l.AtTime(day, t) {
		if a.Occupies() {
			return a, true
		}
	}
	return Appointment{}, false
}
