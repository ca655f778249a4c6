package schedule

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultConsultingMinutes = 15
	MinConsultingMinutes     = 5
)

// Session is one contiguous availability window, [From, To).
type Session struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DayAvailability lists the sessions a doctor works on one weekday.
type DayAvailability struct {
	Day       string    `json:"day"`
	TimeSlots []Session `json:"timeSlots"`
}

// Extension records that a session end was pushed out on a date to absorb a break.
// Breaks maps each break's start clock to the minutes it added; it is nil on
// extensions written before contributions were tracked.
type Extension struct {
	ExtendedBy      int            `json:"extendedBy"`
	OriginalEndTime string         `json:"originalEndTime"`
	NewEndTime      string         `json:"newEndTime"`
	Breaks          map[string]int `json:"breaks,omitempty"`
}

type Doctor struct {
	ID                    uuid.UUID
	Name                  string
	Department            string
	AverageConsultingTime int // minutes
	AdvanceBookingDays    int
	FreeFollowUpDays      int
	Availability          []DayAvailability
	Leave                 LeaveSet
	Extensions            map[string]Extension
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ConsultingTime is the slot step. Absent values fall back to 15 minutes and
// anything below 5 minutes is clamped up.
func (d Doctor) ConsultingTime() time.Duration {
	return time.Duration(ConsultingMinutes(d.AverageConsultingTime)) * time.Minute
}

func ConsultingMinutes(m int) int {
	switch {
	case m <= 0:
		return DefaultConsultingMinutes
	case m < MinConsultingMinutes:
		return MinConsultingMinutes
	default:
		return m
	}
}

// SessionsFor returns the sessions declared for a weekday, in declaration order.
func (d Doctor) SessionsFor(day time.Weekday) []Session {
	for _, a := range d.Availability {
		if a.Day == day.String() {
			return a.TimeSlots
		}
	}
	return nil
}

// ExtensionOn returns the extension recorded for the day, if any.
func (d Doctor) ExtensionOn(day time.Time) (Extension, bool) {
	ext, ok := d.Extensions[DayKey(day)]
	return ext, ok
}
