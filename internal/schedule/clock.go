package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Wire formats shared with existing clinic data.
const (
	DateLayout    = "2 January 2006" // appointment date, e.g. "5 March 2025"
	TimeLayout    = "03:04 PM"       // appointment time, e.g. "09:45 AM"
	DayKeyLayout  = "2006-01-02"     // leave/extension keys
	clock24Layout = "15:04"
)

var clockLayouts = []string{TimeLayout, "3:04 PM", "03:04PM", "3:04PM", clock24Layout}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ParseClock parses a wall-clock time of day into minutes after midnight.
func ParseClock(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("unrecognised clock time %q", s)
}

// FormatClock renders minutes after midnight in TimeLayout.
func FormatClock(minutes int) string {
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute).Format(TimeLayout)
}

// Midnight returns the start of t's calendar day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// At combines a calendar day with a wall-clock time in the day's location.
func At(day time.Time, clock string) (time.Time, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return atMinutes(day, minutes), nil
}

func atMinutes(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}

// DayKey formats the yyyy-MM-dd key used for leave and extension records.
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

// DateLabel formats the human readable appointment date.
func DateLabel(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate accepts either a day key or an appointment date label and returns
// midnight of that day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DayKeyLayout, DateLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ParseSlot resolves an appointment's stored date label and time to an instant.
func ParseSlot(dateLabel, clock string, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(dateLabel, loc)
	if err != nil {
		return time.Time{}, err
	}
	return At(day, clock)
}
