package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Interval is a half-open span of wall time, [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// LeaveSet holds break markers keyed by day. Each marker is the start instant
// of one slot the doctor is away for; markers for a day are kept sorted.
type LeaveSet map[string][]time.Time

// Markers returns a copy of the day's markers.
func (s LeaveSet) Markers(day time.Time) []time.Time {
	return append([]time.Time(nil), s[DayKey(day)]...)
}

// Clone deep-copies the set.
func (s LeaveSet) Clone() LeaveSet {
	out := make(LeaveSet, len(s))
	for k, v := range s {
		out[k] = append([]time.Time(nil), v...)
	}
	return out
}

// With returns a new set that also contains markers. Duplicates collapse.
func (s LeaveSet) With(markers ...time.Time) LeaveSet {
	out := s.Clone()
	for _, m := range markers {
		key := DayKey(m)
		if containsInstant(out[key], m) {
			continue
		}
		out[key] = append(out[key], m)
	}
	for k := range out {
		sortInstants(out[k])
	}
	return out
}

// Without returns a new set with every marker inside iv removed.
func (s LeaveSet) Without(iv Interval) LeaveSet {
	out := make(LeaveSet, len(s))
	for k, markers := range s {
		var kept []time.Time
		for _, m := range markers {
			if !iv.Contains(m) {
				kept = append(kept, m)
			}
		}
		if len(kept) > 0 {
			out[k] = kept
		}
	}
	return out
}

// Intervals merges the day's markers into contiguous breaks.
func (s LeaveSet) Intervals(day time.Time, step time.Duration) []Interval {
	return MergeMarkers(s[DayKey(day)], step)
}

// Covers reports whether t falls inside any break on its day.
func (s LeaveSet) Covers(t time.Time, step time.Duration) bool {
	for _, iv := range s.Intervals(t, step) {
		if iv.Contains(t) {
			return true
		}
	}
	return false
}

// MergeMarkers folds sorted markers into intervals. A marker that starts
// exactly where the previous one ends extends the current interval.
func MergeMarkers(markers []time.Time, step time.Duration) []Interval {
	if len(markers) == 0 {
		return nil
	}
	sorted := append([]time.Time(nil), markers...)
	sortInstants(sorted)

	var out []Interval
	cur := Interval{Start: sorted[0], End: sorted[0].Add(step)}
	for _, m := range sorted[1:] {
		if m.Equal(cur.End) {
			cur.End = m.Add(step)
			continue
		}
		if m.Before(cur.End) {
			continue
		}
		out = append(out, cur)
		cur = Interval{Start: m, End: m.Add(step)}
	}
	return append(out, cur)
}

// BreakMarkers expands an inclusive [start, end] slot selection into markers.
func BreakMarkers(start, end time.Time, step time.Duration) []time.Time {
	var out []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// legacyLeave is the older per-day object form of a leave entry.
type legacyLeave struct {
	Date  string    `json:"date"`
	Slots []Session `json:"slots"`
}

// DecodeLeave reads persisted leave entries. Entries are either flat RFC 3339
// markers or the legacy {date, slots} object; both come out as markers.
func DecodeLeave(raw []byte, step time.Duration, loc *time.Location) (LeaveSet, error) {
	set := LeaveSet{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return set, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode leave slots: %w", err)
	}

	var markers []time.Time
	for _, entry := range entries {
		entry = bytes.TrimSpace(entry)
		if len(entry) == 0 {
			continue
		}
		switch entry[0] {
		case '"':
			var s string
			if err := json.Unmarshal(entry, &s); err != nil {
				return nil, fmt.Errorf("decode leave marker: %w", err)
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("decode leave marker %q: %w", s, err)
			}
			markers = append(markers, t.In(loc))
		case '{':
			var legacy legacyLeave
			if err := json.Unmarshal(entry, &legacy); err != nil {
				return nil, fmt.Errorf("decode leave object: %w", err)
			}
			day, err := ParseDate(legacy.Date, loc)
			if err != nil {
				return nil, err
			}
			for _, sess := range legacy.Slots {
				from, err := At(day, sess.From)
				if err != nil {
					return nil, err
				}
				to, err := At(day, sess.To)
				if err != nil {
					return nil, err
				}
				for t := from; t.Before(to); t = t.Add(step) {
					markers = append(markers, t)
				}
			}
		default:
			return nil, fmt.Errorf("decode leave slots: unexpected entry %s", string(entry))
		}
	}
	return set.With(markers...), nil
}

// EncodeLeave writes the set in the flat marker form.
func EncodeLeave(s LeaveSet) ([]byte, error) {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []string{}
	for _, k := range keys {
		for _, m := range s[k] {
			out = append(out, m.Format(time.RFC3339))
		}
	}
	return json.Marshal(out)
}

func containsInstant(list []time.Time, t time.Time) bool {
	for _, v := range list {
		if v.Equal(t) {
			return true
		}
	}
	return false
}

func sortInstants(list []time.Time) {
	sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })
}
