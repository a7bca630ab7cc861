package schedule

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Contains reports whether t lies in [Start, End).
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Within reports whether i lies entirely inside outer.
func (i Interval) Within(outer Interval) bool {
	return !i.Start.Before(outer.Start) && !i.End.After(outer.End)
}

// Overlaps reports whether two half-open intervals share any instant.
// Back-to-back intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// IsSlotBooked reports whether candidate overlaps any of the existing
// intervals. Callers pass only the scheduled appointments of the same
// practitioner on the same day.
func IsSlotBooked(candidate Interval, existing []Interval) bool {
	for _, e := range existing {
		if Overlaps(candidate, e) {
			return true
		}
	}
	return false
}
