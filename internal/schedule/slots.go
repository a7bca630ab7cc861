package schedule

import "time"

// TimeSlot is a candidate start time and whether it can still be booked.
type TimeSlot struct {
	Time        time.Time `json:"time"`
	End         time.Time `json:"end"`
	IsAvailable bool      `json:"is_available"`
}

// GenerateSlots returns the candidate start times inside open, stepping by
// slot, for a service lasting service. Generation stops at the first start
// whose service would run past open.End.
func GenerateSlots(open Interval, slot, service time.Duration) []time.Time {
	if slot <= 0 || service <= 0 {
		return nil
	}

	var starts []time.Time
	for current := open.Start; !current.Add(service).After(open.End); current = current.Add(slot) {
		starts = append(starts, current)
	}
	return starts
}
