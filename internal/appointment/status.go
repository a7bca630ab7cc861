package appointment

import "fmt"

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no-show"
)

var allStatuses = []AppointmentStatus{StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow}

func Statuses() []AppointmentStatus {
	return append([]AppointmentStatus(nil), allStatuses...)
}

func ParseStatus(s string) (AppointmentStatus, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s AppointmentStatus) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// CanTransition is the normal lifecycle: only a scheduled appointment moves,
// and only into a terminal status.
func CanTransition(from, to AppointmentStatus) bool {
	return from == StatusScheduled && to.IsTerminal()
}

// CanOverride is the staff override path. It also allows corrections between
// terminal statuses, but nothing may go back to scheduled because that would
// re-occupy an interval without a conflict check.
func CanOverride(from, to AppointmentStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return to.IsTerminal()
}
