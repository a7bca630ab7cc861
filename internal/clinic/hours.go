package clinic

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeOfDay is a wall-clock time without a date or zone, e.g. 09:30.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q must be HH:MM", ErrInvalidSettings, s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.minutes() < o.minutes()
}

// On anchors the time of day to a calendar day in loc.
func (t TimeOfDay) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, t.Hour, t.Minute, 0, 0, loc)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *TimeOfDay) UnmarshalYAML(node *yaml.Node) error {
	return t.UnmarshalText([]byte(node.Value))
}

// WorkingHours is the opening window for one weekday.
type WorkingHours struct {
	Weekday time.Weekday `yaml:"weekday" json:"weekday"`
	IsOpen  bool         `yaml:"is_open" json:"is_open"`
	Start   TimeOfDay    `yaml:"start" json:"start"`
	End     TimeOfDay    `yaml:"end" json:"end"`
}
