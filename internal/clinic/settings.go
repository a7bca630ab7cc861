package clinic

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hackgods/dental-clinic-scheduling/internal/schedule"
)

const (
	DateLayout      = "2006-01-02"
	DefaultTimezone = "Asia/Manila"
)

var ErrInvalidSettings = errors.New("invalid clinic settings")

// Settings is the clinic's weekly timetable, booking grid and closures.
// It is built once at startup and only read afterwards.
type Settings struct {
	WorkingHours        []WorkingHours
	SlotDurationMinutes int
	Holidays            []string
	Location            *time.Location

	holidays map[string]struct{}
}

type settingsFile struct {
	Timezone            string         `yaml:"timezone"`
	SlotDurationMinutes int            `yaml:"slot_duration_minutes"`
	Holidays            []string       `yaml:"holidays"`
	WorkingHours        []WorkingHours `yaml:"working_hours"`
}

// DefaultSettings returns the clinic's standard week: closed on weekends,
// 09:00-17:00 Monday to Wednesday, 09:00-18:00 Thursday, 09:00-16:00 Friday.
func DefaultSettings(loc *time.Location) *Settings {
	h := func(hour, minute int) TimeOfDay { return TimeOfDay{Hour: hour, Minute: minute} }

	s, err := NewSettings([]WorkingHours{
		{Weekday: time.Sunday, IsOpen: false, Start: h(9, 0), End: h(17, 0)},
		{Weekday: time.Monday, IsOpen: true, Start: h(9, 0), End: h(17, 0)},
		{Weekday: time.Tuesday, IsOpen: true, Start: h(9, 0), End: h(17, 0)},
		{Weekday: time.Wednesday, IsOpen: true, Start: h(9, 0), End: h(17, 0)},
		{Weekday: time.Thursday, IsOpen: true, Start: h(9, 0), End: h(18, 0)},
		{Weekday: time.Friday, IsOpen: true, Start: h(9, 0), End: h(16, 0)},
		{Weekday: time.Saturday, IsOpen: false, Start: h(9, 0), End: h(17, 0)},
	}, 30, []string{"2024-12-25", "2025-01-01"}, loc)
	if err != nil {
		panic(err)
	}
	return s
}

// NewSettings validates and indexes the given configuration.
func NewSettings(hours []WorkingHours, slotMinutes int, holidays []string, loc *time.Location) (*Settings, error) {
	if loc == nil {
		loc = time.UTC
	}

	s := &Settings{
		WorkingHours:        append([]WorkingHours(nil), hours...),
		SlotDurationMinutes: slotMinutes,
		Holidays:            append([]string(nil), holidays...),
		Location:            loc,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	sort.Slice(s.WorkingHours, func(i, j int) bool {
		return s.WorkingHours[i].Weekday < s.WorkingHours[j].Weekday
	})
	sort.Strings(s.Holidays)

	s.holidays = make(map[string]struct{}, len(s.Holidays))
	for _, d := range s.Holidays {
		s.holidays[d] = struct{}{}
	}

	return s, nil
}

// LoadSettings reads a YAML settings file. An empty timezone falls back to
// fallbackTZ.
func LoadSettings(path, fallbackTZ string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clinic settings: %w", err)
	}

	var f settingsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	tz := f.Timezone
	if tz == "" {
		tz = fallbackTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSettings, tz)
	}

	return NewSettings(f.WorkingHours, f.SlotDurationMinutes, f.Holidays, loc)
}

func (s *Settings) Validate() error {
	if s.SlotDurationMinutes <= 0 {
		return fmt.Errorf("%w: slot duration must be positive, got %d", ErrInvalidSettings, s.SlotDurationMinutes)
	}

	if len(s.WorkingHours) != 7 {
		return fmt.Errorf("%w: need 7 working hours entries, got %d", ErrInvalidSettings, len(s.WorkingHours))
	}

	var seen [7]bool
	for _, wh := range s.WorkingHours {
		if wh.Weekday < time.Sunday || wh.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidSettings, wh.Weekday)
		}
		if seen[wh.Weekday] {
			return fmt.Errorf("%w: duplicate entry for %s", ErrInvalidSettings, wh.Weekday)
		}
		seen[wh.Weekday] = true

		if wh.IsOpen && !wh.Start.Before(wh.End) {
			return fmt.Errorf("%w: %s opens at %s but closes at %s", ErrInvalidSettings, wh.Weekday, wh.Start, wh.End)
		}
	}

	for _, d := range s.Holidays {
		if _, err := time.Parse(DateLayout, d); err != nil {
			return fmt.Errorf("%w: holiday %q must be YYYY-MM-DD", ErrInvalidSettings, d)
		}
	}

	return nil
}

func (s *Settings) SlotDuration() time.Duration {
	return time.Duration(s.SlotDurationMinutes) * time.Minute
}

// HoursFor returns the entry for day. A day with no entry is closed.
func (s *Settings) HoursFor(day time.Weekday) WorkingHours {
	for _, wh := range s.WorkingHours {
		if wh.Weekday == day {
			return wh
		}
	}
	return WorkingHours{Weekday: day}
}

func (s *Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// ParseDate parses YYYY-MM-DD as midnight in the clinic's timezone.
func (s *Settings) ParseDate(v string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, v, s.location())
}

// FormatDate renders the clinic-local calendar day of t.
func (s *Settings) FormatDate(t time.Time) string {
	return t.In(s.location()).Format(DateLayout)
}

func (s *Settings) IsHoliday(date time.Time) bool {
	day := s.FormatDate(date)
	if s.holidays != nil {
		_, ok := s.holidays[day]
		return ok
	}
	for _, h := range s.Holidays {
		if h == day {
			return true
		}
	}
	return false
}

// DayBounds returns clinic-local midnight of date and of the following day.
func (s *Settings) DayBounds(date time.Time) (time.Time, time.Time) {
	loc := s.location()
	y, m, d := date.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// OpenInterval returns the clinic's operating window on the calendar day of
// date, or false when the clinic is closed that day (weekly closure or
// holiday).
func (s *Settings) OpenInterval(date time.Time) (schedule.Interval, bool) {
	loc := s.location()
	local := date.In(loc)
	wh := s.HoursFor(local.Weekday())
	if !wh.IsOpen || !wh.Start.Before(wh.End) || s.IsHoliday(local) {
		return schedule.Interval{}, false
	}

	y, m, d := local.Date()
	return schedule.Interval{
		Start: wh.Start.On(y, m, d, loc),
		End:   wh.End.On(y, m, d, loc),
	}, true
}
