package model

import (
	"fmt"
	"sort"
	"time"
)

// MinuteOfDay is a wall-clock trigger time expressed in minutes since
// midnight, the granularity weekly schedules are written at.
type MinuteOfDay int

// ParseClock parses a "HH:MM" string into a MinuteOfDay.
func ParseClock(s string) (MinuteOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return MinuteOfDay(h*60 + m), nil
}

// ClockOf extracts the minute-of-day of a timestamp in its own location.
func ClockOf(t time.Time) MinuteOfDay {
	return MinuteOfDay(t.Hour()*60 + t.Minute())
}

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// ParseWeekday converts an upper-case day name ("MONDAY") to a time.Weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if weekdayName(d) == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func weekdayName(d time.Weekday) string {
	names := [...]string{"SUNDAY", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY"}
	return names[d]
}

// ScheduleEvent is a single non-recurring interval during which a device
// holds Value. Events within one schedule must not overlap; the writer
// enforces this and readers return the first covering match.
type ScheduleEvent struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Value float64   `json:"value"`
}

// Validate checks the interval ordering invariant.
func (e ScheduleEvent) Validate() error {
	if !e.Start.Before(e.End) {
		return fmt.Errorf("schedule event: end %s not after start %s", e.End, e.Start)
	}
	return nil
}

// Covers reports whether the event interval [Start, End) contains t.
func (e ScheduleEvent) Covers(t time.Time) bool {
	return !t.Before(e.Start) && t.Before(e.End)
}

// WeeklyScheduleEvent is one recurring weekly trigger. It marks a point in
// time, not an interval: its value applies from TimeOfDay until the next
// chronologically later trigger in the same schedule.
type WeeklyScheduleEvent struct {
	ID        string
	Days      []time.Weekday
	TimeOfDay MinuteOfDay
	Value     float64
}

// AppliesOn reports whether the trigger fires on the given weekday.
func (e WeeklyScheduleEvent) AppliesOn(d time.Weekday) bool {
	for _, day := range e.Days {
		if day == d {
			return true
		}
	}
	return false
}

// SubSchedule is one named group of weekly triggers ("weekday", "weekend",
// "allweek") sharing a day set.
type SubSchedule struct {
	Name   string
	Days   []time.Weekday
	Events []WeeklyScheduleEvent
}

// Schedule is an ordered, named collection of sub-schedules describing a
// device's recurring preference.
type Schedule struct {
	Name string
	Subs []SubSchedule
}

// Events returns all triggers across sub-schedules, ordered by
// (sub-schedule, time of day).
func (s Schedule) Events() []WeeklyScheduleEvent {
	var events []WeeklyScheduleEvent
	for _, sub := range s.Subs {
		evs := make([]WeeklyScheduleEvent, len(sub.Events))
		copy(evs, sub.Events)
		sort.Slice(evs, func(i, j int) bool { return evs[i].TimeOfDay < evs[j].TimeOfDay })
		events = append(events, evs...)
	}
	return events
}
