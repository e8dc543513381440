package schedule

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flexhaus/bems/core/model"
)

// subScheduleDoc mirrors the YAML layout of one named sub-schedule:
//
//	weekday:
//	  days: [MONDAY, TUESDAY, WEDNESDAY, THURSDAY, FRIDAY]
//	  events:
//	    - time: "06:00"
//	      value: 21.0
//	    - time: "22:00"
//	      value: 17.0
type subScheduleDoc struct {
	Days   []string   `yaml:"days"`
	Events []eventDoc `yaml:"events"`
}

type eventDoc struct {
	Time  string  `yaml:"time"`
	Value float64 `yaml:"value"`
}

// DecodeDocument parses a weekly schedule document. Structural problems
// (missing days or events, malformed times, unknown weekdays) fail the
// decode; trigger conflicts are left to NewWeeklyScheduler.
func DecodeDocument(name string, data []byte) (model.Schedule, error) {
	var doc map[string]subScheduleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return model.Schedule{}, fmt.Errorf("decode schedule %q: %w", name, err)
	}
	if len(doc) == 0 {
		return model.Schedule{}, fmt.Errorf("decode schedule %q: no sub-schedules", name)
	}

	names := make([]string, 0, len(doc))
	for sub := range doc {
		names = append(names, sub)
	}
	sort.Strings(names)

	sch := model.Schedule{Name: name}
	for _, subName := range names {
		sub := doc[subName]
		if len(sub.Days) == 0 {
			return model.Schedule{}, fmt.Errorf("schedule %q: sub-schedule %q has no days", name, subName)
		}
		if len(sub.Events) == 0 {
			return model.Schedule{}, fmt.Errorf("schedule %q: sub-schedule %q has no events", name, subName)
		}
		days := make([]time.Weekday, 0, len(sub.Days))
		for _, d := range sub.Days {
			day, err := model.ParseWeekday(d)
			if err != nil {
				return model.Schedule{}, fmt.Errorf("schedule %q: sub-schedule %q: %w", name, subName, err)
			}
			days = append(days, day)
		}
		events := make([]model.WeeklyScheduleEvent, 0, len(sub.Events))
		for _, ev := range sub.Events {
			tod, err := model.ParseClock(ev.Time)
			if err != nil {
				return model.Schedule{}, fmt.Errorf("schedule %q: sub-schedule %q: %w", name, subName, err)
			}
			events = append(events, model.WeeklyScheduleEvent{
				ID:        fmt.Sprintf("%s_%s", subName, ev.Time),
				Days:      days,
				TimeOfDay: tod,
				Value:     ev.Value,
			})
		}
		sch.Subs = append(sch.Subs, model.SubSchedule{Name: subName, Days: days, Events: events})
	}
	return sch, nil
}
