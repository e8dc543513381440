package schedule

import (
	"context"
	"time"

	"github.com/flexhaus/bems/core/model"
)

// WeeklyScheduler resolves a device's recurring preference value at an
// arbitrary instant. Weekly schedules are circular: a query before the
// first trigger of the week wraps backward to the last one.
type WeeklyScheduler struct {
	events  []model.WeeklyScheduleEvent
	version uint64
}

// NewWeeklyScheduler builds a scheduler from a decoded schedule and performs
// conflict detection: two triggers sharing a (day, time) slot make the
// schedule ambiguous and the load fails rather than picking one.
func NewWeeklyScheduler(sch model.Schedule, version uint64) (*WeeklyScheduler, error) {
	events := sch.Events()
	type slot struct {
		day time.Weekday
		tod model.MinuteOfDay
	}
	seen := make(map[slot]struct{})
	for _, ev := range events {
		for _, day := range ev.Days {
			key := slot{day, ev.TimeOfDay}
			if _, dup := seen[key]; dup {
				return nil, ConflictError{Day: day, TimeOfDay: ev.TimeOfDay}
			}
			seen[key] = struct{}{}
		}
	}
	return &WeeklyScheduler{events: events, version: version}, nil
}

// Version returns the version of the preference document this scheduler was
// built from.
func (w *WeeklyScheduler) Version() uint64 { return w.version }

// Event returns the trigger governing the given instant: the latest trigger
// at or before the query's time of day on the query's weekday, or, wrapping
// backward cyclically, the last trigger of the most recent prior day that
// has one. A scheduler with at least one event never returns no event.
func (w *WeeklyScheduler) Event(at time.Time) (model.WeeklyScheduleEvent, bool) {
	if len(w.events) == 0 {
		return model.WeeklyScheduleEvent{}, false
	}
	day := at.Weekday()
	tod := model.ClockOf(at)

	for back := 0; back < 8; back++ {
		d := time.Weekday((int(day) - back + 7*2) % 7)
		var (
			best  model.WeeklyScheduleEvent
			found bool
		)
		for _, ev := range w.events {
			if !ev.AppliesOn(d) {
				continue
			}
			// On the query day only triggers already past count; on
			// prior days the last trigger of the day wins.
			if back == 0 && ev.TimeOfDay > tod {
				continue
			}
			if !found || ev.TimeOfDay > best.TimeOfDay {
				best, found = ev, true
			}
		}
		if found {
			return best, true
		}
	}
	return model.WeeklyScheduleEvent{}, false
}

// EventData wraps Event into a resolved value with preference provenance.
// Change detection is the monitor's responsibility, since it compares across
// scheduler layers.
func (w *WeeklyScheduler) EventData(_ context.Context, at time.Time) (model.ScheduleEventData, bool, error) {
	ev, ok := w.Event(at)
	if !ok {
		return model.ScheduleEventData{}, false, nil
	}
	return model.ScheduleEventData{Value: ev.Value, Source: model.ControlPreferenceFallback}, true, nil
}
