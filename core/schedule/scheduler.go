// Package schedule resolves what a device should be doing at any instant.
// Three layers compete for a device: explicit priority-ranked dispatches,
// direct control, and recurring weekly preferences. DeviceScheduler serves
// the first two from the time-series store, WeeklyScheduler serves the
// third, and Monitor applies the fallback order and change detection.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flexhaus/bems/core/model"
)

// ErrInvalidPriority is returned when a dispatch priority is outside [0,100].
var ErrInvalidPriority = errors.New("schedule: priority out of range [0,100]")

// ErrEmptyDispatch is returned when a schedule write carries no dispatches.
var ErrEmptyDispatch = errors.New("schedule: empty dispatch")

// ConflictError reports two weekly triggers sharing the same (day, time)
// slot. The ambiguity is fatal at load time and never silently resolved.
type ConflictError struct {
	Day       time.Weekday
	TimeOfDay model.MinuteOfDay
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("schedule: conflicting weekly triggers at %s %s", e.Day, e.TimeOfDay)
}

// Scheduler resolves the active schedule value at a point in time. The
// second return value reports whether any event covers the instant.
type Scheduler interface {
	EventData(ctx context.Context, at time.Time) (model.ScheduleEventData, bool, error)
}
