package schedule

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/flexhaus/bems/core/logger"
	"github.com/flexhaus/bems/core/model"
	"github.com/flexhaus/bems/core/store"
)

// Measurement and tag names of the persisted dispatch layout. Key derivation
// is deterministic: one point per schedule event, tagged by device, control
// kind, priority tier and write batch.
const (
	dispatchMeasurement = "control_schedule"
	tagDeviceID         = "device_id"
	tagKind             = "kind"
	tagPriority         = "priority"
	tagControlType      = "control_type"
	tagWrittenAt        = "written_at"
	fieldValue          = "value"
	fieldEndUnix        = "end_unix"
)

// DeviceScheduler persists and resolves non-recurring, priority-ranked
// schedules for one device and control kind.
type DeviceScheduler struct {
	deviceID string
	kind     model.ControlKind
	ts       store.TimeSeries
	cfg      Config
	log      logger.Logger
	now      func() time.Time
}

// NewDeviceScheduler binds a scheduler to the given device and control kind.
func NewDeviceScheduler(deviceID string, kind model.ControlKind, ts store.TimeSeries, cfg Config, log logger.Logger) *DeviceScheduler {
	cfg.SetDefaults()
	return &DeviceScheduler{deviceID: deviceID, kind: kind, ts: ts, cfg: cfg, log: log, now: time.Now}
}

// SaveSchedule validates and persists a priority-ranked dispatch. Consecutive
// timestamp/value pairs become events: each event ends where the next begins,
// the last one after the configured horizon. Writing the same arguments twice
// persists the same resolution; later writes at the same priority supersede
// earlier ones via the written_at tie-break.
func (s *DeviceScheduler) SaveSchedule(ctx context.Context, priority int, dispatches map[time.Time]float64, fromDirectControl bool) error {
	if priority < 0 || priority > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, priority)
	}
	if len(dispatches) == 0 {
		return ErrEmptyDispatch
	}

	events, err := eventsFromDispatches(dispatches, s.cfg.Horizon())
	if err != nil {
		return err
	}

	controlType := model.ControlPriorityDispatch
	if fromDirectControl {
		controlType = model.ControlDirectControl
	}
	writtenAt := strconv.FormatInt(s.now().UnixNano(), 10)

	points := make([]store.Point, 0, len(events))
	for _, ev := range events {
		points = append(points, store.Point{
			Measurement: dispatchMeasurement,
			Tags: map[string]string{
				tagDeviceID:    s.deviceID,
				tagKind:        string(s.kind),
				tagPriority:    strconv.Itoa(priority),
				tagControlType: string(controlType),
				tagWrittenAt:   writtenAt,
			},
			Fields: map[string]float64{
				fieldValue:   ev.Value,
				fieldEndUnix: float64(ev.End.Unix()),
			},
			Time: ev.Start,
		})
	}
	if err := s.ts.WritePoints(ctx, points); err != nil {
		return fmt.Errorf("persist schedule for %s: %w", s.deviceID, err)
	}
	s.log.Infof("saved %d dispatch events for %s/%s at priority %d", len(events), s.deviceID, s.kind, priority)
	return nil
}

// eventsFromDispatches translates a timestamp→value mapping into ordered,
// non-overlapping schedule events. Timestamps are truncated to the second,
// matching the precision of the persisted layout.
func eventsFromDispatches(dispatches map[time.Time]float64, horizon time.Duration) ([]model.ScheduleEvent, error) {
	values := make(map[time.Time]float64, len(dispatches))
	times := make([]time.Time, 0, len(dispatches))
	for t, v := range dispatches {
		t = t.Truncate(time.Second)
		if _, dup := values[t]; dup {
			return nil, fmt.Errorf("schedule: duplicate dispatch timestamp %s", t)
		}
		values[t] = v
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	events := make([]model.ScheduleEvent, 0, len(times))
	for i, start := range times {
		end := start.Add(horizon)
		if i+1 < len(times) {
			end = times[i+1]
		}
		ev := model.ScheduleEvent{Start: start, End: end, Value: values[start]}
		if err := ev.Validate(); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// EventData returns the event covering `at` from the highest-priority tier
// that has one. Tiers with no covering event do not block fallback. Equal
// priorities resolve to the most recently written batch. The second return
// value is false when no tier covers the instant, signaling the caller to
// fall back to preferences.
func (s *DeviceScheduler) EventData(ctx context.Context, at time.Time) (model.ScheduleEventData, bool, error) {
	recs, err := s.ts.Query(ctx, store.QueryRequest{
		Measurement: dispatchMeasurement,
		Fields:      []string{fieldValue, fieldEndUnix},
		Tags:        map[string]string{tagDeviceID: s.deviceID, tagKind: string(s.kind)},
		Start:       at.Add(-s.cfg.Lookback()),
		Stop:        at.Add(time.Second),
	})
	if err != nil {
		return model.ScheduleEventData{}, false, fmt.Errorf("query schedule for %s: %w", s.deviceID, err)
	}

	var (
		best      store.Record
		bestPrio  = -1
		bestBatch = int64(-1)
		found     bool
	)
	for _, rec := range recs {
		end := time.Unix(int64(rec.Fields[fieldEndUnix]), 0)
		if at.Before(rec.Time) || !at.Before(end) {
			continue
		}
		prio, err := strconv.Atoi(rec.Tags[tagPriority])
		if err != nil {
			s.log.Warnf("malformed priority tag %q for %s", rec.Tags[tagPriority], s.deviceID)
			continue
		}
		batch, _ := strconv.ParseInt(rec.Tags[tagWrittenAt], 10, 64)
		if prio > bestPrio || (prio == bestPrio && batch > bestBatch) {
			best, bestPrio, bestBatch, found = rec, prio, batch, true
		}
	}
	if !found {
		return model.ScheduleEventData{}, false, nil
	}

	source := model.ControlType(best.Tags[tagControlType])
	if source != model.ControlDirectControl {
		source = model.ControlPriorityDispatch
	}
	return model.ScheduleEventData{Value: best.Fields[fieldValue], Source: source}, true, nil
}
