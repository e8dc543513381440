package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flexhaus/bems/core/logger"
	"github.com/flexhaus/bems/core/model"
)

func newTestScheduler(ts *fakeTimeSeries) *DeviceScheduler {
	cfg := Config{}
	cfg.SetDefaults()
	return NewDeviceScheduler("thermostat_1", model.ControlSetpoint, ts, cfg, logger.NopLogger{})
}

func TestSaveScheduleValidation(t *testing.T) {
	s := newTestScheduler(&fakeTimeSeries{})
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	if err := s.SaveSchedule(ctx, -1, map[time.Time]float64{now: 1}, false); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority got %v", err)
	}
	if err := s.SaveSchedule(ctx, 101, map[time.Time]float64{now: 1}, false); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority got %v", err)
	}
	if err := s.SaveSchedule(ctx, 50, nil, false); !errors.Is(err, ErrEmptyDispatch) {
		t.Fatalf("expected ErrEmptyDispatch got %v", err)
	}
}

func TestSaveScheduleEventTranslation(t *testing.T) {
	ts := &fakeTimeSeries{}
	s := newTestScheduler(ts)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(30 * time.Minute)

	if err := s.SaveSchedule(ctx, 70, map[time.Time]float64{t0: 21, t1: 19}, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(ts.points) != 2 {
		t.Fatalf("expected 2 points got %d", len(ts.points))
	}
	// First event ends where the second begins.
	if end := int64(ts.points[0].Fields[fieldEndUnix]); end != t1.Unix() {
		t.Fatalf("first event end %d want %d", end, t1.Unix())
	}
	// Last event runs for the configured horizon.
	wantEnd := t1.Add(time.Minute).Unix()
	if end := int64(ts.points[1].Fields[fieldEndUnix]); end != wantEnd {
		t.Fatalf("last event end %d want %d", end, wantEnd)
	}
	if ts.points[0].Tags[tagControlType] != string(model.ControlPriorityDispatch) {
		t.Fatalf("unexpected control type tag %q", ts.points[0].Tags[tagControlType])
	}
}

func TestSaveScheduleDirectControlTag(t *testing.T) {
	ts := &fakeTimeSeries{}
	s := newTestScheduler(ts)
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	if err := s.SaveSchedule(context.Background(), 90, map[time.Time]float64{t0: 1}, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ts.points[0].Tags[tagControlType] != string(model.ControlDirectControl) {
		t.Fatalf("unexpected control type tag %q", ts.points[0].Tags[tagControlType])
	}
}

func TestEventDataHighestPriorityWins(t *testing.T) {
	ts := &fakeTimeSeries{}
	s := newTestScheduler(ts)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	if err := s.SaveSchedule(ctx, 30, map[time.Time]float64{t0: 18}, false); err != nil {
		t.Fatalf("save low: %v", err)
	}
	if err := s.SaveSchedule(ctx, 70, map[time.Time]float64{t0: 22}, false); err != nil {
		t.Fatalf("save high: %v", err)
	}

	data, ok, err := s.EventData(ctx, t0.Add(10*time.Second))
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if data.Value != 22 {
		t.Fatalf("expected priority 70 value 22, got %v", data.Value)
	}
	if data.Source != model.ControlPriorityDispatch {
		t.Fatalf("unexpected source %s", data.Source)
	}
}

func TestEventDataSkipsTiersWithoutCoverage(t *testing.T) {
	ts := &fakeTimeSeries{}
	s := newTestScheduler(ts)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	// High tier covers only a later window; low tier covers now.
	if err := s.SaveSchedule(ctx, 90, map[time.Time]float64{t0.Add(2 * time.Hour): 25}, false); err != nil {
		t.Fatalf("save high: %v", err)
	}
	if err := s.SaveSchedule(ctx, 10, map[time.Time]float64{t0: 17}, false); err != nil {
		t.Fatalf("save low: %v", err)
	}

	data, ok, err := s.EventData(ctx, t0.Add(time.Minute/2))
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if data.Value != 17 {
		t.Fatalf("high tier without coverage must not block fallback; got %v", data.Value)
	}
}

func TestEventDataEqualPriorityMostRecentWins(t *testing.T) {
	ts := &fakeTimeSeries{}
	s := newTestScheduler(ts)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	wall := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return wall }
	if err := s.SaveSchedule(ctx, 50, map[time.Time]float64{t0: 1}, false); err != nil {
		t.Fatalf("save first: %v", err)
	}
	wall = wall.Add(time.Minute)
	if err := s.SaveSchedule(ctx, 50, map[time.Time]float64{t0: 2}, false); err != nil {
		t.Fatalf("save second: %v", err)
	}

	data, ok, err := s.EventData(ctx, t0)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if data.Value != 2 {
		t.Fatalf("expected most recent write to win, got %v", data.Value)
	}
}

func TestEventDataNoCoverage(t *testing.T) {
	s := newTestScheduler(&fakeTimeSeries{})
	_, ok, err := s.EventData(context.Background(), time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok {
		t.Fatalf("expected no event")
	}
}

func TestEventDataStableWithinInterval(t *testing.T) {
	ts := &fakeTimeSeries{}
	s := newTestScheduler(ts)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	if err := s.SaveSchedule(ctx, 60, map[time.Time]float64{t0: 42, t1: 7}, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, at := range []time.Time{t0, t0.Add(10 * time.Minute), t1.Add(-time.Second)} {
		data, ok, err := s.EventData(ctx, at)
		if err != nil || !ok {
			t.Fatalf("resolve at %s: ok=%v err=%v", at, ok, err)
		}
		if data.Value != 42 {
			t.Fatalf("value drifted within interval at %s: %v", at, data.Value)
		}
	}
}

func TestSaveScheduleIdempotent(t *testing.T) {
	ts := &fakeTimeSeries{}
	s := newTestScheduler(ts)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	args := map[time.Time]float64{t0: 21, t0.Add(time.Hour): 19}

	if err := s.SaveSchedule(ctx, 40, args, false); err != nil {
		t.Fatalf("first save: %v", err)
	}
	first, ok, err := s.EventData(ctx, t0.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("first resolve: ok=%v err=%v", ok, err)
	}
	if err := s.SaveSchedule(ctx, 40, args, false); err != nil {
		t.Fatalf("second save: %v", err)
	}
	second, ok, err := s.EventData(ctx, t0.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("second resolve: ok=%v err=%v", ok, err)
	}
	if first.Value != second.Value || first.Source != second.Source {
		t.Fatalf("idempotence violated: %+v vs %+v", first, second)
	}
}
