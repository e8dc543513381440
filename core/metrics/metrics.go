package metrics

import (
	"time"

	"github.com/flexhaus/bems/core/model"
)

// ResolutionEvent records one schedule resolution served by the monitor.
type ResolutionEvent struct {
	DeviceID string
	Kind     model.ControlKind
	Source   model.ControlType
	Changed  bool
	Time     time.Time
}

// BlackoutEvent records a detected telemetry gap.
type BlackoutEvent struct {
	DurationMin float64
	Stop        time.Time
}

// PowerLimitCallEvent records the outcome of a cold-load-pickup RPC.
type PowerLimitCallEvent struct {
	Accepted bool
	Err      error
	Time     time.Time
}

// ForecastEvent records one answered forecast request.
type ForecastEvent struct {
	Cached bool
	Err    error
	Time   time.Time
}

// Sink receives observability events from the core subsystems.
type Sink interface {
	RecordResolution(ev ResolutionEvent)
	RecordBlackout(ev BlackoutEvent)
	RecordPowerLimitCall(ev PowerLimitCallEvent)
	RecordForecast(ev ForecastEvent)
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordResolution(ResolutionEvent)       {}
func (NopSink) RecordBlackout(BlackoutEvent)           {}
func (NopSink) RecordPowerLimitCall(PowerLimitCallEvent) {}
func (NopSink) RecordForecast(ForecastEvent)           {}
