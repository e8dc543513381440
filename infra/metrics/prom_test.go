package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/flexhaus/bems/core/metrics"
	"github.com/flexhaus/bems/core/model"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if match {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestPromSinkCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	sink.RecordResolution(coremetrics.ResolutionEvent{
		Kind: model.ControlSetpoint, Source: model.ControlPriorityDispatch, Changed: true, Time: time.Now(),
	})
	sink.RecordBlackout(coremetrics.BlackoutEvent{DurationMin: 42})
	sink.RecordForecast(coremetrics.ForecastEvent{Cached: true})
	sink.RecordForecast(coremetrics.ForecastEvent{})

	if v := counterValue(t, reg, "schedule_resolutions_total", map[string]string{"source": "priority_dispatch"}); v != 1 {
		t.Fatalf("resolutions = %v", v)
	}
	if v := counterValue(t, reg, "schedule_changes_total", nil); v != 1 {
		t.Fatalf("changes = %v", v)
	}
	if v := counterValue(t, reg, "grap_blackouts_detected_total", nil); v != 1 {
		t.Fatalf("blackouts = %v", v)
	}
	if v := counterValue(t, reg, "forecast_requests_total", map[string]string{"result": "cache"}); v != 1 {
		t.Fatalf("cache forecasts = %v", v)
	}
}

func TestPromSinkDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("second: %v", err)
	}
}
