package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/flexhaus/bems/core/metrics"
)

// Config defines settings for the metrics endpoint.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = ":2112"
	}
}

// PromSink records core events as Prometheus metrics.
type PromSink struct {
	resolutions *prometheus.CounterVec
	changes     *prometheus.CounterVec
	blackouts   prometheus.Counter
	rpcCalls    *prometheus.CounterVec
	forecasts   *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_resolutions_total",
		Help: "Schedule resolutions served, by provenance of the resolved value",
	}, []string{"kind", "source"})
	changes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_changes_total",
		Help: "Resolutions whose value differed from the previous tick",
	}, []string{"kind"})
	blackouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grap_blackouts_detected_total",
		Help: "Telemetry gaps classified as blackouts",
	})
	rpcCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grap_power_limit_calls_total",
		Help: "Cold-load-pickup RPC calls by outcome",
	}, []string{"accepted"})
	forecasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_requests_total",
		Help: "Forecast requests answered, by cache outcome",
	}, []string{"result"})

	for _, c := range []prometheus.Collector{resolutions, changes, blackouts, rpcCalls, forecasts} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return &PromSink{
		resolutions: resolutions,
		changes:     changes,
		blackouts:   blackouts,
		rpcCalls:    rpcCalls,
		forecasts:   forecasts,
	}, nil
}

// RecordResolution increments the resolution counters.
func (s *PromSink) RecordResolution(ev coremetrics.ResolutionEvent) {
	s.resolutions.WithLabelValues(string(ev.Kind), string(ev.Source)).Inc()
	if ev.Changed {
		s.changes.WithLabelValues(string(ev.Kind)).Inc()
	}
}

// RecordBlackout counts detected blackouts.
func (s *PromSink) RecordBlackout(coremetrics.BlackoutEvent) {
	s.blackouts.Inc()
}

// RecordPowerLimitCall counts cold-load-pickup calls by outcome.
func (s *PromSink) RecordPowerLimitCall(ev coremetrics.PowerLimitCallEvent) {
	accepted := ev.Err == nil && ev.Accepted
	s.rpcCalls.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

// RecordForecast counts answered forecast requests by cache outcome.
func (s *PromSink) RecordForecast(ev coremetrics.ForecastEvent) {
	result := "computed"
	switch {
	case ev.Err != nil:
		result = "error"
	case ev.Cached:
		result = "cache"
	}
	s.forecasts.WithLabelValues(result).Inc()
}
