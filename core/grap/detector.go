// Package grap detects blackouts from gaps in the site's power telemetry and
// triggers the cold-load-pickup grid function when one ends. GRAP stands for
// grid response and protection.
package grap

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/flexhaus/bems/core/logger"
	"github.com/flexhaus/bems/core/metrics"
	"github.com/flexhaus/bems/core/store"
	"github.com/flexhaus/bems/core/transport"
)

// KV keys shared with operators and other services. The call marker
// suppresses duplicate pickup requests while a response window is active.
const (
	keyCallMarker   = "grap:cold_pickup_call"
	keyBlackoutInfo = "grap:blackout_info"
)

// Blackout describes a detected telemetry gap. Duration is in minutes,
// rounded to two decimals; Stop is the first sample after the gap.
type Blackout struct {
	DurationMin float64   `json:"duration_min"`
	Stop        time.Time `json:"stop"`
}

// Detector scans the telemetry for interruptions and requests a temporary
// power cap when one is found. Ticks are strictly serialized: a tick runs to
// completion, including the RPC wait, before the next fires.
type Detector struct {
	ts    store.TimeSeries
	kv    store.KV
	limit transport.PowerLimitClient
	cfg   Config
	log   logger.Logger
	sink  metrics.Sink
	now   func() time.Time
}

// NewDetector wires a detector over the given stores and RPC client.
func NewDetector(ts store.TimeSeries, kv store.KV, limit transport.PowerLimitClient, cfg Config, log logger.Logger, sink metrics.Sink) *Detector {
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Detector{ts: ts, kv: kv, limit: limit, cfg: cfg, log: log, sink: sink, now: time.Now}
}

// Run ticks the detector until ctx is cancelled. Errors are logged and the
// loop continues; detection state lives in the key/value store, so a restart
// resumes where it left off.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				d.log.Errorf("blackout detection tick: %v", err)
			}
		}
	}
}

// Tick runs one detection pass. When a gap above the threshold is found and
// no pickup call is active, it claims the call marker and issues the
// power-limit RPC. The marker is claimed before the RPC so that a failed
// call stays visible as active-but-unconfirmed instead of being retried
// every tick.
func (d *Detector) Tick(ctx context.Context) error {
	blackout, found, err := d.lastInterruption(ctx)
	if err != nil {
		return fmt.Errorf("scan telemetry: %w", err)
	}
	if !found {
		d.log.Debugf("no blackout detected")
		return nil
	}

	window := time.Duration(blackout.DurationMin * float64(time.Minute))
	claimed, err := d.kv.SetIfAbsent(ctx, keyCallMarker, []byte("called"), window)
	if err != nil {
		return fmt.Errorf("claim pickup call marker: %w", err)
	}
	if !claimed {
		d.log.Debugf("cold load pickup already requested, skipping until marker expires")
		return nil
	}

	d.log.Infof("blackout detected: %.2f min ending at %s", blackout.DurationMin, blackout.Stop)
	d.sink.RecordBlackout(metrics.BlackoutEvent{DurationMin: blackout.DurationMin, Stop: blackout.Stop})

	if raw, err := json.Marshal(blackout); err == nil {
		if err := d.kv.Set(ctx, keyBlackoutInfo, raw, window); err != nil {
			d.log.Warnf("store blackout info: %v", err)
		}
	}

	rpcCtx, cancel := context.WithTimeout(ctx, d.cfg.RPCTimeout())
	defer cancel()
	resp, err := d.limit.Call(rpcCtx, transport.PowerLimitRequest{
		Reason:      "grap",
		DurationMin: blackout.DurationMin,
		PowerCapKW:  d.cfg.PowerCapKW,
	})
	d.sink.RecordPowerLimitCall(metrics.PowerLimitCallEvent{Accepted: err == nil && resp.Accepted, Err: err, Time: d.now()})
	if err != nil {
		// The marker stays in place: the pickup request is in an unknown
		// state and must not be re-issued blindly.
		return fmt.Errorf("power limit rpc: %w", err)
	}

	d.log.Infof("power limit response: accepted=%v limit=%.2fkW duration=%.2fmin", resp.Accepted, resp.AppliedLimitKW, resp.DurationMin)
	if resp.Accepted && resp.DurationMin > 0 {
		// The service decides the actual pickup window; align the marker
		// lifetime with it.
		applied := time.Duration(resp.DurationMin * float64(time.Minute))
		if err := d.kv.Set(ctx, keyCallMarker, []byte("called"), applied); err != nil {
			d.log.Warnf("extend pickup call marker: %v", err)
		}
	}
	return nil
}

// ReconcileCloud is a reserved extension point for verifying blackout state
// against a remote service. It currently does nothing.
func (d *Detector) ReconcileCloud(ctx context.Context) error {
	_ = ctx
	return nil
}

// lastInterruption scans the trailing telemetry window and returns the most
// recent inter-sample gap above the configured threshold.
func (d *Detector) lastInterruption(ctx context.Context) (Blackout, bool, error) {
	stop := d.now()
	recs, err := d.ts.Query(ctx, store.QueryRequest{
		Measurement: d.cfg.Measurement,
		Fields:      []string{d.cfg.Field},
		Start:       stop.Add(-d.cfg.Lookback()),
		Stop:        stop,
	})
	if err != nil {
		return Blackout{}, false, err
	}
	if len(recs) < 2 {
		return Blackout{}, false, nil
	}

	var out Blackout
	found := false
	for i := 1; i < len(recs); i++ {
		gap := recs[i].Time.Sub(recs[i-1].Time)
		if gap > d.cfg.GapThreshold() {
			out = Blackout{
				DurationMin: math.Round(gap.Minutes()*100) / 100,
				Stop:        recs[i].Time,
			}
			found = true
		}
	}
	return out, found, nil
}
