package forecast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flexhaus/bems/core/logger"
	"github.com/flexhaus/bems/core/metrics"
	"github.com/flexhaus/bems/core/store"
	"github.com/flexhaus/bems/core/transport"
)

// Forecaster computes a forecast series for a window. *Retriever is the
// production implementation.
type Forecaster interface {
	Forecast(ctx context.Context, start, stop time.Time, interval time.Duration) ([]transport.ForecastPoint, error)
}

// Responder answers forecast requests from the broker. Identical requests
// within the cache TTL are served the exact cached series; concurrent
// misses for one key share a single computation.
type Responder struct {
	bus   transport.ForecastBus
	retr  Forecaster
	kv    store.KV
	cfg   Config
	log   logger.Logger
	sink  metrics.Sink
	group singleflight.Group
	now   func() time.Time
}

// NewResponder wires a responder over the bus, retriever and cache.
func NewResponder(bus transport.ForecastBus, retr Forecaster, kv store.KV, cfg Config, log logger.Logger, sink metrics.Sink) *Responder {
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Responder{bus: bus, retr: retr, kv: kv, cfg: cfg, log: log, sink: sink, now: time.Now}
}

// Run subscribes to the request topic and serves until ctx is cancelled.
func (r *Responder) Run(ctx context.Context) error {
	if err := r.bus.SubscribeRequests(ctx, r.Handle); err != nil {
		return fmt.Errorf("subscribe forecast requests: %w", err)
	}
	<-ctx.Done()
	return nil
}

// Handle serves one forecast request and publishes the response to the
// request's reply topic. Failures are answered with an error response.
func (r *Responder) Handle(ctx context.Context, req transport.ForecastRequest) {
	resp := r.answer(ctx, req)
	r.sink.RecordForecast(metrics.ForecastEvent{
		Cached: resp.Source == "cache",
		Err:    errorOrNil(resp.Error),
		Time:   r.now(),
	})
	if err := r.bus.PublishResponse(ctx, req.ReplyTopic, resp); err != nil {
		r.log.Errorf("publish forecast response %s: %v", req.RequestID, err)
	}
}

func (r *Responder) answer(ctx context.Context, req transport.ForecastRequest) transport.ForecastResponse {
	interval := time.Duration(req.IntervalMin) * time.Minute
	if interval <= 0 {
		interval = time.Duration(r.cfg.DefaultIntervalMin) * time.Minute
	}
	start := req.Start.UTC().Truncate(time.Minute)
	stop := req.Stop.UTC().Truncate(time.Minute)

	key := CacheKey(start, stop, interval)
	if series, ok := r.cached(ctx, key); ok {
		r.log.Debugf("forecast %s served from cache", req.RequestID)
		return transport.ForecastResponse{RequestID: req.RequestID, Start: start, Stop: stop, Series: series, Source: "cache"}
	}

	v, err, shared := r.group.Do(key, func() (any, error) {
		// Double-check under the flight: a concurrent computation may
		// have populated the cache while this call waited.
		if series, ok := r.cached(ctx, key); ok {
			return series, nil
		}
		series, err := r.retr.Forecast(ctx, start, stop, interval)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(series)
		if err != nil {
			return nil, err
		}
		if err := r.kv.Set(ctx, cachePrefix+key, raw, r.cfg.CacheTTL()); err != nil {
			r.log.Warnf("cache forecast %s: %v", key, err)
		}
		return series, nil
	})
	if err != nil {
		r.log.Errorf("compute forecast %s: %v", req.RequestID, err)
		return transport.ForecastResponse{RequestID: req.RequestID, Start: start, Stop: stop, Error: err.Error()}
	}
	if shared {
		r.log.Debugf("forecast %s joined an in-flight computation", req.RequestID)
	}
	return transport.ForecastResponse{RequestID: req.RequestID, Start: start, Stop: stop, Series: v.([]transport.ForecastPoint), Source: "computed"}
}

const cachePrefix = "forecast:"

func (r *Responder) cached(ctx context.Context, key string) ([]transport.ForecastPoint, bool) {
	raw, err := r.kv.Get(ctx, cachePrefix+key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		r.log.Warnf("read forecast cache %s: %v", key, err)
		return nil, false
	}
	var series []transport.ForecastPoint
	if err := json.Unmarshal(raw, &series); err != nil {
		r.log.Warnf("decode cached forecast %s: %v", key, err)
		return nil, false
	}
	return series, true
}

// CacheKey derives a deterministic digest of the request parameters.
// Equal windows and intervals map to the same key regardless of the
// requester or wall clock.
func CacheKey(start, stop time.Time, interval time.Duration) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%d", start.UnixNano(), stop.UnixNano(), interval)
	return hex.EncodeToString(h.Sum(nil))
}

func errorOrNil(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
