// Package forecast answers non-controllable load forecast requests from a
// cache-aside store, computing misses from the building's telemetry.
package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/flexhaus/bems/core/logger"
	"github.com/flexhaus/bems/core/model"
	"github.com/flexhaus/bems/core/store"
	"github.com/flexhaus/bems/core/transport"
)

// Per-type measurements holding controllable device consumption. Types
// without an entry do not contribute measurable load.
var consumptionMeasurements = map[model.DeviceType]string{
	model.SpaceHeating:    "sh_power",
	model.WaterHeater:     "wh_power",
	model.OnOffEVCharger:  "v1g_net_power",
	model.ElectricStorage: "eb_net_power",
}

// Derived series persisted back to the time-series store, history and
// forecast alike.
const nonControllableMeasurement = "non_controllable_loads"

// Retriever derives the non-controllable load history and forecasts it
// forward. Non-controllable load is the building total minus the consumption
// of every configured controllable device.
type Retriever struct {
	devices  model.Devices
	ts       store.TimeSeries
	cfg      Config
	log      logger.Logger
	newModel func(bucket time.Duration) Model
}

// NewRetriever wires a retriever over the device inventory and store.
func NewRetriever(devices model.Devices, ts store.TimeSeries, cfg Config, log logger.Logger) *Retriever {
	cfg.SetDefaults()
	return &Retriever{
		devices: devices,
		ts:      ts,
		cfg:     cfg,
		log:     log,
		newModel: func(bucket time.Duration) Model {
			return NewSeasonalModel(bucket)
		},
	}
}

// Forecast computes the non-controllable load series over [start, stop] at
// the given interval. The derived history and the forecast are both
// persisted to the time-series store as a side effect.
func (r *Retriever) Forecast(ctx context.Context, start, stop time.Time, interval time.Duration) ([]transport.ForecastPoint, error) {
	start = start.Truncate(time.Minute)
	stop = stop.Truncate(time.Minute)
	if !stop.After(start) {
		return nil, fmt.Errorf("forecast: window [%s, %s] is empty", start, stop)
	}
	if interval <= 0 {
		interval = time.Duration(r.cfg.DefaultIntervalMin) * time.Minute
	}

	histStart := start.Truncate(time.Hour).Add(-r.cfg.History())
	times, values, err := r.nonControllableHistory(ctx, histStart, start)
	if err != nil {
		return nil, err
	}

	m := r.newModel(interval)
	if err := m.Fit(times, values); err != nil {
		return nil, err
	}

	n := int(stop.Sub(start)/interval) + 1
	predicted := m.Predict(start, n, interval)

	series := make([]transport.ForecastPoint, 0, n)
	points := make([]store.Point, 0, n)
	for i, v := range predicted {
		t := start.Add(time.Duration(i) * interval)
		if t.After(stop) {
			break
		}
		v = math.Round(v*100) / 100
		series = append(series, transport.ForecastPoint{Time: t, Value: v})
		points = append(points, store.Point{
			Measurement: nonControllableMeasurement,
			Tags:        map[string]string{"_type": "forecast"},
			Fields:      map[string]float64{r.cfg.Field: v},
			Time:        t,
		})
	}
	if err := r.ts.WritePoints(ctx, points); err != nil {
		r.log.Warnf("persist forecast series: %v", err)
	}
	return series, nil
}

// nonControllableHistory loads the total consumption over [start, stop),
// subtracts each controllable device type's series sample by sample, and
// persists the derived history.
func (r *Retriever) nonControllableHistory(ctx context.Context, start, stop time.Time) ([]time.Time, []float64, error) {
	total, err := r.seriesByTime(ctx, r.cfg.TotalMeasurement, start, stop)
	if err != nil {
		return nil, nil, fmt.Errorf("read total consumption: %w", err)
	}
	if len(total) == 0 {
		return nil, nil, ErrInsufficientHistory
	}

	for devType, measurement := range consumptionMeasurements {
		if r.devices.CountByType(devType) == 0 {
			continue
		}
		controllable, err := r.seriesByTime(ctx, measurement, start, stop)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s consumption: %w", devType, err)
		}
		for ts, v := range controllable {
			if _, ok := total[ts]; ok {
				total[ts] -= v
			}
		}
	}

	times := make([]time.Time, 0, len(total))
	for ts := range total {
		times = append(times, time.Unix(0, ts).UTC())
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	values := make([]float64, len(times))
	points := make([]store.Point, len(times))
	for i, t := range times {
		values[i] = total[t.UnixNano()]
		points[i] = store.Point{
			Measurement: nonControllableMeasurement,
			Tags:        map[string]string{"_type": "measure"},
			Fields:      map[string]float64{r.cfg.Field: values[i]},
			Time:        t,
		}
	}
	if err := r.ts.WritePoints(ctx, points); err != nil {
		r.log.Warnf("persist derived history: %v", err)
	}
	return times, values, nil
}

// seriesByTime sums the measurement's field per timestamp, collapsing
// multiple devices writing under the same measurement into one sample.
func (r *Retriever) seriesByTime(ctx context.Context, measurement string, start, stop time.Time) (map[int64]float64, error) {
	recs, err := r.ts.Query(ctx, store.QueryRequest{
		Measurement: measurement,
		Fields:      []string{r.cfg.Field},
		Tags:        map[string]string{"_type": "measure"},
		Start:       start,
		Stop:        stop,
	})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]float64, len(recs))
	for _, rec := range recs {
		out[rec.Time.UnixNano()] += rec.Fields[r.cfg.Field]
	}
	return out, nil
}
