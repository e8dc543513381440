package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flexhaus/bems/core/logger"
	"github.com/flexhaus/bems/core/metrics"
	"github.com/flexhaus/bems/core/model"
	"github.com/flexhaus/bems/core/store"
	"github.com/flexhaus/bems/internal/eventbus"
)

// ChangeEvent is published on the monitor bus when a device's resolved value
// differs from the previous evaluation tick. Downstream actuation consumers
// use it as their re-actuation trigger.
type ChangeEvent struct {
	DeviceID string
	Kind     model.ControlKind
	Data     model.ScheduleEventData
	At       time.Time
}

// VersionedSource is an optional PreferenceSource refinement that exposes
// the current document version without decoding, for cheap invalidation
// checks on every query.
type VersionedSource interface {
	Version(ctx context.Context, deviceID string, pref model.PreferenceType) (uint64, error)
}

// Monitor is the single query point for "what should device X be doing
// now". It owns lazily-built scheduler instances per (device, type) key,
// applies the dispatch-before-preference fallback order and computes the
// changed flag across consecutive evaluation ticks.
type Monitor struct {
	devices model.Devices
	ts      store.TimeSeries
	kv      store.KV
	prefs   PreferenceSource
	cfg     Config
	log     logger.Logger
	sink    metrics.Sink
	bus     *eventbus.TypedBus[ChangeEvent]

	// Registry of scheduler instances. Construction on miss is coalesced
	// per key; queries for different keys never serialize on each other.
	group   singleflight.Group
	device  *registry[*DeviceScheduler]
	weekly  *registry[*WeeklyScheduler]
}

// NewMonitor creates a monitor over the configured device inventory.
func NewMonitor(devices model.Devices, ts store.TimeSeries, kv store.KV, prefs PreferenceSource, cfg Config, log logger.Logger, sink metrics.Sink) *Monitor {
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Monitor{
		devices: devices,
		ts:      ts,
		kv:      kv,
		prefs:   prefs,
		cfg:     cfg,
		log:     log,
		sink:    sink,
		bus:     eventbus.NewTyped[ChangeEvent](),
		device:  newRegistry[*DeviceScheduler](),
		weekly:  newRegistry[*WeeklyScheduler](),
	}
}

// Changes returns a subscription to change events. Delivery is best-effort;
// slow consumers miss events rather than blocking resolution.
func (m *Monitor) Changes() <-chan ChangeEvent { return m.bus.Subscribe() }

// Close releases the change bus.
func (m *Monitor) Close() { m.bus.Close() }

// DeviceScheduler returns (constructing if absent) the dispatch scheduler
// bound to the given device and control kind.
func (m *Monitor) DeviceScheduler(deviceID string, kind model.ControlKind) *DeviceScheduler {
	key := "device:" + deviceID + ":" + string(kind)
	if s, ok := m.device.get(key); ok {
		return s
	}
	v, _, _ := m.group.Do(key, func() (any, error) {
		s := NewDeviceScheduler(deviceID, kind, m.ts, m.cfg, m.log)
		m.device.put(key, s)
		return s, nil
	})
	return v.(*DeviceScheduler)
}

// weeklyScheduler returns the preference scheduler for the device, rebuilding
// it when the stored document's version has advanced. ErrNoPreference means
// the device has no recurring schedule of this type.
func (m *Monitor) weeklyScheduler(ctx context.Context, deviceID string, pref model.PreferenceType) (*WeeklyScheduler, error) {
	key := "weekly:" + deviceID + ":" + string(pref)
	if s, ok := m.weekly.get(key); ok {
		if vs, versioned := m.prefs.(VersionedSource); versioned {
			version, err := vs.Version(ctx, deviceID, pref)
			if err == nil && version == s.Version() {
				return s, nil
			}
			// Version advanced or check failed: rebuild below.
		} else {
			return s, nil
		}
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		sch, version, err := m.prefs.Preference(ctx, deviceID, pref)
		if errors.Is(err, ErrNoPreference) {
			m.weekly.drop(key)
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		s, err := NewWeeklyScheduler(sch, version)
		if err != nil {
			return nil, err
		}
		m.weekly.put(key, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*WeeklyScheduler), nil
}

// DeviceEventData resolves the governing value for a device at the given
// instant: the dispatch layers first, then the recurring preference mapped
// from the control kind. Explicit time-boxed commands always override
// standing preferences.
func (m *Monitor) DeviceEventData(ctx context.Context, deviceID string, kind model.ControlKind, at time.Time) (model.ScheduleEventData, bool, error) {
	if !m.devices.Exists(deviceID) {
		return model.ScheduleEventData{}, false, fmt.Errorf("schedule: unknown device %q", deviceID)
	}

	data, ok, err := m.DeviceScheduler(deviceID, kind).EventData(ctx, at)
	if err != nil {
		return model.ScheduleEventData{}, false, err
	}
	if ok {
		return data, true, nil
	}

	pref, hasPref := model.PreferenceFor(kind)
	if !hasPref {
		return model.ScheduleEventData{}, false, nil
	}
	weekly, err := m.weeklyScheduler(ctx, deviceID, pref)
	if errors.Is(err, ErrNoPreference) {
		return model.ScheduleEventData{}, false, nil
	}
	if err != nil {
		return model.ScheduleEventData{}, false, err
	}
	return weekly.EventData(ctx, at)
}

// DeviceEventDataWithChangedFlag resolves the device at `at` and at the
// immediately preceding evaluation tick and sets Changed when the two values
// differ. The previous value is memoized in the key/value store for two
// ticks; a cold cache falls back to resolving the previous tick directly.
func (m *Monitor) DeviceEventDataWithChangedFlag(ctx context.Context, deviceID string, kind model.ControlKind, at time.Time) (model.ScheduleEventData, bool, error) {
	at = at.Truncate(time.Second)
	current, ok, err := m.DeviceEventData(ctx, deviceID, kind, at)
	if err != nil || !ok {
		return model.ScheduleEventData{}, ok, err
	}

	memoKey := fmt.Sprintf("event_value:%s:%s", kind, deviceID)
	prev, prevOK := m.previousValue(ctx, memoKey, deviceID, kind, at)
	current.Changed = !prevOK || prev != current.Value

	if err := m.kv.Set(ctx, memoKey, []byte(strconv.FormatFloat(current.Value, 'g', -1, 64)), 2*m.cfg.Tick()); err != nil {
		m.log.Warnf("memoize %s: %v", memoKey, err)
	}

	m.sink.RecordResolution(metrics.ResolutionEvent{
		DeviceID: deviceID, Kind: kind, Source: current.Source, Changed: current.Changed, Time: at,
	})
	if current.Changed {
		m.bus.Publish(ChangeEvent{DeviceID: deviceID, Kind: kind, Data: current, At: at})
	}
	return current, true, nil
}

// previousValue fetches the memoized previous-tick value, resolving the
// previous tick directly when the memo is cold. The memo is an optimization
// only; its failure modes degrade to recomputation, never to a wrong flag.
func (m *Monitor) previousValue(ctx context.Context, memoKey, deviceID string, kind model.ControlKind, at time.Time) (float64, bool) {
	if raw, err := m.kv.Get(ctx, memoKey); err == nil {
		if v, perr := strconv.ParseFloat(string(raw), 64); perr == nil {
			return v, true
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		m.log.Warnf("read memo %s: %v", memoKey, err)
	}
	prevData, ok, err := m.DeviceEventData(ctx, deviceID, kind, at.Add(-m.cfg.Tick()))
	if err != nil {
		m.log.Warnf("resolve previous tick for %s/%s: %v", deviceID, kind, err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	return prevData.Value, true
}

// Poll evaluates every configured device at the given instant and logs the
// resolved state, publishing change events as a side effect. The service
// runs it on the evaluation tick.
func (m *Monitor) Poll(ctx context.Context, at time.Time) {
	for _, dev := range m.devices {
		for _, kind := range KindsFor(dev.Type) {
			data, ok, err := m.DeviceEventDataWithChangedFlag(ctx, dev.EntityID, kind, at)
			if err != nil {
				m.log.Errorf("poll %s/%s: %v", dev.EntityID, kind, err)
				continue
			}
			if !ok {
				continue
			}
			m.log.Debugw("resolved device state", map[string]any{
				"device_id": dev.EntityID,
				"kind":      string(kind),
				"value":     data.Value,
				"source":    string(data.Source),
				"changed":   data.Changed,
			})
		}
	}
}

// KindsFor lists the control kinds meaningful for a device type.
func KindsFor(t model.DeviceType) []model.ControlKind {
	switch t {
	case model.SpaceHeating:
		return []model.ControlKind{model.ControlSetpoint, model.ControlOccupancy}
	case model.WaterHeater, model.OnOffEVCharger, model.ElectricVehicleV1G, model.ElectricVehicleV2G, model.ThermalStorage:
		return []model.ControlKind{model.ControlPower}
	case model.ElectricStorage:
		return []model.ControlKind{model.ControlBatteryPower, model.ControlSoC}
	case model.PhotovoltaicGenerator:
		return []model.ControlKind{model.ControlSolarPower}
	default:
		return nil
	}
}
