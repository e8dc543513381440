// Package app wires the scheduling core to its infrastructure and runs the
// background loops.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/flexhaus/bems/config"
	"github.com/flexhaus/bems/core/forecast"
	"github.com/flexhaus/bems/core/grap"
	coremetrics "github.com/flexhaus/bems/core/metrics"
	"github.com/flexhaus/bems/core/schedule"
	"github.com/flexhaus/bems/infra/influx"
	"github.com/flexhaus/bems/infra/kvstore"
	"github.com/flexhaus/bems/infra/logger"
	"github.com/flexhaus/bems/infra/metrics"
	"github.com/flexhaus/bems/infra/mqtt"
)

// Service owns the monitor, the blackout detector and the forecast
// responder, plus the connections they share.
type Service struct {
	Monitor   *schedule.Monitor
	Detector  *grap.Detector
	Responder *forecast.Responder

	mqttClient *mqtt.Client
	influx     *influx.Client
	kv         *kvstore.MemoryStore
	tick       time.Duration
	log        logger.Logger

	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	ts, err := influx.NewClient(cfg.Influx, logger.New("influx"))
	if err != nil {
		return nil, fmt.Errorf("influx client: %w", err)
	}
	kv := kvstore.NewMemoryStore()

	mqttClient, err := mqtt.NewClient(cfg.MQTT, logger.New("mqtt"))
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	limit, err := mqtt.NewPowerLimitClient(mqttClient)
	if err != nil {
		return nil, fmt.Errorf("power limit client: %w", err)
	}
	bus := mqtt.NewForecastBus(mqttClient)

	var sink coremetrics.Sink = coremetrics.NopSink{}
	if cfg.Metrics.PrometheusEnabled {
		promSink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sink = promSink
	}

	prefs := schedule.NewKVPreferences(kv)
	monitor := schedule.NewMonitor(cfg.Devices, ts, kv, prefs, cfg.Schedule, logger.New("monitor"), sink)
	detector := grap.NewDetector(ts, kv, limit, cfg.GRAP, logger.New("grap"), sink)
	retriever := forecast.NewRetriever(cfg.Devices, ts, cfg.Forecast, logger.New("forecast"))
	responder := forecast.NewResponder(bus, retriever, kv, cfg.Forecast, logger.New("forecast"), sink)

	return &Service{
		Monitor:     monitor,
		Detector:    detector,
		Responder:   responder,
		mqttClient:  mqttClient,
		influx:      ts,
		kv:          kv,
		tick:        cfg.Schedule.Tick(),
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}, nil
}

// Run starts the background loops and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.influx.Ping(ctx); err != nil {
		s.log.Warnf("influx not reachable yet: %v", err)
	}

	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	go s.Detector.Run(ctx)
	go func() {
		if err := s.Responder.Run(ctx); err != nil {
			s.log.Errorf("forecast responder: %v", err)
		}
	}()
	go s.pollLoop(ctx)
	go s.sweepLoop(ctx)
	go s.logChanges(ctx)

	s.log.Infof("service started")
	<-ctx.Done()
	return nil
}

// pollLoop evaluates every device on the schedule tick.
func (s *Service) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			s.Monitor.Poll(ctx, at)
		}
	}
}

// sweepLoop reclaims expired keys from the in-memory store.
func (s *Service) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.kv.Sweep()
		}
	}
}

// logChanges drains the monitor's change events for the audit log.
func (s *Service) logChanges(ctx context.Context) {
	ch := s.Monitor.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.log.Infof("device %s %s changed to %v (%s)", ev.DeviceID, ev.Kind, ev.Data.Value, ev.Data.Source)
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.Monitor.Close()
	s.mqttClient.Disconnect()
	s.influx.Close()
	return nil
}
