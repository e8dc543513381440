// Package config loads the service configuration from a YAML or JSON file
// with optional environment overrides (K_SECTION__KEY).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/flexhaus/bems/core/forecast"
	"github.com/flexhaus/bems/core/grap"
	"github.com/flexhaus/bems/core/model"
	"github.com/flexhaus/bems/core/schedule"
	"github.com/flexhaus/bems/infra/influx"
	"github.com/flexhaus/bems/infra/metrics"
	"github.com/flexhaus/bems/infra/mqtt"
)

type Config struct {
	MQTT     mqtt.Config     `json:"mqtt"`
	Influx   influx.Config   `json:"influx"`
	Schedule schedule.Config `json:"schedule"`
	GRAP     grap.Config     `json:"grap"`
	Forecast forecast.Config `json:"forecast"`
	Metrics  metrics.Config  `json:"metrics"`
	Devices  model.Devices   `json:"devices"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.MQTT.SetDefaults()
	cfg.Influx.SetDefaults()
	cfg.Schedule.SetDefaults()
	cfg.GRAP.SetDefaults()
	cfg.Forecast.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.Influx.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Schedule.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.GRAP.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Forecast.Validate(); err != nil {
		return nil, err
	}
	for _, dev := range cfg.Devices {
		if dev.EntityID == "" || dev.Type == "" {
			return nil, fmt.Errorf("config: device entries require entity_id and type")
		}
	}
	return &cfg, nil
}
