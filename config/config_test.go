package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flexhaus/bems/core/model"
)

const sampleYAML = `
mqtt:
  broker: tcp://broker:1883
  client_id: bems-test
influx:
  url: http://influx:8086
  org: flexhaus
  bucket: bems
schedule:
  tick_seconds: 30
grap:
  gap_threshold_minutes: 10
  power_cap_kw: 4.5
forecast:
  history_days: 7
metrics:
  prometheus_enabled: true
devices:
  - entity_id: thermostat_1
    type: space_heating
    priority: 1
    group: high
  - entity_id: heater_1
    type: water_heater
    priority: 2
    group: medium
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Fatalf("broker: %s", cfg.MQTT.Broker)
	}
	if cfg.Influx.Bucket != "bems" {
		t.Fatalf("bucket: %s", cfg.Influx.Bucket)
	}
	if cfg.Schedule.TickSeconds != 30 {
		t.Fatalf("tick: %d", cfg.Schedule.TickSeconds)
	}
	if cfg.GRAP.GapThresholdMinutes != 10 || cfg.GRAP.PowerCapKW != 4.5 {
		t.Fatalf("grap: %+v", cfg.GRAP)
	}
	// Defaults fill what the file leaves out.
	if cfg.GRAP.IntervalSeconds == 0 || cfg.Forecast.CacheTTLHours != 24 {
		t.Fatalf("defaults not applied: %+v %+v", cfg.GRAP, cfg.Forecast)
	}
	if len(cfg.Devices) != 2 || cfg.Devices[0].Type != model.SpaceHeating {
		t.Fatalf("devices: %+v", cfg.Devices)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("K_MQTT__CLIENT_ID", "bems-override")
	cfg, err := Load(writeConfig(t, "config.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MQTT.ClientID != "bems-override" {
		t.Fatalf("env override ignored: %s", cfg.MQTT.ClientID)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	if _, err := Load(writeConfig(t, "config.toml", "")); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestLoadRejectsBadGapThreshold(t *testing.T) {
	bad := `
influx:
  org: flexhaus
  bucket: bems
grap:
  gap_threshold_minutes: 99
`
	if _, err := Load(writeConfig(t, "config.yaml", bad)); err == nil {
		t.Fatal("expected gap threshold validation error")
	}
}

func TestLoadRejectsIncompleteDevice(t *testing.T) {
	bad := `
influx:
  org: flexhaus
  bucket: bems
devices:
  - entity_id: thermostat_1
`
	if _, err := Load(writeConfig(t, "config.yaml", bad)); err == nil {
		t.Fatal("expected device validation error")
	}
}
