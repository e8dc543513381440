package grap

import (
	"fmt"
	"time"
)

// Config holds the blackout detector settings.
type Config struct {
	// IntervalSeconds is the detection tick period.
	IntervalSeconds int `json:"interval_seconds"`
	// GapThresholdMinutes is the minimum telemetry gap treated as a
	// blackout. Bounded to [1, 30].
	GapThresholdMinutes int `json:"gap_threshold_minutes"`
	// LookbackHours bounds the telemetry range scanned for gaps.
	LookbackHours int `json:"lookback_hours"`
	// PowerCapKW is the consumption cap requested during cold load pickup.
	PowerCapKW float64 `json:"power_cap_kw"`
	// RPCTimeoutSeconds bounds the wait for the power-limit response.
	RPCTimeoutSeconds int `json:"rpc_timeout_seconds"`
	// Measurement and Field locate the net-power telemetry series.
	Measurement string `json:"measurement"`
	Field       string `json:"field"`
}

// SetDefaults fills zero values with working defaults.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 300
	}
	if c.GapThresholdMinutes == 0 {
		c.GapThresholdMinutes = 30
	}
	if c.LookbackHours == 0 {
		c.LookbackHours = 24
	}
	if c.PowerCapKW == 0 {
		c.PowerCapKW = 3.0
	}
	if c.RPCTimeoutSeconds == 0 {
		c.RPCTimeoutSeconds = 30
	}
	if c.Measurement == "" {
		c.Measurement = "net_power"
	}
	if c.Field == "" {
		c.Field = "power_w"
	}
}

// Validate rejects settings outside the supported ranges.
func (c *Config) Validate() error {
	if c.GapThresholdMinutes < 1 || c.GapThresholdMinutes > 30 {
		return fmt.Errorf("grap: gap threshold %d min outside [1, 30]", c.GapThresholdMinutes)
	}
	if c.IntervalSeconds < 1 {
		return fmt.Errorf("grap: interval must be positive, got %d", c.IntervalSeconds)
	}
	if c.PowerCapKW <= 0 {
		return fmt.Errorf("grap: power cap must be positive, got %v", c.PowerCapKW)
	}
	return nil
}

func (c Config) Interval() time.Duration     { return time.Duration(c.IntervalSeconds) * time.Second }
func (c Config) GapThreshold() time.Duration { return time.Duration(c.GapThresholdMinutes) * time.Minute }
func (c Config) Lookback() time.Duration     { return time.Duration(c.LookbackHours) * time.Hour }
func (c Config) RPCTimeout() time.Duration   { return time.Duration(c.RPCTimeoutSeconds) * time.Second }
