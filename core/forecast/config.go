package forecast

import (
	"fmt"
	"time"
)

// Config holds the forecast responder settings.
type Config struct {
	// CacheTTLHours is how long a computed forecast stays answerable
	// from the cache.
	CacheTTLHours int `json:"cache_ttl_hours"`
	// HistoryDays is the training window for the load model.
	HistoryDays int `json:"history_days"`
	// DefaultIntervalMin is used when a request does not set one.
	DefaultIntervalMin int `json:"default_interval_min"`
	// TotalMeasurement and Field locate the site's net-power series.
	TotalMeasurement string `json:"total_measurement"`
	Field            string `json:"field"`
}

// SetDefaults fills zero values with working defaults.
func (c *Config) SetDefaults() {
	if c.CacheTTLHours == 0 {
		c.CacheTTLHours = 24
	}
	if c.HistoryDays == 0 {
		c.HistoryDays = 30
	}
	if c.DefaultIntervalMin == 0 {
		c.DefaultIntervalMin = 10
	}
	if c.TotalMeasurement == "" {
		c.TotalMeasurement = "net_power"
	}
	if c.Field == "" {
		c.Field = "power_w"
	}
}

// Validate rejects settings outside the supported ranges.
func (c *Config) Validate() error {
	if c.HistoryDays < 1 {
		return fmt.Errorf("forecast: history window must be at least a day, got %d", c.HistoryDays)
	}
	if c.DefaultIntervalMin < 1 {
		return fmt.Errorf("forecast: interval must be positive, got %d", c.DefaultIntervalMin)
	}
	return nil
}

func (c Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLHours) * time.Hour }
func (c Config) History() time.Duration  { return time.Duration(c.HistoryDays) * 24 * time.Hour }
