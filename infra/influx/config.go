package influx

import "fmt"

// Config holds the InfluxDB connection settings.
type Config struct {
	URL            string `json:"url"`
	Token          string `json:"token"`
	Org            string `json:"org"`
	Bucket         string `json:"bucket"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SetDefaults fills zero values with working defaults.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:8086"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate rejects incomplete settings.
func (c *Config) Validate() error {
	if c.Org == "" || c.Bucket == "" {
		return fmt.Errorf("influx: org and bucket are required")
	}
	return nil
}
