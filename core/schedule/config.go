package schedule

import (
	"fmt"
	"time"
)

// Config defines evaluation parameters for the scheduling engine.
type Config struct {
	// TickSeconds is the evaluation tick the changed flag is computed
	// against.
	TickSeconds int `json:"tick_seconds"`
	// LookbackHours bounds how far back persisted dispatch events are
	// queried when resolving a timestamp. Events longer than this are not
	// supported.
	LookbackHours int `json:"lookback_hours"`
	// HorizonMinutes is the implicit duration of the last dispatch entry,
	// which has no successor to end it.
	HorizonMinutes int `json:"horizon_minutes"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TickSeconds == 0 {
		c.TickSeconds = 60
	}
	if c.LookbackHours == 0 {
		c.LookbackHours = 24
	}
	if c.HorizonMinutes == 0 {
		c.HorizonMinutes = 1
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.TickSeconds <= 0 {
		return fmt.Errorf("tick_seconds must be positive")
	}
	if c.LookbackHours <= 0 {
		return fmt.Errorf("lookback_hours must be positive")
	}
	if c.HorizonMinutes <= 0 {
		return fmt.Errorf("horizon_minutes must be positive")
	}
	return nil
}

// Tick returns the evaluation tick as a duration.
func (c Config) Tick() time.Duration { return time.Duration(c.TickSeconds) * time.Second }

// Lookback returns the dispatch query window as a duration.
func (c Config) Lookback() time.Duration { return time.Duration(c.LookbackHours) * time.Hour }

// Horizon returns the implicit last-event duration.
func (c Config) Horizon() time.Duration { return time.Duration(c.HorizonMinutes) * time.Minute }
