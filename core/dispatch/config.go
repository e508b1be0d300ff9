package dispatch

import (
	"fmt"

	"github.com/kilianp07/sosdispatch/core/geo"
)

// DefaultMaxReserveAttempts bounds nearest-unit reselection after a lost
// reservation race.
const DefaultMaxReserveAttempts = 3

// Config defines dispatch-related settings.
type Config struct {
	// SpeedKmPerMin is the assumed unit travel speed used for ETAs.
	SpeedKmPerMin float64 `json:"speed_km_per_min"`
	// MaxReserveAttempts is how many times nearest selection is retried when
	// a concurrent caller reserves the chosen unit first.
	MaxReserveAttempts int `json:"max_reserve_attempts"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.SpeedKmPerMin <= 0 {
		c.SpeedKmPerMin = geo.DefaultSpeedKmPerMin
	}
	if c.MaxReserveAttempts <= 0 {
		c.MaxReserveAttempts = DefaultMaxReserveAttempts
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.SpeedKmPerMin <= 0 {
		return fmt.Errorf("dispatch: speed_km_per_min must be positive")
	}
	if c.MaxReserveAttempts < 1 {
		return fmt.Errorf("dispatch: max_reserve_attempts must be at least 1")
	}
	return nil
}
