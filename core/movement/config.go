package movement

import (
	"fmt"
	"time"

	"github.com/kilianp07/sosdispatch/core/geo"
)

const (
	// ModeLazy advances units whenever alerts are read.
	ModeLazy = "lazy"
	// ModeTicker advances units on a fixed interval.
	ModeTicker = "ticker"

	// DefaultArrivalThresholdKm is the distance at which a unit counts as arrived.
	DefaultArrivalThresholdKm = 0.05
)

// Config defines movement simulation settings.
type Config struct {
	Mode               string  `json:"mode"`
	IntervalSeconds    int     `json:"interval_seconds"`
	ArrivalThresholdKm float64 `json:"arrival_threshold_km"`
	// SpeedKmPerMin mirrors the dispatch speed so ETAs stay consistent.
	SpeedKmPerMin float64 `json:"-"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = ModeLazy
	}
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 5
	}
	if c.ArrivalThresholdKm <= 0 {
		c.ArrivalThresholdKm = DefaultArrivalThresholdKm
	}
	if c.SpeedKmPerMin <= 0 {
		c.SpeedKmPerMin = geo.DefaultSpeedKmPerMin
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.Mode != ModeLazy && c.Mode != ModeTicker {
		return fmt.Errorf("movement: unknown mode %s", c.Mode)
	}
	return nil
}

// Interval returns the ticker period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
