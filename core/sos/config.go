package sos

import (
	"fmt"

	"github.com/kilianp07/sosdispatch/core/alerts"
	"github.com/kilianp07/sosdispatch/core/dispatch"
	"github.com/kilianp07/sosdispatch/core/movement"
)

// Config groups the settings of the coordinated components.
type Config struct {
	Capacity int             `json:"capacity"`
	Dispatch dispatch.Config `json:"dispatch"`
	Movement movement.Config `json:"movement"`
}

// SetDefaults applies default values. Movement uses the dispatch speed.
func (c *Config) SetDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = alerts.DefaultCapacity
	}
	c.Dispatch.SetDefaults()
	c.Movement.SpeedKmPerMin = c.Dispatch.SpeedKmPerMin
	c.Movement.SetDefaults()
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("sos: capacity must be at least 1")
	}
	if err := c.Dispatch.Validate(); err != nil {
		return err
	}
	return c.Movement.Validate()
}
