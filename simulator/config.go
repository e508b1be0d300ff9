package main

import (
	"errors"
	"time"
)

// Config holds parameters for the patrol unit simulator.
type Config struct {
	Broker     string
	ConfigFile string
	Units      []string
	AckLatency time.Duration
	DropRate   float64
	Workers    int
	Verbose    bool
}

// Validate checks the simulator parameters.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker required")
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.New("drop-rate must be within [0,1]")
	}
	if c.AckLatency < 0 {
		return errors.New("ack-latency must be positive")
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return nil
}
