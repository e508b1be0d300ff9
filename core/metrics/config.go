package metrics

import "github.com/kilianp07/sosdispatch/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr exposes /metrics when set, e.g. ":9100".
	PrometheusAddr string `json:"prometheus_addr"`
	// FleetIntervalSeconds is how often fleet utilisation is sampled.
	FleetIntervalSeconds int `json:"fleet_interval_seconds"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.FleetIntervalSeconds <= 0 {
		c.FleetIntervalSeconds = 30
	}
}
