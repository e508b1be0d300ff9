package config

// HTTPConfig defines the API listener.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// LogToken guards /api/dispatch/logs when set.
	LogToken     string  `json:"log_token"`
	TriggerRPS   float64 `json:"trigger_rps"`
	TriggerBurst int     `json:"trigger_burst"`
}

// SetDefaults applies default values.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.TriggerRPS > 0 && c.TriggerBurst <= 0 {
		c.TriggerBurst = 5
	}
}
