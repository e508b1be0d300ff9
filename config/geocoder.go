package config

import "github.com/kilianp07/sosdispatch/auth"

// GeocoderConfig configures address resolution for triggers without
// coordinates. An empty Type disables it.
type GeocoderConfig struct {
	Type         string    `json:"type"`
	BaseURL      string    `json:"base_url"`
	UserAgent    string    `json:"user_agent"`
	CountryCodes string    `json:"country_codes"`
	Auth         auth.Conf `json:"auth"`
}

// SetDefaults applies default values.
func (c *GeocoderConfig) SetDefaults() {
	if c.Type != "" && c.UserAgent == "" {
		c.UserAgent = "sosd"
	}
}

// Enabled reports whether a geocoder is configured.
func (c GeocoderConfig) Enabled() bool { return c.Type != "" }
