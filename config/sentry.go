package config

import "fmt"

// SentryConfig defines settings for Sentry error monitoring. Reporting is
// off while DSN is empty.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	Release          string  `json:"release"`
	SampleRate       float64 `json:"sample_rate"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	// IgnoreOutcomes lists dispatch outcomes that are expected under load
	// and should not be reported, e.g. "no_units".
	IgnoreOutcomes []string `json:"ignore_outcomes"`
}

// SetDefaults reports every error when no sample rate is given.
func (c *SentryConfig) SetDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 1
	}
	if c.Environment == "" {
		c.Environment = "production"
	}
}

// Validate checks the sample rates.
func (c SentryConfig) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sentry: sample_rate %v out of [0,1]", c.SampleRate)
	}
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return fmt.Errorf("sentry: traces_sample_rate %v out of [0,1]", c.TracesSampleRate)
	}
	return nil
}
