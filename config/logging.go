package config

import (
	"fmt"

	"github.com/kilianp07/sosdispatch/core/dispatch/logging"
)

// LoggingConfig defines the log level and dispatch log storage.
type LoggingConfig struct {
	// Level is the minimum zerolog level: debug, info, warn or error.
	Level string `json:"level"`
	// Backend selects the log store type: "jsonl", "sqlite", "mysql" or
	// "none".
	Backend string `json:"backend"`
	// Path is the file location of the log store.
	Path string `json:"path"`
	// DSN is the MySQL connection string.
	DSN string `json:"dsn"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		switch c.Backend {
		case "jsonl":
			c.Path = "dispatch.log"
		case "sqlite":
			c.Path = "dispatch.db"
		}
	}
}

// Enabled reports whether dispatch logs are stored.
func (c LoggingConfig) Enabled() bool { return c.Backend != "none" }

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	switch c.Backend {
	case "none":
		return nil
	case "jsonl", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("logging: path is required")
		}
	case "mysql":
		if c.DSN == "" {
			return fmt.Errorf("logging: dsn is required for mysql")
		}
	default:
		return fmt.Errorf("logging: unknown backend %s", c.Backend)
	}
	return nil
}

// Options converts the section for logging.Open.
func (c LoggingConfig) Options() logging.Options {
	return logging.Options{
		Backend:    c.Backend,
		Path:       c.Path,
		DSN:        c.DSN,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}
