package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/sosdispatch/core/alerts"
	"github.com/kilianp07/sosdispatch/core/dispatch"
	"github.com/kilianp07/sosdispatch/core/factory"
	"github.com/kilianp07/sosdispatch/core/metrics"
	"github.com/kilianp07/sosdispatch/core/movement"
	"github.com/kilianp07/sosdispatch/core/sos"
	"github.com/kilianp07/sosdispatch/infra/mqtt"
)

type Config struct {
	HTTP     HTTPConfig             `json:"http"`
	Fleet    FleetConfig            `json:"fleet"`
	Alerts   AlertsConfig           `json:"alerts"`
	Dispatch dispatch.Config        `json:"dispatch"`
	Movement movement.Config        `json:"movement"`
	MQTT     mqtt.Config            `json:"mqtt"`
	Metrics  metrics.Config         `json:"metrics"`
	Logging  LoggingConfig          `json:"logging"`
	Notify   []factory.ModuleConfig `json:"notify"`
	Geocoder GeocoderConfig         `json:"geocoder"`
	Sentry   SentryConfig           `json:"sentry"`
}

// AlertsConfig bounds the in-memory alert registry.
type AlertsConfig struct {
	Capacity int `json:"capacity"`
}

// SOS returns the coordinator settings.
func (c Config) SOS() sos.Config {
	return sos.Config{Capacity: c.Alerts.Capacity, Dispatch: c.Dispatch, Movement: c.Movement}
}

func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return TOMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}

// Load reads path, applies K_ environment overrides, then defaults and
// validation. An empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	if c.Alerts.Capacity <= 0 {
		c.Alerts.Capacity = alerts.DefaultCapacity
	}
	c.Dispatch.SetDefaults()
	c.Movement.SetDefaults()
	c.MQTT.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
	c.Geocoder.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Fleet.Validate(); err != nil {
		return err
	}
	if err := c.SOS().Validate(); err != nil {
		return err
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Sentry.Validate(); err != nil {
		return err
	}
	for i, n := range c.Notify {
		if n.Type == "" {
			return fmt.Errorf("notify[%d]: type is required", i)
		}
	}
	return nil
}
