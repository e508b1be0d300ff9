package config

import (
	"fmt"

	"github.com/kilianp07/sosdispatch/core/geo"
	"github.com/kilianp07/sosdispatch/core/model"
)

// UnitConfig declares a patrol unit stationed at Lat/Lon.
type UnitConfig struct {
	ID   string  `json:"id" yaml:"id"`
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
}

// FleetConfig lists the roster. An empty list selects the built-in roster.
type FleetConfig struct {
	Units []UnitConfig `json:"units"`
}

// Roster converts the configured units, all available at home.
func (c FleetConfig) Roster() []model.PatrolUnit {
	out := make([]model.PatrolUnit, 0, len(c.Units))
	for _, u := range c.Units {
		home := model.Location{Lat: u.Lat, Lon: u.Lon}
		out = append(out, model.PatrolUnit{
			ID:              u.ID,
			Name:            u.Name,
			HomePosition:    home,
			CurrentPosition: home,
			Status:          model.UnitAvailable,
		})
	}
	return out
}

// Validate checks ids and coordinates.
func (c FleetConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Units))
	for i, u := range c.Units {
		if u.ID == "" {
			return fmt.Errorf("fleet.units[%d]: id is required", i)
		}
		if _, dup := seen[u.ID]; dup {
			return fmt.Errorf("fleet.units[%d]: duplicate id %s", i, u.ID)
		}
		seen[u.ID] = struct{}{}
		if err := geo.Validate(model.Location{Lat: u.Lat, Lon: u.Lon}); err != nil {
			return fmt.Errorf("fleet.units[%d]: %w", i, err)
		}
	}
	return nil
}
