// Package scenarios replays scripted SOS traffic against an in-memory
// coordinator driven by a fake clock.
package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/sosdispatch/core/model"
)

// UnitDef declares a patrol unit.
type UnitDef struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

func (u UnitDef) ToModel() model.PatrolUnit {
	home := model.Location{Lat: u.Lat, Lon: u.Lon}
	return model.PatrolUnit{ID: u.ID, Name: u.Name, HomePosition: home, CurrentPosition: home, Status: model.UnitAvailable}
}

// Settings overrides engine defaults.
type Settings struct {
	Capacity           int     `yaml:"capacity"`
	SpeedKmPerMin      float64 `yaml:"speed_km_per_min"`
	MaxReserveAttempts int     `yaml:"max_reserve_attempts"`
	Mode               string  `yaml:"mode"`
}

// TriggerStep creates Count alerts (default 1). Ref names the last one.
type TriggerStep struct {
	Ref     string  `yaml:"ref"`
	Lat     float64 `yaml:"lat"`
	Lon     float64 `yaml:"lon"`
	Address string  `yaml:"address"`
	Message string  `yaml:"message"`
	Count   int     `yaml:"count"`
	Error   string  `yaml:"expect_error"`
}

// DispatchStep dispatches an alert and checks the outcome.
type DispatchStep struct {
	Alert      string `yaml:"alert"`
	Unit       string `yaml:"unit"`
	ExpectUnit string `yaml:"expect_unit"`
	ExpectETA  *int   `yaml:"expect_eta"`
	Error      string `yaml:"expect_error"`
}

// StatusStep forces a dispatch status.
type StatusStep struct {
	Alert  string `yaml:"alert"`
	Status string `yaml:"status"`
	Error  string `yaml:"expect_error"`
}

// AlertCheck asserts the current state of an alert.
type AlertCheck struct {
	Alert     string `yaml:"alert"`
	Status    string `yaml:"status"`
	Unit      string `yaml:"unit"`
	ETA       *int   `yaml:"eta"`
	Read      *bool  `yaml:"read"`
	Missing   bool   `yaml:"missing"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Trigger  *TriggerStep  `yaml:"trigger,omitempty"`
	Dispatch *DispatchStep `yaml:"dispatch,omitempty"`
	Advance  time.Duration `yaml:"advance,omitempty"`
	Tick     bool          `yaml:"tick,omitempty"`
	Status   *StatusStep   `yaml:"status,omitempty"`
	Read     string        `yaml:"read,omitempty"`
	Dismiss  string        `yaml:"dismiss,omitempty"`
	Expect   *AlertCheck   `yaml:"expect,omitempty"`
}

// Expected is checked once all steps ran.
type Expected struct {
	Total      *int              `yaml:"total"`
	Unread     *int              `yaml:"unread"`
	Pending    *int              `yaml:"pending"`
	Dispatched *int              `yaml:"dispatched"`
	Units      map[string]string `yaml:"units"`
	Newest     []string          `yaml:"newest"`
}

type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Units       []UnitDef `yaml:"units,omitempty"`
	Settings    Settings  `yaml:"settings"`
	Steps       []Step    `yaml:"steps"`
	Expected    Expected  `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario: name is required")
	}
	return &sc, nil
}
