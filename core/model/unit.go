package model

// PatrolUnit is a fleet resource that can be assigned to an alert.
type PatrolUnit struct {
	ID              string     `json:"id" yaml:"id"`
	Name            string     `json:"name" yaml:"name"`
	HomePosition    Location   `json:"home_position" yaml:"home_position"`
	Status          UnitStatus `json:"status" yaml:"status"`
	CurrentPosition Location   `json:"current_position" yaml:"current_position"`
	// AlertID is the alert the unit is reserved for while busy.
	AlertID string `json:"alert_id,omitempty" yaml:"alert_id,omitempty"`
}

// Available reports whether the unit can be reserved.
func (u PatrolUnit) Available() bool { return u.Status == UnitAvailable }
