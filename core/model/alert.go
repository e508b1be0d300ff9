package model

import "time"

// PriorityCritical is the only priority emitted for SOS alerts.
const PriorityCritical = "critical"

// Alert is a citizen-triggered emergency awaiting patrol response.
type Alert struct {
	ID        string    `json:"id"`
	Location  Location  `json:"location"`
	Address   string    `json:"address"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
	Priority  string    `json:"priority"`
	Dispatch  *Dispatch `json:"dispatch,omitempty"`
}

// Dispatch tracks the assignment of a unit to an alert.
type Dispatch struct {
	Status       DispatchStatus `json:"status"`
	UnitID       string         `json:"unit_id,omitempty"`
	UnitName     string         `json:"unit_name,omitempty"`
	LastUnitID   string         `json:"last_unit_id,omitempty"`
	DispatchedAt *time.Time     `json:"dispatched_at,omitempty"`
	ETAMinutes   int            `json:"eta_minutes"`
	UnitPosition *Location      `json:"unit_position,omitempty"`
	LastMovedAt  time.Time      `json:"last_moved_at"`
}

// DispatchStatus returns the alert's dispatch status, or "" when no dispatch
// has been recorded yet.
func (a Alert) DispatchStatus() DispatchStatus {
	if a.Dispatch == nil {
		return ""
	}
	return a.Dispatch.Status
}

// Dispatchable reports whether a new dispatch may be attempted.
func (a Alert) Dispatchable() bool {
	st := a.DispatchStatus()
	return st == "" || st == StatusPending
}

// AssignedUnit returns the unit actively serving the alert, if any.
func (a Alert) AssignedUnit() string {
	if a.Dispatch == nil || !a.Dispatch.Status.Active() {
		return ""
	}
	return a.Dispatch.UnitID
}

// Clone returns a deep copy so callers never share the registry's pointers.
func (a Alert) Clone() Alert {
	if a.Dispatch == nil {
		return a
	}
	d := *a.Dispatch
	if d.DispatchedAt != nil {
		t := *d.DispatchedAt
		d.DispatchedAt = &t
	}
	if d.UnitPosition != nil {
		p := *d.UnitPosition
		d.UnitPosition = &p
	}
	a.Dispatch = &d
	return a
}

// Consistent checks that the unit reference matches the status: a unit is
// referenced iff the status is dispatched, en_route or arrived.
func (a Alert) Consistent() bool {
	if a.Dispatch == nil {
		return true
	}
	return (a.Dispatch.UnitID != "") == a.Dispatch.Status.Active()
}
