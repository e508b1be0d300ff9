package model

import "fmt"

// DispatchStatus is the lifecycle state of an alert's dispatch record.
type DispatchStatus string

const (
	StatusPending    DispatchStatus = "pending"
	StatusDispatched DispatchStatus = "dispatched"
	StatusEnRoute    DispatchStatus = "en_route"
	StatusArrived    DispatchStatus = "arrived"
	StatusResolved   DispatchStatus = "resolved"
)

// Statuses lists every recognised dispatch status in lifecycle order.
var Statuses = []DispatchStatus{StatusPending, StatusDispatched, StatusEnRoute, StatusArrived, StatusResolved}

// ParseStatus converts s into a DispatchStatus. Unknown values fail with
// ErrInvalidStatus.
func ParseStatus(s string) (DispatchStatus, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of %v)", ErrInvalidStatus, s, Statuses)
}

// Active reports whether a unit is committed to the alert in this status.
func (s DispatchStatus) Active() bool {
	return s == StatusDispatched || s == StatusEnRoute || s == StatusArrived
}

// Moving reports whether the unit is still travelling toward the alert.
func (s DispatchStatus) Moving() bool {
	return s == StatusDispatched || s == StatusEnRoute
}

func (s DispatchStatus) String() string { return string(s) }

// UnitStatus is the availability of a patrol unit.
type UnitStatus string

const (
	UnitAvailable UnitStatus = "available"
	UnitBusy      UnitStatus = "busy"
)
