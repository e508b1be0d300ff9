package metrics

import "time"

// Dispatch outcomes.
const (
	OutcomeAssigned          = "assigned"
	OutcomeAlreadyDispatched = "already_dispatched"
	OutcomeUnitUnavailable   = "unit_unavailable"
	OutcomeNoUnits           = "no_units"
	OutcomeError             = "error"
)

// DispatchEvent describes a single dispatch attempt.
type DispatchEvent struct {
	AlertID    string
	UnitID     string
	Outcome    string
	ETAMinutes int
	DistanceKm float64
	Preferred  bool
	Time       time.Time
}

// MetricsSink records dispatch attempts for observability purposes.
type MetricsSink interface {
	RecordDispatch(ev DispatchEvent) error
}

// ArrivalEvent is emitted when a unit reaches its alert.
type ArrivalEvent struct {
	AlertID string
	UnitID  string
	// ResponseTime is the time between dispatch and arrival.
	ResponseTime time.Duration
	Time         time.Time
}

// ArrivalRecorder records unit arrivals.
type ArrivalRecorder interface {
	RecordArrival(ev ArrivalEvent) error
}

// FleetStatusEvent is a utilisation snapshot of the fleet.
type FleetStatusEvent struct {
	Available int
	Busy      int
	Time      time.Time
}

// FleetStatusRecorder records fleet utilisation.
type FleetStatusRecorder interface {
	RecordFleetStatus(ev FleetStatusEvent) error
}

// AlertEvent records an alert lifecycle change.
type AlertEvent struct {
	AlertID string
	Type    string
	Status  string
	Time    time.Time
}

// AlertRecorder records alert lifecycle changes.
type AlertRecorder interface {
	RecordAlert(ev AlertEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchEvent) error       { return nil }
func (NopSink) RecordArrival(ArrivalEvent) error         { return nil }
func (NopSink) RecordFleetStatus(FleetStatusEvent) error { return nil }
func (NopSink) RecordAlert(AlertEvent) error             { return nil }
