package events

import (
	"time"

	"github.com/kilianp07/sosdispatch/core/model"
)

// Type names an alert lifecycle event.
type Type string

const (
	Created    Type = "created"
	Read       Type = "read"
	Dismissed  Type = "dismissed"
	Dispatched Type = "dispatched"
	Moved      Type = "moved"
	Arrived    Type = "arrived"
	Status     Type = "status"
)

// AlertEvent carries a snapshot of the alert after the change.
type AlertEvent struct {
	Type  Type        `json:"type"`
	Alert model.Alert `json:"alert"`
	// UnitID is the unit involved, including one just released.
	UnitID string    `json:"unit_id,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher accepts alert events. *eventbus.TypedBus[AlertEvent] satisfies it.
type Publisher interface {
	Publish(AlertEvent)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(AlertEvent) {}
