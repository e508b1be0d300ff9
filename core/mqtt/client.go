package mqtt

import (
	"time"

	"github.com/kilianp07/sosdispatch/core/model"
)

// Order is the dispatch instruction sent to a patrol unit.
type Order struct {
	UnitID     string         `json:"unit_id"`
	AlertID    string         `json:"alert_id"`
	Location   model.Location `json:"location"`
	Address    string         `json:"address"`
	Message    string         `json:"message"`
	ETAMinutes int            `json:"eta_minutes"`
}

// StatusUpdate is broadcast whenever an alert's dispatch changes.
type StatusUpdate struct {
	AlertID      string          `json:"alert_id"`
	Status       string          `json:"status"`
	UnitID       string          `json:"unit_id,omitempty"`
	ETAMinutes   int             `json:"eta_minutes"`
	UnitPosition *model.Location `json:"unit_position,omitempty"`
}

// Client represents an MQTT client capable of sending dispatch orders to
// patrol units and waiting for their acknowledgments.
type Client interface {
	// SendOrder publishes the order to the unit topic and returns the command
	// identifier used to track the acknowledgment.
	SendOrder(o Order) (commandID string, err error)

	// PublishStatus broadcasts a dispatch status change for the alert.
	PublishStatus(u StatusUpdate) error

	// ClearStatus removes the retained status of an alert that no longer
	// exists.
	ClearStatus(alertID string) error

	// WaitForAck waits for an acknowledgment for the provided command
	// identifier or until the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)
}
