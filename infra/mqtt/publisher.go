package mqtt

import (
	"fmt"
	"sync"
	"time"

	coremqtt "github.com/kilianp07/sosdispatch/core/mqtt"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// MockPublisher records orders and status updates in memory.
type MockPublisher struct {
	Orders     map[string]coremqtt.Order
	Statuses   []coremqtt.StatusUpdate
	Cleared    []string
	FailIDs    map[string]bool
	AckResults map[string]bool
	mu         sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Orders:     make(map[string]coremqtt.Order),
		FailIDs:    make(map[string]bool),
		AckResults: make(map[string]bool),
	}
}

// SendOrder records the order or returns an error if the unit is configured
// to fail.
func (m *MockPublisher) SendOrder(o coremqtt.Order) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[o.UnitID] {
		return "", fmt.Errorf("publish failed")
	}
	m.Orders[o.UnitID] = o
	commandID := fmt.Sprintf("cmd-%s-%s", o.UnitID, o.AlertID)
	m.AckResults[commandID] = true
	return commandID, nil
}

// PublishStatus records the update.
func (m *MockPublisher) PublishStatus(u coremqtt.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[u.AlertID] {
		return fmt.Errorf("publish failed")
	}
	m.Statuses = append(m.Statuses, u)
	return nil
}

// ClearStatus drops the recorded statuses of the alert, as the broker drops
// its retained message.
func (m *MockPublisher) ClearStatus(alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[alertID] {
		return fmt.Errorf("publish failed")
	}
	kept := m.Statuses[:0]
	for _, u := range m.Statuses {
		if u.AlertID != alertID {
			kept = append(kept, u)
		}
	}
	m.Statuses = kept
	m.Cleared = append(m.Cleared, alertID)
	return nil
}

// WaitForAck simulates an immediate acknowledgment based on the stored result.
func (m *MockPublisher) WaitForAck(commandID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	ok, exists := m.AckResults[commandID]
	m.mu.Unlock()
	if !exists {
		return false, fmt.Errorf("unknown command")
	}
	return ok, nil
}

// ClearedIDs returns the alerts whose status was cleared.
func (m *MockPublisher) ClearedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Cleared...)
}

// Snapshot returns copies of the recorded orders and statuses.
func (m *MockPublisher) Snapshot() (map[string]coremqtt.Order, []coremqtt.StatusUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make(map[string]coremqtt.Order, len(m.Orders))
	for k, v := range m.Orders {
		orders[k] = v
	}
	return orders, append([]coremqtt.StatusUpdate(nil), m.Statuses...)
}
