// Package events defines the alert lifecycle events emitted on the event bus.
//
// Available event types (AlertEvent.Type):
//   - created: new SOS alert
//   - read: alert acknowledged by an operator
//   - dismissed: alert deleted or evicted, unit released
//   - dispatched: unit assigned
//   - moved: simulated unit position advanced
//   - arrived: unit reached the alert location
//   - status: manual status override
package events
