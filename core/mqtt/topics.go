package mqtt

import (
	"fmt"
	"strings"
)

// OrderTopic is where a unit receives dispatch orders.
func OrderTopic(unitID string) string { return fmt.Sprintf("patrol/%s/dispatch", unitID) }

// StatusTopic carries dispatch status changes of an alert.
func StatusTopic(alertID string) string { return fmt.Sprintf("sos/%s/status", alertID) }

// AckTopic is the default topic units acknowledge orders on.
const AckTopic = "patrol/+/ack"

// UnitAckTopic is the acknowledgment topic of a single unit.
func UnitAckTopic(unitID string) string { return fmt.Sprintf("patrol/%s/ack", unitID) }

// UnitFromTopic extracts the unit id of a patrol/<id>/... topic.
func UnitFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "patrol" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
