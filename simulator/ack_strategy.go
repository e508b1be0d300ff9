package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/sosdispatch/core/mqtt"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// Publisher is the subset of paho.Client used to send acknowledgments.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// AckStrategy defines how a patrol unit acknowledges dispatch orders.
// It reports whether an acknowledgment was sent.
type AckStrategy interface {
	Ack(ctx context.Context, pub Publisher, unitID, commandID string) (bool, error)
}

// AutoAck sends an ACK after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context, pub Publisher, unitID, commandID string) (bool, error) {
	if !wait(ctx, a.Delay) {
		return false, ctx.Err()
	}
	return true, publishAck(pub, unitID, commandID)
}

// RandomAck drops acknowledgments with the configured probability and
// waits for the specified delay before sending.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64
}

// Ack implements AckStrategy.
func (r RandomAck) Ack(ctx context.Context, pub Publisher, unitID, commandID string) (bool, error) {
	if r.DropRate > 0 && rng.Float64() < r.DropRate {
		return false, nil
	}
	if !wait(ctx, r.Delay) {
		return false, ctx.Err()
	}
	return true, publishAck(pub, unitID, commandID)
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func publishAck(pub Publisher, unitID, commandID string) error {
	payload, err := json.Marshal(struct {
		CommandID string `json:"command_id"`
	}{CommandID: commandID})
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}
	token := pub.Publish(coremqtt.UnitAckTopic(unitID), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("ack publish timeout for %s", unitID)
	}
	return token.Error()
}
