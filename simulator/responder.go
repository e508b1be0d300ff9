package main

import (
	"context"
	"encoding/json"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/sosdispatch/core/logger"
	coremqtt "github.com/kilianp07/sosdispatch/core/mqtt"
)

// dispatchOrder is the order payload published by the dispatch relay.
type dispatchOrder struct {
	CommandID string `json:"command_id"`
	coremqtt.Order
}

// Responder plays the patrol units: it receives dispatch orders on
// patrol/+/dispatch and acknowledges them with its strategy.
type Responder struct {
	Strategy AckStrategy
	Workers  int

	units map[string]bool
	queue chan dispatchOrder
	log   logger.Logger

	mu    sync.Mutex
	acked map[string]int
}

// NewResponder creates a responder. An empty unit list answers for every unit.
func NewResponder(strat AckStrategy, units []string, log logger.Logger) *Responder {
	r := &Responder{
		Strategy: strat,
		Workers:  4,
		queue:    make(chan dispatchOrder, 64),
		log:      logger.OrNop(log),
		acked:    make(map[string]int),
	}
	if len(units) > 0 {
		r.units = make(map[string]bool, len(units))
		for _, u := range units {
			r.units[u] = true
		}
	}
	return r
}

// Run subscribes through cli and acknowledges orders until ctx is done.
func (r *Responder) Run(ctx context.Context, cli paho.Client) error {
	topic := coremqtt.OrderTopic("+")
	if token := cli.Subscribe(topic, 1, r.onOrder); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	r.log.Infof("listening for orders on %s", topic)
	r.Serve(ctx, cli)
	return nil
}

// Serve runs the ack workers against pub until ctx is done.
func (r *Responder) Serve(ctx context.Context, pub Publisher) {
	var wg sync.WaitGroup
	for i := 0; i < r.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, pub)
		}()
	}
	wg.Wait()
}

func (r *Responder) onOrder(_ paho.Client, msg paho.Message) {
	unitID, ok := coremqtt.UnitFromTopic(msg.Topic())
	if !ok {
		r.log.Warnf("unexpected topic %s", msg.Topic())
		return
	}
	if r.units != nil && !r.units[unitID] {
		return
	}
	var o dispatchOrder
	if err := json.Unmarshal(msg.Payload(), &o); err != nil {
		r.log.Errorf("%s: decode order: %v", unitID, err)
		return
	}
	if o.CommandID == "" {
		r.log.Warnf("%s: order without command id", unitID)
		return
	}
	o.UnitID = unitID
	r.log.Debugw("order received", map[string]any{
		"unit_id":  unitID,
		"alert_id": o.AlertID,
		"eta":      o.ETAMinutes,
		"address":  o.Address,
	})
	select {
	case r.queue <- o:
	default:
		r.log.Warnf("%s: ack queue full, dropping command %s", unitID, o.CommandID)
	}
}

func (r *Responder) worker(ctx context.Context, pub Publisher) {
	for {
		select {
		case o := <-r.queue:
			sent, err := r.Strategy.Ack(ctx, pub, o.UnitID, o.CommandID)
			if err != nil {
				r.log.Errorf("%s: ack %s: %v", o.UnitID, o.CommandID, err)
				continue
			}
			if !sent {
				r.log.Infof("%s: dropped ack for alert %s", o.UnitID, o.AlertID)
				continue
			}
			r.mu.Lock()
			r.acked[o.UnitID]++
			r.mu.Unlock()
			r.log.Infof("%s: acknowledged alert %s (eta %d min)", o.UnitID, o.AlertID, o.ETAMinutes)
		case <-ctx.Done():
			return
		}
	}
}

// Acked returns how many orders each unit acknowledged.
func (r *Responder) Acked() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.acked))
	for k, v := range r.acked {
		out[k] = v
	}
	return out
}
