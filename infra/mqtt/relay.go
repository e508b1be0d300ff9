package mqtt

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/sosdispatch/core/events"
	"github.com/kilianp07/sosdispatch/core/logger"
	coremon "github.com/kilianp07/sosdispatch/core/monitoring"
	coremqtt "github.com/kilianp07/sosdispatch/core/mqtt"
)

// Relay forwards alert events to patrol units: dispatches become orders and
// every dispatch change is broadcast on the alert status topic.
type Relay struct {
	cli        Client
	log        logger.Logger
	ackTimeout time.Duration
}

// NewRelay creates a relay. A positive ackTimeout makes the relay wait for
// each order acknowledgment and log missing ones.
func NewRelay(cli Client, log logger.Logger, ackTimeout time.Duration) *Relay {
	return &Relay{cli: cli, log: logger.OrNop(log), ackTimeout: ackTimeout}
}

// Run consumes sub until it is closed or ctx is canceled.
func (r *Relay) Run(ctx context.Context, sub <-chan events.AlertEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			r.Handle(ev)
		}
	}
}

// Handle forwards a single event.
func (r *Relay) Handle(ev events.AlertEvent) {
	if ev.Type == events.Dismissed {
		// the alert is gone and its unit released; drop the retained state
		if err := r.cli.ClearStatus(ev.Alert.ID); err != nil {
			r.log.Errorf("clear status for %s: %v", ev.Alert.ID, err)
		}
		return
	}
	d := ev.Alert.Dispatch
	if d == nil {
		return
	}
	switch ev.Type {
	case events.Dispatched:
		o := coremqtt.Order{
			UnitID:     ev.UnitID,
			AlertID:    ev.Alert.ID,
			Location:   ev.Alert.Location,
			Address:    ev.Alert.Address,
			Message:    ev.Alert.Message,
			ETAMinutes: d.ETAMinutes,
		}
		id, err := r.cli.SendOrder(o)
		if err != nil {
			r.log.Errorf("order for %s to %s: %v", o.AlertID, o.UnitID, err)
		} else if r.ackTimeout > 0 {
			coremon.Go(func() { r.awaitAck(id, o) })
		}
	case events.Moved:
		// positions are only broadcast on status changes
		return
	case events.Created, events.Read:
		return
	}
	u := coremqtt.StatusUpdate{
		AlertID:      ev.Alert.ID,
		Status:       string(d.Status),
		UnitID:       ev.UnitID,
		ETAMinutes:   d.ETAMinutes,
		UnitPosition: d.UnitPosition,
	}
	if err := r.cli.PublishStatus(u); err != nil {
		r.log.Errorf("status for %s: %v", u.AlertID, err)
	}
}

func (r *Relay) awaitAck(id string, o coremqtt.Order) {
	ok, err := r.cli.WaitForAck(id, r.ackTimeout)
	switch {
	case errors.Is(err, coremqtt.ErrAckTimeout):
		r.log.Warnf("unit %s did not acknowledge order for %s", o.UnitID, o.AlertID)
	case err != nil:
		r.log.Errorf("ack for %s: %v", id, err)
	case !ok:
		r.log.Warnf("unit %s rejected order for %s", o.UnitID, o.AlertID)
	}
}
