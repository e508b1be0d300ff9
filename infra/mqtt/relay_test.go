package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/sosdispatch/core/events"
	"github.com/kilianp07/sosdispatch/core/model"
	coremon "github.com/kilianp07/sosdispatch/core/monitoring"
)

func dispatchedAlert() model.Alert {
	pos := model.Location{Lat: 19.11, Lon: 72.87}
	return model.Alert{
		ID:       "SOS-1",
		Location: model.Location{Lat: 19.10, Lon: 72.85},
		Address:  "Bandra",
		Dispatch: &model.Dispatch{Status: model.StatusDispatched, UnitID: "PATROL-03", ETAMinutes: 5, UnitPosition: &pos},
	}
}

func TestRelayForwardsEvents(t *testing.T) {
	pub := NewMockPublisher()
	r := NewRelay(pub, nil, 0)
	a := dispatchedAlert()

	ch := make(chan events.AlertEvent, 8)
	ch <- events.AlertEvent{Type: events.Created, Alert: model.Alert{ID: "SOS-1"}}
	ch <- events.AlertEvent{Type: events.Dispatched, Alert: a, UnitID: "PATROL-03"}
	ch <- events.AlertEvent{Type: events.Moved, Alert: a, UnitID: "PATROL-03"}
	resolved := a.Clone()
	resolved.Dispatch.Status = model.StatusResolved
	resolved.Dispatch.UnitID = ""
	resolved.Dispatch.ETAMinutes = 0
	ch <- events.AlertEvent{Type: events.Status, Alert: resolved, UnitID: "PATROL-03"}
	close(ch)

	r.Run(context.Background(), ch)

	orders, statuses := pub.Snapshot()
	o, ok := orders["PATROL-03"]
	if !ok || o.AlertID != "SOS-1" || o.ETAMinutes != 5 || o.Address != "Bandra" {
		t.Fatalf("unexpected orders %+v", orders)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected dispatched and resolved statuses, got %+v", statuses)
	}
	if statuses[0].Status != "dispatched" || statuses[1].Status != "resolved" || statuses[1].UnitID != "PATROL-03" {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
}

func TestRelayStopsOnCancel(t *testing.T) {
	r := NewRelay(NewMockPublisher(), nil, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, make(chan events.AlertEvent))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("relay did not stop")
	}
}

func TestRelayOrderFailureStillPublishesStatus(t *testing.T) {
	pub := NewMockPublisher()
	pub.FailIDs["PATROL-03"] = true
	r := NewRelay(pub, nil, 0)
	r.Handle(events.AlertEvent{Type: events.Dispatched, Alert: dispatchedAlert(), UnitID: "PATROL-03"})
	orders, statuses := pub.Snapshot()
	if len(orders) != 0 || len(statuses) != 1 {
		t.Fatalf("unexpected %v %v", orders, statuses)
	}
}

func TestRelayDismissedClearsRetainedStatus(t *testing.T) {
	pub := NewMockPublisher()
	r := NewRelay(pub, nil, 0)
	r.Handle(events.AlertEvent{Type: events.Dispatched, Alert: dispatchedAlert(), UnitID: "PATROL-03"})
	r.Handle(events.AlertEvent{Type: events.Dismissed, Alert: dispatchedAlert(), UnitID: "PATROL-03"})

	_, statuses := pub.Snapshot()
	if len(statuses) != 0 {
		t.Fatalf("dismissed alert still has a retained status: %+v", statuses)
	}
	if cleared := pub.ClearedIDs(); len(cleared) != 1 || cleared[0] != "SOS-1" {
		t.Fatalf("expected SOS-1 cleared, got %v", cleared)
	}

	// an alert evicted before any dispatch is cleared as well
	r.Handle(events.AlertEvent{Type: events.Dismissed, Alert: model.Alert{ID: "SOS-2"}})
	if cleared := pub.ClearedIDs(); len(cleared) != 2 || cleared[1] != "SOS-2" {
		t.Fatalf("expected SOS-2 cleared, got %v", cleared)
	}
}

type panicAcker struct {
	*MockPublisher
}

func (panicAcker) WaitForAck(string, time.Duration) (bool, error) { panic("ack wait") }

type panicMonitor struct {
	mu        sync.Mutex
	recovered []any
	done      chan struct{}
}

func (m *panicMonitor) CaptureException(error, map[string]string) {}
func (m *panicMonitor) Flush(time.Duration)                       {}
func (m *panicMonitor) Recover() {
	if v := recover(); v != nil {
		m.mu.Lock()
		m.recovered = append(m.recovered, v)
		m.mu.Unlock()
		close(m.done)
	}
}

func TestRelayAckWaitReportsPanics(t *testing.T) {
	mon := &panicMonitor{done: make(chan struct{})}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	r := NewRelay(panicAcker{NewMockPublisher()}, nil, time.Second)
	r.Handle(events.AlertEvent{Type: events.Dispatched, Alert: dispatchedAlert(), UnitID: "PATROL-03"})
	select {
	case <-mon.done:
	case <-time.After(2 * time.Second):
		t.Fatal("ack wait panic was not reported to the monitor")
	}
	mon.mu.Lock()
	defer mon.mu.Unlock()
	if len(mon.recovered) != 1 || mon.recovered[0] != "ack wait" {
		t.Fatalf("unexpected recovered values %v", mon.recovered)
	}
}
