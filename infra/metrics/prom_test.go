package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/kilianp07/sosdispatch/core/metrics"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	_ = s.RecordDispatch(coremetrics.DispatchEvent{UnitID: "PATROL-03", Outcome: coremetrics.OutcomeAssigned})
	_ = s.RecordDispatch(coremetrics.DispatchEvent{Outcome: coremetrics.OutcomeNoUnits})
	_ = s.RecordArrival(coremetrics.ArrivalEvent{ResponseTime: 5 * time.Minute})
	_ = s.RecordFleetStatus(coremetrics.FleetStatusEvent{Available: 4, Busy: 1})
	_ = s.RecordAlert(coremetrics.AlertEvent{Type: "created"})

	if v := testutil.ToFloat64(s.dispatches.WithLabelValues("PATROL-03", "assigned")); v != 1 {
		t.Fatalf("assigned counter %v", v)
	}
	if v := testutil.ToFloat64(s.dispatches.WithLabelValues("none", "no_units")); v != 1 {
		t.Fatalf("no_units counter %v", v)
	}
	if v := testutil.ToFloat64(s.fleet.WithLabelValues("busy")); v != 1 {
		t.Fatalf("busy gauge %v", v)
	}
	if v := testutil.ToFloat64(s.alerts.WithLabelValues("created")); v != 1 {
		t.Fatalf("alert counter %v", v)
	}
	if n := testutil.CollectAndCount(s.response); n != 1 {
		t.Fatalf("histogram not collected")
	}
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	_ = a.RecordAlert(coremetrics.AlertEvent{Type: "read"})
	if v := testutil.ToFloat64(b.alerts.WithLabelValues("read")); v != 1 {
		t.Fatalf("collectors not shared: %v", v)
	}
}

func TestFactoryCreatesSinks(t *testing.T) {
	s, err := coremetrics.NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("nil config: %v", err)
	}
	if _, ok := s.(coremetrics.NopSink); !ok {
		t.Fatalf("expected NopSink got %T", s)
	}
}
