package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/sosdispatch/core/metrics"
)

type lineServer struct {
	mu     sync.Mutex
	bodies []string
	srv    *httptest.Server
}

func newLineServer(t *testing.T) *lineServer {
	t.Helper()
	ls := &lineServer{}
	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		ls.mu.Lock()
		ls.bodies = append(ls.bodies, strings.TrimSpace(string(b)))
		ls.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ls.srv.Close)
	return ls
}

func (ls *lineServer) expect(t *testing.T, p *write.Point) {
	t.Helper()
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.bodies) != 1 || ls.bodies[0] != exp {
		t.Errorf("bodies: %#v want %s", ls.bodies, exp)
	}
}

func TestInfluxSink_RecordDispatch(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.DispatchEvent{AlertID: "SOS-1", UnitID: "PATROL-03", Outcome: "assigned", ETAMinutes: 5, DistanceKm: 2.5634, Time: now}
	if err := sink.RecordDispatch(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	ls.expect(t, write.NewPointWithMeasurement("dispatch_event").
		AddTag("alert_id", "SOS-1").
		AddTag("outcome", "assigned").
		AddTag("preferred", "false").
		AddTag("component", "dispatch_engine").
		AddTag("unit_id", "PATROL-03").
		AddField("eta_minutes", 5).
		AddField("distance_km", 2.563).
		SetTime(now))
}

func TestInfluxSink_RecordArrival(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	if err := sink.RecordArrival(coremetrics.ArrivalEvent{AlertID: "SOS-1", UnitID: "PATROL-03", ResponseTime: 6 * time.Minute, Time: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	ls.expect(t, write.NewPointWithMeasurement("unit_arrival").
		AddTag("alert_id", "SOS-1").
		AddTag("unit_id", "PATROL-03").
		AddField("response_s", 360.0).
		SetTime(now))
}

func TestInfluxSink_RecordFleetStatus(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	if err := sink.RecordFleetStatus(coremetrics.FleetStatusEvent{Available: 3, Busy: 2, Time: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	ls.expect(t, write.NewPointWithMeasurement("fleet_status").
		AddTag("component", "fleet").
		AddField("available", 3).
		AddField("busy", 2).
		SetTime(now))
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
