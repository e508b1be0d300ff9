package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/sosdispatch/core/metrics"
	"github.com/kilianp07/sosdispatch/infra/logger"
)

// InfluxSink writes dispatch events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDispatch writes a dispatch attempt.
func (s *InfluxSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	p := write.NewPointWithMeasurement("dispatch_event").
		AddTag("alert_id", ev.AlertID).
		AddTag("outcome", ev.Outcome).
		AddTag("preferred", strconv.FormatBool(ev.Preferred)).
		AddTag("component", "dispatch_engine")
	if ev.UnitID != "" {
		p = p.AddTag("unit_id", ev.UnitID)
	}
	p = p.AddField("eta_minutes", ev.ETAMinutes).
		AddField("distance_km", round3(ev.DistanceKm)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordArrival writes a unit arrival with its response time.
func (s *InfluxSink) RecordArrival(ev coremetrics.ArrivalEvent) error {
	p := write.NewPointWithMeasurement("unit_arrival").
		AddTag("alert_id", ev.AlertID).
		AddTag("unit_id", ev.UnitID).
		AddField("response_s", round3(ev.ResponseTime.Seconds())).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordFleetStatus writes a fleet utilisation snapshot.
func (s *InfluxSink) RecordFleetStatus(ev coremetrics.FleetStatusEvent) error {
	p := write.NewPointWithMeasurement("fleet_status").
		AddTag("component", "fleet").
		AddField("available", ev.Available).
		AddField("busy", ev.Busy).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAlert writes an alert lifecycle event.
func (s *InfluxSink) RecordAlert(ev coremetrics.AlertEvent) error {
	p := write.NewPointWithMeasurement("alert_event").
		AddTag("alert_id", ev.AlertID).
		AddTag("type", ev.Type).
		AddField("status", ev.Status).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the client resources.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
