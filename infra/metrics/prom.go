package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/sosdispatch/core/metrics"
)

// PromSink records dispatch, arrival, alert and fleet events in Prometheus
// metrics.
type PromSink struct {
	dispatches *prometheus.CounterVec
	response   prometheus.Histogram
	fleet      *prometheus.GaugeVec
	alerts     *prometheus.CounterVec
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sos_dispatch_events_total",
		Help: "Dispatch attempts by unit and outcome",
	}, []string{"unit_id", "outcome"})
	response := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sos_response_time_seconds",
		Help:    "Time between dispatch and arrival on scene",
		Buckets: []float64{60, 120, 300, 600, 900, 1200, 1800, 2700, 3600},
	})
	fleet := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sos_fleet_units",
		Help: "Patrol units by availability",
	}, []string{"status"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sos_alert_events_total",
		Help: "Alert lifecycle events by type",
	}, []string{"type"})

	var err error
	if dispatches, err = register(reg, dispatches); err != nil {
		return nil, err
	}
	if response, err = register(reg, response); err != nil {
		return nil, err
	}
	if fleet, err = register(reg, fleet); err != nil {
		return nil, err
	}
	if alerts, err = register(reg, alerts); err != nil {
		return nil, err
	}
	return &PromSink{dispatches: dispatches, response: response, fleet: fleet, alerts: alerts}, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDispatch increments the dispatch counter.
func (s *PromSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	unit := ev.UnitID
	if unit == "" {
		unit = "none"
	}
	s.dispatches.WithLabelValues(unit, ev.Outcome).Inc()
	return nil
}

// RecordArrival observes the response time.
func (s *PromSink) RecordArrival(ev coremetrics.ArrivalEvent) error {
	s.response.Observe(ev.ResponseTime.Seconds())
	return nil
}

// RecordFleetStatus sets the availability gauges.
func (s *PromSink) RecordFleetStatus(ev coremetrics.FleetStatusEvent) error {
	s.fleet.WithLabelValues("available").Set(float64(ev.Available))
	s.fleet.WithLabelValues("busy").Set(float64(ev.Busy))
	return nil
}

// RecordAlert counts alert lifecycle events.
func (s *PromSink) RecordAlert(ev coremetrics.AlertEvent) error {
	s.alerts.WithLabelValues(ev.Type).Inc()
	return nil
}
