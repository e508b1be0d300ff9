package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchRequests *prometheus.CounterVec
	reserveRetries   prometheus.Counter
	dispatchETA      prometheus.Histogram
	releasesTotal    *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Histogram, *prometheus.CounterVec) {
	req := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Dispatch requests by outcome",
		},
		[]string{"outcome"},
	)
	retry := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_reserve_retries_total",
			Help: "Nearest-unit reselections after a lost reservation race",
		},
	)
	eta := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_eta_minutes",
			Help:    "ETA in minutes of assigned units at dispatch time",
			Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 45, 60},
		},
	)
	rel := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_unit_releases_total",
			Help: "Units returned to the pool by reason",
		},
		[]string{"reason"},
	)
	return req, retry, eta, rel
}

func init() {
	dispatchRequests, reserveRetries, dispatchETA, releasesTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchRequests, reserveRetries, dispatchETA, releasesTotal)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispatchRequests, reserveRetries, dispatchETA, releasesTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
