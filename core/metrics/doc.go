// Package metrics defines the sinks used to observe the dispatch engine.
// Sinks like PromSink and InfluxSink record dispatch outcomes, unit arrivals
// and fleet utilisation and can be combined with NewMultiSink. The factory
// helpers return a MultiSink automatically when multiple sinks are
// configured.
package metrics
