package metrics

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatch forwards the event to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordDispatch(ev DispatchEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatch(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordArrival forwards arrivals when supported by the sink.
func (m *MultiSink) RecordArrival(ev ArrivalEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ArrivalRecorder); ok {
			if err := rec.RecordArrival(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetStatus forwards fleet snapshots when supported by the sink.
func (m *MultiSink) RecordFleetStatus(ev FleetStatusEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FleetStatusRecorder); ok {
			if err := rec.RecordFleetStatus(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordAlert forwards alert lifecycle events when supported by the sink.
func (m *MultiSink) RecordAlert(ev AlertEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(AlertRecorder); ok {
			if err := rec.RecordAlert(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
