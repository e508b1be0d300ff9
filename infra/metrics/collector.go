package metrics

import (
	"context"

	"github.com/kilianp07/sosdispatch/core/events"
	coremetrics "github.com/kilianp07/sosdispatch/core/metrics"
	"github.com/kilianp07/sosdispatch/infra/logger"
)

// StartEventCollector records every alert event from sub as an alert metric
// when the sink supports it. It stops when the context is canceled or sub is
// closed.
func StartEventCollector(ctx context.Context, sub <-chan events.AlertEvent, sink coremetrics.MetricsSink) {
	if sub == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.AlertRecorder)
	if !ok {
		return
	}
	log := logger.New("metrics-collector")
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				err := rec.RecordAlert(coremetrics.AlertEvent{
					AlertID: ev.Alert.ID,
					Type:    string(ev.Type),
					Status:  string(ev.Alert.DispatchStatus()),
					Time:    ev.At,
				})
				if err != nil {
					log.Errorf("record alert %s: %v", ev.Alert.ID, err)
				}
			}
		}
	}()
}
