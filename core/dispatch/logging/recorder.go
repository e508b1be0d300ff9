package logging

import (
	"context"

	"github.com/kilianp07/sosdispatch/core/events"
	"github.com/kilianp07/sosdispatch/core/logger"
)

// Record appends every event received on sub to store until ctx is done or
// sub is closed.
func Record(ctx context.Context, store LogStore, sub <-chan events.AlertEvent, log logger.Logger) {
	log = logger.OrNop(log)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := store.Append(ctx, FromEvent(ev)); err != nil {
				log.Errorf("dispatch log append: %v", err)
			}
		}
	}
}
