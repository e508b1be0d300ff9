package movement

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/sosdispatch/core/logger"
)

// Ticker runs periodic jobs, such as advancing every moving unit, on a cron
// scheduler. Overlapping runs of the same job are skipped.
type Ticker struct {
	cron *cron.Cron
	log  logger.Logger
}

// NewTicker creates a stopped Ticker.
func NewTicker(log logger.Logger) *Ticker {
	log = logger.OrNop(log)
	cl := cronLogger{log: log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	return &Ticker{cron: c, log: log}
}

// Every schedules fn at the given interval. Intervals are rounded to whole
// seconds with a one second minimum.
func (t *Ticker) Every(d time.Duration, fn func()) (cron.EntryID, error) {
	if d < time.Second {
		d = time.Second
	}
	if fn == nil {
		return 0, fmt.Errorf("movement: nil job")
	}
	return t.cron.Schedule(cron.Every(d), cron.FuncJob(fn)), nil
}

// Entries returns the number of scheduled jobs.
func (t *Ticker) Entries() int { return len(t.cron.Entries()) }

// Run starts the scheduler and blocks until ctx is canceled, then waits for
// running jobs to finish.
func (t *Ticker) Run(ctx context.Context) {
	t.cron.Start()
	<-ctx.Done()
	<-t.cron.Stop().Done()
}

// AdvanceJob returns a job that advances every moving unit and hands each
// step to onStep.
func AdvanceJob(sim *Simulator, onStep func(Step)) func() {
	return func() {
		for _, st := range sim.AdvanceAll() {
			if onStep != nil {
				onStep(st)
			}
		}
	}
}

// cronLogger adapts the component logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debugw("cron: "+msg, kvMap(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}

func kvMap(kv []any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return m
}
