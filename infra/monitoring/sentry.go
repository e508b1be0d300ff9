// Package monitoring reports errors and panics to Sentry.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/sosdispatch/config"
	coremon "github.com/kilianp07/sosdispatch/core/monitoring"
)

// NewSentryMonitor initializes Sentry and returns a Monitor. An empty DSN
// disables reporting.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       cfg.SampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
		ServerName:       "sosd",
		BeforeSend:       dropOutcomes(cfg.IgnoreOutcomes),
	})
	if err != nil {
		return nil, err
	}
	return &sentryMonitor{hub: sentry.CurrentHub()}, nil
}

// dropOutcomes filters events tagged with one of the ignored dispatch
// outcomes.
func dropOutcomes(outcomes []string) func(*sentry.Event, *sentry.EventHint) *sentry.Event {
	if len(outcomes) == 0 {
		return nil
	}
	ignored := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		ignored[o] = true
	}
	return func(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
		if ignored[ev.Tags["outcome"]] {
			return nil
		}
		return ev
	}
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		s.hub.Recover(r)
		s.hub.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
