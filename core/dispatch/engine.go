// Package dispatch assigns patrol units to SOS alerts.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/zoobzio/clockz"

	"github.com/kilianp07/sosdispatch/core/geo"
	"github.com/kilianp07/sosdispatch/core/logger"
	"github.com/kilianp07/sosdispatch/core/metrics"
	"github.com/kilianp07/sosdispatch/core/model"
	coremon "github.com/kilianp07/sosdispatch/core/monitoring"
)

// Fleet is the subset of the patrol fleet used for assignment.
type Fleet interface {
	FindNearestAvailable(target model.Location, exclude ...string) (model.PatrolUnit, error)
	Reserve(unitID, alertID string) (model.PatrolUnit, error)
	Release(unitID string) error
}

// Alerts is the subset of the alert registry used for assignment.
type Alerts interface {
	Get(id string) (model.Alert, error)
	UpdateDispatch(id string, fn func(*model.Alert) error) (model.Alert, error)
}

// Request carries the optional inputs of a dispatch.
type Request struct {
	// UnitID selects a specific unit instead of the nearest available one.
	UnitID string `json:"unit_id,omitempty"`
}

// Result describes a successful assignment.
type Result struct {
	Unit         model.PatrolUnit `json:"unit"`
	ETAMinutes   int              `json:"eta_minutes"`
	UnitPosition model.Location   `json:"unit_position"`
	DistanceKm   float64          `json:"distance_km"`
	Alert        model.Alert      `json:"alert"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for dispatch timestamps.
func WithClock(c clockz.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = logger.OrNop(l) } }

// WithMetrics sets the sink receiving dispatch outcomes.
func WithMetrics(s metrics.MetricsSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// Engine coordinates the alert registry and the fleet. It holds no state of
// its own.
type Engine struct {
	alerts Alerts
	fleet  Fleet
	cfg    Config
	clock  clockz.Clock
	log    logger.Logger
	sink   metrics.MetricsSink
}

// NewEngine creates a dispatch engine. Zero config values take defaults.
func NewEngine(alerts Alerts, fleet Fleet, cfg Config, opts ...Option) (*Engine, error) {
	if alerts == nil || fleet == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewEngine")
	}
	cfg.SetDefaults()
	e := &Engine{
		alerts: alerts,
		fleet:  fleet,
		cfg:    cfg,
		clock:  clockz.RealClock,
		log:    logger.NopLogger{},
		sink:   metrics.NopSink{},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Dispatch assigns a unit to the alert. Without a preferred unit the nearest
// available one is chosen. On failure neither the alert nor the fleet is
// changed.
func (e *Engine) Dispatch(alertID string, req Request) (Result, error) {
	res, err := e.dispatch(alertID, req)
	e.record(alertID, req, res, err)
	return res, err
}

func (e *Engine) dispatch(alertID string, req Request) (Result, error) {
	a, err := e.alerts.Get(alertID)
	if err != nil {
		return Result{}, err
	}
	if !a.Dispatchable() {
		return Result{}, model.E("dispatch", alertID, a.Dispatch.UnitID, model.ErrAlreadyDispatched)
	}

	unit, err := e.reserve(a, req.UnitID)
	if err != nil {
		return Result{}, err
	}

	dist, err := geo.DistanceKm(unit.CurrentPosition, a.Location)
	if err != nil {
		e.release(unit.ID, "dispatch_failed")
		return Result{}, model.E("dispatch", alertID, unit.ID, err)
	}
	eta := geo.ETAMinutes(dist, e.cfg.SpeedKmPerMin)
	now := e.clock.Now()
	pos := unit.CurrentPosition

	updated, err := e.alerts.UpdateDispatch(alertID, func(x *model.Alert) error {
		if !x.Dispatchable() {
			return model.E("dispatch", alertID, x.Dispatch.UnitID, model.ErrAlreadyDispatched)
		}
		at := now
		p := pos
		x.Dispatch = &model.Dispatch{
			Status:       model.StatusDispatched,
			UnitID:       unit.ID,
			UnitName:     unit.Name,
			LastUnitID:   unit.ID,
			DispatchedAt: &at,
			ETAMinutes:   eta,
			UnitPosition: &p,
			LastMovedAt:  now,
		}
		return nil
	})
	if err != nil {
		e.release(unit.ID, "dispatch_failed")
		return Result{}, err
	}

	e.log.Infof("alert %s: dispatched %s (%.2f km, eta %d min)", alertID, unit.ID, dist, eta)
	return Result{Unit: unit, ETAMinutes: eta, UnitPosition: pos, DistanceKm: dist, Alert: updated}, nil
}

// reserve claims the preferred unit, or the nearest available one. A lost
// race excludes that unit and reselects, up to MaxReserveAttempts times.
func (e *Engine) reserve(a model.Alert, preferred string) (model.PatrolUnit, error) {
	if preferred != "" {
		return e.fleet.Reserve(preferred, a.ID)
	}
	var lost []string
	for attempt := 0; attempt < e.cfg.MaxReserveAttempts; attempt++ {
		cand, err := e.fleet.FindNearestAvailable(a.Location, lost...)
		if err != nil {
			var merr *model.Error
			if errors.As(err, &merr) && merr.AlertID == "" {
				merr.AlertID = a.ID
			}
			return model.PatrolUnit{}, err
		}
		u, err := e.fleet.Reserve(cand.ID, a.ID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, model.ErrUnitUnavailable) {
			return model.PatrolUnit{}, err
		}
		e.log.Debugf("alert %s: unit %s taken concurrently, reselecting", a.ID, cand.ID)
		reserveRetries.Inc()
		lost = append(lost, cand.ID)
	}
	return model.PatrolUnit{}, model.E("dispatch", a.ID, "",
		fmt.Errorf("%w: lost %d reservation races", model.ErrUnitUnavailable, len(lost)))
}

// Release returns a unit to the pool, recording why.
func (e *Engine) Release(unitID, reason string) error {
	if err := e.fleet.Release(unitID); err != nil {
		return err
	}
	releasesTotal.WithLabelValues(reason).Inc()
	return nil
}

func (e *Engine) release(unitID, reason string) {
	if err := e.Release(unitID, reason); err != nil {
		e.log.Errorf("release %s: %v", unitID, err)
	}
}

func (e *Engine) record(alertID string, req Request, res Result, err error) {
	outcome := Outcome(err)
	dispatchRequests.WithLabelValues(outcome).Inc()
	if err == nil {
		dispatchETA.Observe(float64(res.ETAMinutes))
	} else {
		e.log.Warnf("alert %s: dispatch failed: %v", alertID, err)
	}
	if outcome == metrics.OutcomeNoUnits || outcome == metrics.OutcomeError {
		coremon.CaptureException(err, map[string]string{"module": "dispatch", "alert_id": alertID, "outcome": outcome})
	}
	ev := metrics.DispatchEvent{
		AlertID:    alertID,
		UnitID:     res.Unit.ID,
		Outcome:    outcome,
		ETAMinutes: res.ETAMinutes,
		DistanceKm: res.DistanceKm,
		Preferred:  req.UnitID != "",
		Time:       e.clock.Now(),
	}
	if serr := e.sink.RecordDispatch(ev); serr != nil {
		e.log.Errorf("metrics error: %v", serr)
	}
}

// Outcome maps a dispatch error onto a metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeAssigned
	case errors.Is(err, model.ErrAlreadyDispatched):
		return metrics.OutcomeAlreadyDispatched
	case errors.Is(err, model.ErrUnitUnavailable):
		return metrics.OutcomeUnitUnavailable
	case errors.Is(err, model.ErrNoUnitsAvailable):
		return metrics.OutcomeNoUnits
	default:
		return metrics.OutcomeError
	}
}
