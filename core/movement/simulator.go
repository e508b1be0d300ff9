// Package movement simulates dispatched units travelling toward their alerts
// and applies manual status overrides.
package movement

import (
	"errors"
	"fmt"

	"github.com/zoobzio/clockz"

	"github.com/kilianp07/sosdispatch/core/geo"
	"github.com/kilianp07/sosdispatch/core/logger"
	"github.com/kilianp07/sosdispatch/core/model"
)

// Alerts is the subset of the alert registry the simulator mutates.
type Alerts interface {
	IDs(keep func(model.Alert) bool) []string
	UpdateDispatch(id string, fn func(*model.Alert) error) (model.Alert, error)
}

// Fleet mirrors simulated positions onto the roster.
type Fleet interface {
	MoveUnit(unitID, alertID string, pos model.Location) bool
}

// Releaser returns a unit to the available pool.
type Releaser interface {
	Release(unitID, reason string) error
}

// Step is the outcome of advancing one alert.
type Step struct {
	Alert   model.Alert
	Moved   bool
	Arrived bool
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock sets the clock used to measure elapsed travel time.
func WithClock(c clockz.Clock) Option { return func(s *Simulator) { s.clock = c } }

// WithLogger sets the simulator logger.
func WithLogger(l logger.Logger) Option { return func(s *Simulator) { s.log = logger.OrNop(l) } }

// Simulator moves units along the great circle at constant speed.
type Simulator struct {
	alerts   Alerts
	fleet    Fleet
	releaser Releaser
	cfg      Config
	clock    clockz.Clock
	log      logger.Logger
}

// NewSimulator creates a Simulator. Zero config values take defaults.
func NewSimulator(alerts Alerts, fleet Fleet, rel Releaser, cfg Config, opts ...Option) (*Simulator, error) {
	if alerts == nil || fleet == nil || rel == nil {
		return nil, fmt.Errorf("movement: nil parameter provided to NewSimulator")
	}
	cfg.SetDefaults()
	s := &Simulator{
		alerts:   alerts,
		fleet:    fleet,
		releaser: rel,
		cfg:      cfg,
		clock:    clockz.RealClock,
		log:      logger.NopLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Simulator) Config() Config { return s.cfg }

// Advance moves the unit assigned to alertID by the distance covered since
// its last update. Alerts without a moving unit are left untouched.
func (s *Simulator) Advance(alertID string) (Step, error) {
	var step Step
	updated, err := s.alerts.UpdateDispatch(alertID, func(a *model.Alert) error {
		step = Step{}
		d := a.Dispatch
		if d == nil || d.UnitPosition == nil || !d.Status.Moving() {
			return nil
		}
		now := s.clock.Now()
		remaining := geo.MustDistanceKm(*d.UnitPosition, a.Location)
		if remaining > s.cfg.ArrivalThresholdKm {
			travel := s.cfg.SpeedKmPerMin * now.Sub(d.LastMovedAt).Minutes()
			if travel <= 0 {
				return nil
			}
			if travel > remaining {
				travel = remaining
			}
			pos := geo.Intermediate(*d.UnitPosition, a.Location, travel/remaining)
			d.UnitPosition = &pos
			remaining = geo.MustDistanceKm(pos, a.Location)
		}
		step.Moved = true
		d.LastMovedAt = now
		if remaining <= s.cfg.ArrivalThresholdKm {
			loc := a.Location
			d.UnitPosition = &loc
			d.Status = model.StatusArrived
			d.ETAMinutes = 0
			step.Arrived = true
			return nil
		}
		if d.Status == model.StatusDispatched {
			d.Status = model.StatusEnRoute
		}
		d.ETAMinutes = geo.ETAMinutes(remaining, s.cfg.SpeedKmPerMin)
		return nil
	})
	if err != nil {
		return Step{}, err
	}
	step.Alert = updated
	if step.Moved {
		d := updated.Dispatch
		if !s.fleet.MoveUnit(d.UnitID, updated.ID, *d.UnitPosition) {
			s.log.Debugf("alert %s: unit %s no longer reserved, position not mirrored", updated.ID, d.UnitID)
		}
		if step.Arrived {
			s.log.Infof("alert %s: unit %s arrived", updated.ID, d.UnitID)
		}
	}
	return step, nil
}

// AdvanceAll advances every alert with a moving unit and returns the steps
// that changed something.
func (s *Simulator) AdvanceAll() []Step {
	ids := s.alerts.IDs(func(a model.Alert) bool { return a.DispatchStatus().Moving() })
	var out []Step
	for _, id := range ids {
		step, err := s.Advance(id)
		if err != nil {
			// deleted concurrently
			if !errors.Is(err, model.ErrNotFound) {
				s.log.Errorf("advance %s: %v", id, err)
			}
			continue
		}
		if step.Moved {
			out = append(out, step)
		}
	}
	return out
}

// StatusChange is the outcome of a manual status override.
type StatusChange struct {
	Alert    model.Alert
	Previous model.DispatchStatus
	// Released is the unit freed by this change, if any.
	Released string
}

// SetStatus forces the alert's dispatch status. Leaving an active status for
// pending or resolved releases the unit exactly once; resolving zeroes the
// ETA. Active statuses require an assigned unit.
func (s *Simulator) SetStatus(alertID, status string) (StatusChange, error) {
	st, err := model.ParseStatus(status)
	if err != nil {
		return StatusChange{}, model.E("set_status", alertID, "", err)
	}
	var change StatusChange
	updated, err := s.alerts.UpdateDispatch(alertID, func(a *model.Alert) error {
		change = StatusChange{}
		if a.Dispatch == nil {
			a.Dispatch = &model.Dispatch{}
		}
		d := a.Dispatch
		change.Previous = d.Status
		now := s.clock.Now()

		if st.Active() {
			if d.UnitID == "" {
				return model.E("set_status", alertID, "",
					fmt.Errorf("%w: %s requires an assigned unit", model.ErrInvalidStatus, st))
			}
			switch {
			case st == model.StatusArrived:
				loc := a.Location
				d.UnitPosition = &loc
				d.ETAMinutes = 0
			case !d.Status.Moving():
				// resume travel from now
				d.LastMovedAt = now
			}
			d.Status = st
			return nil
		}

		if d.UnitID != "" {
			change.Released = d.UnitID
			d.LastUnitID = d.UnitID
			d.UnitID = ""
		}
		d.Status = st
		d.ETAMinutes = 0
		return nil
	})
	if err != nil {
		return StatusChange{}, err
	}
	change.Alert = updated
	if change.Released != "" {
		if err := s.releaser.Release(change.Released, string(st)); err != nil {
			s.log.Errorf("release %s: %v", change.Released, err)
		}
	}
	s.log.Infof("alert %s: status %s -> %s", alertID, change.Previous, st)
	return change, nil
}
