// Package sos exposes the dispatch engine's operations to callers: alert
// intake, dispatch, status polling and overrides, with every change
// published as an events.AlertEvent.
package sos

import (
	"errors"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/kilianp07/sosdispatch/core/alerts"
	"github.com/kilianp07/sosdispatch/core/dispatch"
	"github.com/kilianp07/sosdispatch/core/events"
	"github.com/kilianp07/sosdispatch/core/fleet"
	"github.com/kilianp07/sosdispatch/core/logger"
	"github.com/kilianp07/sosdispatch/core/metrics"
	"github.com/kilianp07/sosdispatch/core/model"
	"github.com/kilianp07/sosdispatch/core/movement"
)

// DefaultAddress is recorded when a trigger carries no address.
const DefaultAddress = "Unknown location"

// TriggerRequest is the input of TriggerAlert.
type TriggerRequest struct {
	Location model.Location `json:"location"`
	Address  string         `json:"address,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// Summary counts alerts by state. Alerts without a dispatch record count as
// pending; dispatched includes en_route.
type Summary struct {
	Total      int `json:"total"`
	Unread     int `json:"unread"`
	Pending    int `json:"pending"`
	Dispatched int `json:"dispatched"`
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	clock clockz.Clock
	log   logger.Logger
	sink  metrics.MetricsSink
	pub   events.Publisher
	newID func() string
}

// WithClock sets the clock shared by every component.
func WithClock(c clockz.Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the logger shared by every component.
func WithLogger(l logger.Logger) Option { return func(o *options) { o.log = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(s metrics.MetricsSink) Option { return func(o *options) { o.sink = s } }

// WithPublisher sets the destination of alert events.
func WithPublisher(p events.Publisher) Option { return func(o *options) { o.pub = p } }

// WithIDFunc overrides alert id generation.
func WithIDFunc(fn func() string) Option { return func(o *options) { o.newID = fn } }

// Coordinator wires the alert registry, the fleet, the dispatch engine and
// the movement simulator together.
type Coordinator struct {
	cfg    Config
	alerts *alerts.Registry
	fleet  *fleet.Fleet
	engine *dispatch.Engine
	sim    *movement.Simulator
	clock  clockz.Clock
	log    logger.Logger
	sink   metrics.MetricsSink
	pub    events.Publisher
}

// New builds a Coordinator over roster. An empty roster selects
// fleet.DefaultRoster.
func New(cfg Config, roster []model.PatrolUnit, opts ...Option) (*Coordinator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{clock: clockz.RealClock, sink: metrics.NopSink{}, pub: events.NopPublisher{}}
	for _, fn := range opts {
		fn(&o)
	}
	o.log = logger.OrNop(o.log)

	if len(roster) == 0 {
		roster = fleet.DefaultRoster()
	}
	f, err := fleet.New(roster)
	if err != nil {
		return nil, fmt.Errorf("sos: %w", err)
	}

	c := &Coordinator{cfg: cfg, fleet: f, clock: o.clock, log: o.log, sink: o.sink, pub: o.pub}

	regOpts := []alerts.Option{alerts.WithLogger(o.log), alerts.WithEvictHook(c.evicted)}
	if o.newID != nil {
		regOpts = append(regOpts, alerts.WithIDFunc(o.newID))
	}
	c.alerts = alerts.NewRegistry(cfg.Capacity, f, o.clock, regOpts...)

	c.engine, err = dispatch.NewEngine(c.alerts, f, cfg.Dispatch,
		dispatch.WithClock(o.clock), dispatch.WithLogger(o.log), dispatch.WithMetrics(o.sink))
	if err != nil {
		return nil, err
	}
	c.sim, err = movement.NewSimulator(c.alerts, f, c.engine, cfg.Movement,
		movement.WithClock(o.clock), movement.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// Lazy reports whether movement advances on reads.
func (c *Coordinator) Lazy() bool { return c.cfg.Movement.Mode == movement.ModeLazy }

// TriggerAlert records a new alert. Empty address and message take defaults.
func (c *Coordinator) TriggerAlert(req TriggerRequest) (model.Alert, error) {
	if req.Address == "" {
		req.Address = DefaultAddress
	}
	if req.Message == "" {
		req.Message = "SOS EMERGENCY at " + req.Address
	}
	a, err := c.alerts.Create(req.Location, req.Address, req.Message)
	if err != nil {
		return model.Alert{}, err
	}
	c.log.Infof("alert %s: triggered at %.5f,%.5f", a.ID, a.Location.Lat, a.Location.Lon)
	c.emit(events.Created, a, "")
	return a, nil
}

// ListAlerts returns alerts newest first, advancing movement first in lazy
// mode.
func (c *Coordinator) ListAlerts(unreadOnly bool) []model.Alert {
	if c.Lazy() {
		c.Advance()
	}
	return c.alerts.List(unreadOnly)
}

// GetAlert returns one alert, advancing its unit first in lazy mode.
func (c *Coordinator) GetAlert(id string) (model.Alert, error) {
	if c.Lazy() {
		step, err := c.sim.Advance(id)
		if err != nil {
			return model.Alert{}, err
		}
		if step.Moved {
			c.stepped(step)
		}
	}
	return c.alerts.Get(id)
}

// MarkAlertRead acknowledges an alert. Repeated calls are no-ops.
func (c *Coordinator) MarkAlertRead(id string) (model.Alert, error) {
	before, err := c.alerts.Get(id)
	if err != nil {
		return model.Alert{}, err
	}
	a, err := c.alerts.MarkRead(id)
	if err != nil {
		return model.Alert{}, err
	}
	if !before.Read {
		c.emit(events.Read, a, "")
	}
	return a, nil
}

// DismissAlert deletes an alert and frees the unit it held.
func (c *Coordinator) DismissAlert(id string) (model.Alert, error) {
	a, err := c.alerts.Delete(id)
	if err != nil {
		return model.Alert{}, err
	}
	c.emit(events.Dismissed, a, a.AssignedUnit())
	return a, nil
}

// Dispatch assigns a unit to the alert.
func (c *Coordinator) Dispatch(id string, req dispatch.Request) (dispatch.Result, error) {
	res, err := c.engine.Dispatch(id, req)
	if err != nil {
		return dispatch.Result{}, err
	}
	c.emit(events.Dispatched, res.Alert, res.Unit.ID)
	return res, nil
}

// SetDispatchStatus forces the alert's dispatch status.
func (c *Coordinator) SetDispatchStatus(id, status string) (model.Alert, error) {
	ch, err := c.sim.SetStatus(id, status)
	if err != nil {
		return model.Alert{}, err
	}
	unit := ch.Released
	if unit == "" {
		unit = ch.Alert.AssignedUnit()
	}
	c.emit(events.Status, ch.Alert, unit)
	if ch.Alert.DispatchStatus() == model.StatusArrived && ch.Previous.Moving() {
		c.arrived(ch.Alert)
	}
	return ch.Alert, nil
}

// ListUnits returns the roster sorted by id.
func (c *Coordinator) ListUnits() []model.PatrolUnit {
	if c.Lazy() {
		c.Advance()
	}
	return c.fleet.ListUnits()
}

// GetUnit returns one unit.
func (c *Coordinator) GetUnit(id string) (model.PatrolUnit, error) {
	return c.fleet.Get(id)
}

// CountSummary counts alerts by state.
func (c *Coordinator) CountSummary() Summary {
	var s Summary
	for _, a := range c.ListAlerts(false) {
		s.Total++
		if !a.Read {
			s.Unread++
		}
		switch a.DispatchStatus() {
		case "", model.StatusPending:
			s.Pending++
		case model.StatusDispatched, model.StatusEnRoute:
			s.Dispatched++
		}
	}
	return s
}

// Advance moves every travelling unit and publishes the resulting events.
func (c *Coordinator) Advance() []movement.Step {
	steps := c.sim.AdvanceAll()
	for _, st := range steps {
		c.stepped(st)
	}
	return steps
}

// Schedule registers the periodic jobs on t: movement in ticker mode and
// fleet utilisation sampling when fleetEvery is positive.
func (c *Coordinator) Schedule(t *movement.Ticker, fleetEvery time.Duration) error {
	if !c.Lazy() {
		if _, err := t.Every(c.cfg.Movement.Interval(), movement.AdvanceJob(c.sim, c.stepped)); err != nil {
			return err
		}
	}
	if fleetEvery > 0 {
		if _, err := t.Every(fleetEvery, c.RecordFleetStatus); err != nil {
			return err
		}
	}
	return nil
}

// RecordFleetStatus hands a utilisation snapshot to the metrics sink.
func (c *Coordinator) RecordFleetStatus() {
	rec, ok := c.sink.(metrics.FleetStatusRecorder)
	if !ok {
		return
	}
	avail, busy := c.fleet.Counts()
	ev := metrics.FleetStatusEvent{Available: avail, Busy: busy, Time: c.clock.Now()}
	if err := rec.RecordFleetStatus(ev); err != nil {
		c.log.Errorf("metrics error: %v", err)
	}
}

// CheckInvariants verifies that unit references and reservations agree:
// every active dispatch references a unit busy for that alert, no unit
// serves two alerts and every busy unit belongs to a live alert.
func (c *Coordinator) CheckInvariants() error {
	var errs []error
	owner := map[string]string{}
	for _, a := range c.alerts.List(false) {
		if !a.Consistent() {
			errs = append(errs, fmt.Errorf("alert %s: status %q with unit %q", a.ID, a.DispatchStatus(), a.Dispatch.UnitID))
			continue
		}
		u := a.AssignedUnit()
		if u == "" {
			continue
		}
		if prev, dup := owner[u]; dup {
			errs = append(errs, fmt.Errorf("unit %s assigned to %s and %s", u, prev, a.ID))
		}
		owner[u] = a.ID
	}
	for _, u := range c.fleet.ListUnits() {
		id, referenced := owner[u.ID]
		switch {
		case referenced && (u.Available() || u.AlertID != id):
			errs = append(errs, fmt.Errorf("unit %s serves %s but fleet has status %s for %q", u.ID, id, u.Status, u.AlertID))
		case !referenced && !u.Available():
			errs = append(errs, fmt.Errorf("unit %s busy for %q without an active alert", u.ID, u.AlertID))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) stepped(st movement.Step) {
	unit := st.Alert.AssignedUnit()
	if st.Arrived {
		c.emit(events.Arrived, st.Alert, unit)
		c.arrived(st.Alert)
		return
	}
	c.emit(events.Moved, st.Alert, unit)
}

func (c *Coordinator) arrived(a model.Alert) {
	rec, ok := c.sink.(metrics.ArrivalRecorder)
	if !ok || a.Dispatch == nil || a.Dispatch.DispatchedAt == nil {
		return
	}
	now := c.clock.Now()
	ev := metrics.ArrivalEvent{
		AlertID:      a.ID,
		UnitID:       a.Dispatch.UnitID,
		ResponseTime: now.Sub(*a.Dispatch.DispatchedAt),
		Time:         now,
	}
	if err := rec.RecordArrival(ev); err != nil {
		c.log.Errorf("metrics error: %v", err)
	}
}

func (c *Coordinator) evicted(a model.Alert) {
	c.log.Warnf("alert %s: evicted at capacity %d", a.ID, c.cfg.Capacity)
	c.emit(events.Dismissed, a, a.AssignedUnit())
}

func (c *Coordinator) emit(t events.Type, a model.Alert, unitID string) {
	c.pub.Publish(events.AlertEvent{Type: t, Alert: a, UnitID: unitID, At: c.clock.Now()})
}
