// Package alerts holds the bounded, time-ordered registry of SOS alerts.
package alerts

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/kilianp07/sosdispatch/core/geo"
	"github.com/kilianp07/sosdispatch/core/logger"
	"github.com/kilianp07/sosdispatch/core/model"
)

// DefaultCapacity is the number of alerts retained before the oldest is
// evicted.
const DefaultCapacity = 100

// Releaser frees a patrol unit. PatrolFleet satisfies it.
type Releaser interface {
	Release(unitID string) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithIDFunc overrides alert id generation.
func WithIDFunc(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithEvictHook registers a callback invoked, outside the registry lock, for
// every alert dropped by capacity eviction.
func WithEvictHook(fn func(model.Alert)) Option {
	return func(r *Registry) { r.onEvict = fn }
}

// Registry is the lock-guarded alert collection. Alerts are kept oldest first
// internally and returned newest first.
type Registry struct {
	mu       sync.Mutex
	alerts   map[string]*model.Alert
	order    []string
	capacity int

	releaser Releaser
	clock    clockz.Clock
	log      logger.Logger
	newID    func() string
	onEvict  func(model.Alert)
}

// NewRegistry creates an empty registry. A non-positive capacity selects
// DefaultCapacity and a nil clock selects the real clock.
func NewRegistry(capacity int, releaser Releaser, clock clockz.Clock, opts ...Option) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	r := &Registry{
		alerts:   make(map[string]*model.Alert, capacity+1),
		capacity: capacity,
		releaser: releaser,
		clock:    clock,
		log:      logger.NopLogger{},
		newID:    NewID,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewID returns an alert identifier of the form SOS-XXXXXXXX.
func NewID() string {
	return "SOS-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Create validates loc and inserts a new alert. When the registry is over
// capacity the oldest alerts are evicted and any unit they held is released.
func (r *Registry) Create(loc model.Location, address, message string) (model.Alert, error) {
	if err := geo.Validate(loc); err != nil {
		return model.Alert{}, model.E("alerts.create", "", "", err)
	}

	r.mu.Lock()
	id := r.newID()
	for r.alerts[id] != nil {
		id = r.newID()
	}
	a := &model.Alert{
		ID:        id,
		Location:  loc,
		Address:   address,
		Message:   message,
		CreatedAt: r.clock.Now(),
		Priority:  model.PriorityCritical,
	}
	r.alerts[id] = a
	r.order = append(r.order, id)
	var evicted []model.Alert
	for len(r.order) > r.capacity {
		old := r.order[0]
		r.order = r.order[1:]
		evicted = append(evicted, r.alerts[old].Clone())
		delete(r.alerts, old)
	}
	out := a.Clone()
	r.mu.Unlock()

	for _, e := range evicted {
		r.log.Debugf("alert %s evicted at capacity %d", e.ID, r.capacity)
		r.release(e)
		if r.onEvict != nil {
			r.onEvict(e)
		}
	}
	return out, nil
}

// Get returns a copy of the alert.
func (r *Registry) Get(id string) (model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return model.Alert{}, model.E("alerts.get", id, "", model.ErrNotFound)
	}
	return a.Clone(), nil
}

// List returns alerts newest first, optionally only the unread ones.
func (r *Registry) List(unreadOnly bool) []model.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Alert, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		a := r.alerts[r.order[i]]
		if unreadOnly && a.Read {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

// IDs returns the ids of every alert matching keep, newest first.
func (r *Registry) IDs(keep func(model.Alert) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for i := len(r.order) - 1; i >= 0; i-- {
		a := r.alerts[r.order[i]]
		if keep == nil || keep(*a) {
			out = append(out, a.ID)
		}
	}
	return out
}

// MarkRead flags the alert as read. It is idempotent.
func (r *Registry) MarkRead(id string) (model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return model.Alert{}, model.E("alerts.read", id, "", model.ErrNotFound)
	}
	a.Read = true
	return a.Clone(), nil
}

// Delete removes the alert and releases the unit it was holding.
func (r *Registry) Delete(id string) (model.Alert, error) {
	r.mu.Lock()
	a, ok := r.alerts[id]
	if !ok {
		r.mu.Unlock()
		return model.Alert{}, model.E("alerts.delete", id, "", model.ErrNotFound)
	}
	delete(r.alerts, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	out := a.Clone()
	r.mu.Unlock()

	r.release(out)
	return out, nil
}

// UpdateDispatch applies fn to a copy of the alert and stores the result
// atomically. When fn fails, or leaves the unit reference inconsistent with
// the status, the stored alert is left untouched.
func (r *Registry) UpdateDispatch(id string, fn func(*model.Alert) error) (model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return model.Alert{}, model.E("alerts.update", id, "", model.ErrNotFound)
	}
	next := a.Clone()
	if err := fn(&next); err != nil {
		return model.Alert{}, err
	}
	if !next.Consistent() {
		return model.Alert{}, model.E("alerts.update", id, next.Dispatch.UnitID,
			fmt.Errorf("%w: status %s with unit %q", model.ErrInvalidStatus, next.Dispatch.Status, next.Dispatch.UnitID))
	}
	// identity fields are immutable
	next.ID, next.Location, next.CreatedAt = a.ID, a.Location, a.CreatedAt
	next.Address, next.Message, next.Priority = a.Address, a.Message, a.Priority
	*a = next
	return a.Clone(), nil
}

// Len returns the number of retained alerts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *Registry) release(a model.Alert) {
	unit := a.AssignedUnit()
	if unit == "" || r.releaser == nil {
		return
	}
	if err := r.releaser.Release(unit); err != nil {
		r.log.Warnf("release unit %s for alert %s: %v", unit, a.ID, err)
	}
}
