// Package fleet owns the patrol roster. All status and position changes go
// through the Fleet lock so availability decisions never observe a torn
// write.
package fleet

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/sosdispatch/core/geo"
	"github.com/kilianp07/sosdispatch/core/model"
)

// Fleet is the lock-guarded roster of patrol units.
type Fleet struct {
	mu    sync.RWMutex
	units map[string]*model.PatrolUnit
	ids   []string
}

// New builds a fleet from the given roster. Units start available at their
// home position unless a current position is provided.
func New(units []model.PatrolUnit) (*Fleet, error) {
	f := &Fleet{units: make(map[string]*model.PatrolUnit, len(units))}
	for _, u := range units {
		if err := f.Add(u); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Add registers a unit. Duplicate identifiers and invalid home positions are
// rejected.
func (f *Fleet) Add(u model.PatrolUnit) error {
	if u.ID == "" {
		return fmt.Errorf("fleet: unit id is required")
	}
	if err := geo.Validate(u.HomePosition); err != nil {
		return model.E("fleet.add", "", u.ID, err)
	}
	if u.CurrentPosition == (model.Location{}) {
		u.CurrentPosition = u.HomePosition
	}
	if err := geo.Validate(u.CurrentPosition); err != nil {
		return model.E("fleet.add", "", u.ID, err)
	}
	if u.Status == "" {
		u.Status = model.UnitAvailable
	}
	if u.Status == model.UnitAvailable {
		u.AlertID = ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.units[u.ID]; ok {
		return fmt.Errorf("fleet: duplicate unit %s", u.ID)
	}
	f.units[u.ID] = &u
	f.ids = append(f.ids, u.ID)
	sort.Strings(f.ids)
	return nil
}

// ListUnits returns a snapshot of the roster sorted by id.
func (f *Fleet) ListUnits() []model.PatrolUnit {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.PatrolUnit, 0, len(f.ids))
	for _, id := range f.ids {
		out = append(out, *f.units[id])
	}
	return out
}

// Get returns a snapshot of a single unit.
func (f *Fleet) Get(id string) (model.PatrolUnit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	u, ok := f.units[id]
	if !ok {
		return model.PatrolUnit{}, model.E("fleet.get", "", id, model.ErrNotFound)
	}
	return *u, nil
}

// FindNearestAvailable returns the available unit closest to target by
// great-circle distance. Ties go to the lowest id. Units listed in exclude
// are skipped.
func (f *Fleet) FindNearestAvailable(target model.Location, exclude ...string) (model.PatrolUnit, error) {
	if err := geo.Validate(target); err != nil {
		return model.PatrolUnit{}, model.E("fleet.nearest", "", "", err)
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	candidates := make([]*model.PatrolUnit, 0, len(f.ids))
	dists := make([]float64, 0, len(f.ids))
	for _, id := range f.ids {
		u := f.units[id]
		if !u.Available() || skip[id] {
			continue
		}
		candidates = append(candidates, u)
		dists = append(dists, geo.MustDistanceKm(u.CurrentPosition, target))
	}
	if len(candidates) == 0 {
		return model.PatrolUnit{}, model.E("fleet.nearest", "", "", model.ErrNoUnitsAvailable)
	}
	// ids are sorted, and MinIdx returns the first minimum.
	return *candidates[floats.MinIdx(dists)], nil
}

// Reserve atomically moves a unit from available to busy on behalf of
// alertID.
func (f *Fleet) Reserve(unitID, alertID string) (model.PatrolUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[unitID]
	if !ok {
		return model.PatrolUnit{}, model.E("fleet.reserve", alertID, unitID, model.ErrNotFound)
	}
	if !u.Available() {
		return model.PatrolUnit{}, model.E("fleet.reserve", alertID, unitID, model.ErrUnitUnavailable)
	}
	u.Status = model.UnitBusy
	u.AlertID = alertID
	return *u, nil
}

// Release returns a unit to the available pool. Releasing an available unit
// is a no-op. The unit keeps its last known position.
func (f *Fleet) Release(unitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[unitID]
	if !ok {
		return model.E("fleet.release", "", unitID, model.ErrNotFound)
	}
	u.Status = model.UnitAvailable
	u.AlertID = ""
	return nil
}

// MoveUnit records the unit's simulated position. The update is dropped when
// the unit is no longer reserved for alertID, so a stale movement step can
// never move a unit that has been reassigned.
func (f *Fleet) MoveUnit(unitID, alertID string, pos model.Location) bool {
	if geo.Validate(pos) != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[unitID]
	if !ok || u.Status != model.UnitBusy || u.AlertID != alertID {
		return false
	}
	u.CurrentPosition = pos
	return true
}

// Counts returns the number of available and busy units.
func (f *Fleet) Counts() (available, busy int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, u := range f.units {
		if u.Available() {
			available++
		} else {
			busy++
		}
	}
	return available, busy
}
