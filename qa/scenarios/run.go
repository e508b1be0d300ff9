package scenarios

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zoobzio/clockz"

	"github.com/kilianp07/sosdispatch/core/dispatch"
	"github.com/kilianp07/sosdispatch/core/model"
	"github.com/kilianp07/sosdispatch/core/movement"
	"github.com/kilianp07/sosdispatch/core/sos"
)

// Result summarises a run.
type Result struct {
	Name    string
	Log     []string
	Summary sos.Summary
	Units   []model.PatrolUnit
}

type runner struct {
	sc    *Scenario
	c     *sos.Coordinator
	clock *clockz.FakeClock
	refs  map[string]string
	seq   int
	log   []string
}

// Run executes the scenario and returns the first failed expectation as an
// error. The fleet/alert invariants are checked after every step.
func Run(sc *Scenario) (*Result, error) {
	r := &runner{sc: sc, clock: clockz.NewFakeClock(), refs: map[string]string{}}
	units := make([]model.PatrolUnit, len(sc.Units))
	for i, u := range sc.Units {
		units[i] = u.ToModel()
	}
	cfg := sos.Config{
		Capacity: sc.Settings.Capacity,
		Dispatch: dispatch.Config{SpeedKmPerMin: sc.Settings.SpeedKmPerMin, MaxReserveAttempts: sc.Settings.MaxReserveAttempts},
		Movement: movement.Config{Mode: sc.Settings.Mode},
	}
	c, err := sos.New(cfg, units, sos.WithClock(r.clock), sos.WithIDFunc(r.nextID))
	if err != nil {
		return nil, err
	}
	r.c = c

	for i, st := range sc.Steps {
		if err := r.step(st); err != nil {
			return r.result(), fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := c.CheckInvariants(); err != nil {
			return r.result(), fmt.Errorf("step %d: invariant violated: %w", i+1, err)
		}
	}
	res := r.result()
	return res, r.checkExpected(res)
}

// nextID yields predictable ids so expectations can name alerts.
func (r *runner) nextID() string {
	r.seq++
	return fmt.Sprintf("SOS-%08d", r.seq)
}

func (r *runner) result() *Result {
	return &Result{Name: r.sc.Name, Log: r.log, Summary: r.c.CountSummary(), Units: r.c.ListUnits()}
}

func (r *runner) logf(format string, args ...any) {
	r.log = append(r.log, fmt.Sprintf(format, args...))
}

func (r *runner) id(ref string) string {
	if id, ok := r.refs[ref]; ok {
		return id
	}
	return ref
}

func (r *runner) step(st Step) error {
	switch {
	case st.Trigger != nil:
		return r.trigger(*st.Trigger)
	case st.Dispatch != nil:
		return r.dispatch(*st.Dispatch)
	case st.Status != nil:
		s := st.Status
		_, err := r.c.SetDispatchStatus(r.id(s.Alert), s.Status)
		r.logf("status %s -> %s: %s", s.Alert, s.Status, Kind(err))
		return expectErr(s.Error, err)
	case st.Advance > 0:
		r.clock.Advance(st.Advance)
		r.logf("advance %s", st.Advance)
		if !r.c.Lazy() {
			r.c.Advance()
		}
		return nil
	case st.Tick:
		r.logf("tick: %d units moved", len(r.c.Advance()))
		return nil
	case st.Read != "":
		_, err := r.c.MarkAlertRead(r.id(st.Read))
		r.logf("read %s", st.Read)
		return err
	case st.Dismiss != "":
		_, err := r.c.DismissAlert(r.id(st.Dismiss))
		r.logf("dismiss %s", st.Dismiss)
		return err
	case st.Expect != nil:
		return r.check(*st.Expect)
	}
	return fmt.Errorf("empty step")
}

func (r *runner) trigger(t TriggerStep) error {
	n := t.Count
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		a, err := r.c.TriggerAlert(sos.TriggerRequest{
			Location: model.Location{Lat: t.Lat, Lon: t.Lon},
			Address:  t.Address,
			Message:  t.Message,
		})
		if err := expectErr(t.Error, err); err != nil {
			return err
		}
		if err != nil {
			r.logf("trigger rejected: %s", Kind(err))
			return nil
		}
		if t.Ref != "" {
			r.refs[t.Ref] = a.ID
		}
		r.logf("trigger %s at %.4f,%.4f", a.ID, t.Lat, t.Lon)
	}
	return nil
}

func (r *runner) dispatch(d DispatchStep) error {
	res, err := r.c.Dispatch(r.id(d.Alert), dispatch.Request{UnitID: d.Unit})
	if err != nil {
		r.logf("dispatch %s: %s", d.Alert, Kind(err))
	} else {
		r.logf("dispatch %s: %s eta %d", d.Alert, res.Unit.ID, res.ETAMinutes)
	}
	if err := expectErr(d.Error, err); err != nil || d.Error != "" {
		return err
	}
	if d.ExpectUnit != "" && res.Unit.ID != d.ExpectUnit {
		return fmt.Errorf("dispatch %s: expected unit %s got %s", d.Alert, d.ExpectUnit, res.Unit.ID)
	}
	if d.ExpectETA != nil && res.ETAMinutes != *d.ExpectETA {
		return fmt.Errorf("dispatch %s: expected eta %d got %d", d.Alert, *d.ExpectETA, res.ETAMinutes)
	}
	return nil
}

func (r *runner) check(c AlertCheck) error {
	a, err := r.c.GetAlert(r.id(c.Alert))
	if c.Missing {
		if !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("expect %s missing, got %v", c.Alert, err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	var problems []string
	if c.Status != "" && string(a.DispatchStatus()) != c.Status {
		problems = append(problems, fmt.Sprintf("status %q want %q", a.DispatchStatus(), c.Status))
	}
	if c.Unit != "" && a.AssignedUnit() != c.Unit {
		problems = append(problems, fmt.Sprintf("unit %q want %q", a.AssignedUnit(), c.Unit))
	}
	if c.ETA != nil && (a.Dispatch == nil || a.Dispatch.ETAMinutes != *c.ETA) {
		got := -1
		if a.Dispatch != nil {
			got = a.Dispatch.ETAMinutes
		}
		problems = append(problems, fmt.Sprintf("eta %d want %d", got, *c.ETA))
	}
	if c.Read != nil && a.Read != *c.Read {
		problems = append(problems, fmt.Sprintf("read %v want %v", a.Read, *c.Read))
	}
	if len(problems) > 0 {
		return fmt.Errorf("expect %s: %s", c.Alert, strings.Join(problems, ", "))
	}
	r.logf("expect %s ok", c.Alert)
	return nil
}

func (r *runner) checkExpected(res *Result) error {
	e := r.sc.Expected
	var problems []string
	cmp := func(name string, want *int, got int) {
		if want != nil && *want != got {
			problems = append(problems, fmt.Sprintf("%s %d want %d", name, got, *want))
		}
	}
	cmp("total", e.Total, res.Summary.Total)
	cmp("unread", e.Unread, res.Summary.Unread)
	cmp("pending", e.Pending, res.Summary.Pending)
	cmp("dispatched", e.Dispatched, res.Summary.Dispatched)
	for id, want := range e.Units {
		u, err := r.c.GetUnit(id)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if string(u.Status) != want {
			problems = append(problems, fmt.Sprintf("unit %s %s want %s", id, u.Status, want))
		}
	}
	if len(e.Newest) > 0 {
		list := r.c.ListAlerts(false)
		for i, want := range e.Newest {
			if i >= len(list) || list[i].ID != r.id(want) {
				problems = append(problems, fmt.Sprintf("newest[%d] want %s", i, want))
				break
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("expected: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Kind names the error category used in scenario expectations.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, model.ErrInvalidCoordinate):
		return "invalid_coordinate"
	}
	return dispatch.Outcome(err)
}

func expectErr(want string, err error) error {
	if want == "" {
		return err
	}
	if got := Kind(err); got != want {
		return fmt.Errorf("expected %s got %s (%v)", want, got, err)
	}
	return nil
}
