package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	for _, st := range Statuses {
		got, err := ParseStatus(string(st))
		if err != nil || got != st {
			t.Fatalf("parse %s: got %s %v", st, got, err)
		}
	}
	if _, err := ParseStatus("flying"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus got %v", err)
	}
}

func TestAlertDispatchable(t *testing.T) {
	a := Alert{ID: "SOS-1"}
	if !a.Dispatchable() {
		t.Fatalf("fresh alert should be dispatchable")
	}
	a.Dispatch = &Dispatch{Status: StatusPending}
	if !a.Dispatchable() {
		t.Fatalf("pending alert should be dispatchable")
	}
	for _, st := range []DispatchStatus{StatusDispatched, StatusEnRoute, StatusArrived, StatusResolved} {
		a.Dispatch.Status = st
		if a.Dispatchable() {
			t.Fatalf("%s should not be dispatchable", st)
		}
	}
}

func TestAlertCloneIsDeep(t *testing.T) {
	now := time.Now()
	pos := Location{Lat: 1, Lon: 2}
	a := Alert{ID: "SOS-1", Dispatch: &Dispatch{Status: StatusDispatched, UnitID: "U1", DispatchedAt: &now, UnitPosition: &pos}}
	c := a.Clone()
	c.Dispatch.UnitID = "U2"
	c.Dispatch.UnitPosition.Lat = 9
	*c.Dispatch.DispatchedAt = now.Add(time.Hour)
	if a.Dispatch.UnitID != "U1" || a.Dispatch.UnitPosition.Lat != 1 || !a.Dispatch.DispatchedAt.Equal(now) {
		t.Fatalf("clone shares state with original: %+v", a.Dispatch)
	}
}

func TestAlertConsistent(t *testing.T) {
	cases := []struct {
		name string
		d    *Dispatch
		want bool
	}{
		{"no dispatch", nil, true},
		{"active with unit", &Dispatch{Status: StatusEnRoute, UnitID: "U1"}, true},
		{"active without unit", &Dispatch{Status: StatusArrived}, false},
		{"resolved with unit", &Dispatch{Status: StatusResolved, UnitID: "U1"}, false},
		{"resolved keeps history", &Dispatch{Status: StatusResolved, LastUnitID: "U1"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := Alert{Dispatch: c.d}
			if got := a.Consistent(); got != c.want {
				t.Fatalf("got %v want %v", got, c.want)
			}
		})
	}
}

func TestErrorContext(t *testing.T) {
	err := E("dispatch", "SOS-1", "PATROL-01", ErrUnitUnavailable)
	if !errors.Is(err, ErrUnitUnavailable) {
		t.Fatalf("unwrap failed")
	}
	if got := err.Error(); got != "dispatch alert=SOS-1 unit=PATROL-01: unit unavailable" {
		t.Fatalf("unexpected message %q", got)
	}
}
