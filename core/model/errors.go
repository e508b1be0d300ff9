package model

import (
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnitUnavailable   = errors.New("unit unavailable")
	ErrNoUnitsAvailable  = errors.New("no units available")
	ErrAlreadyDispatched = errors.New("already dispatched")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// Error carries the operation and the entities involved in a failure so
// callers can decide whether to retry, pick another unit or escalate.
type Error struct {
	Op      string
	AlertID string
	UnitID  string
	Err     error
}

// E wraps err with operation context.
func E(op, alertID, unitID string, err error) *Error {
	return &Error{Op: op, AlertID: alertID, UnitID: unitID, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.AlertID != "" {
		b.WriteString(" alert=")
		b.WriteString(e.AlertID)
	}
	if e.UnitID != "" {
		b.WriteString(" unit=")
		b.WriteString(e.UnitID)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }
