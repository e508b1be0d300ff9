package logging

import (
	"context"
	"time"

	"github.com/kilianp07/sosdispatch/core/events"
	"github.com/kilianp07/sosdispatch/core/model"
)

// LogRecord captures one alert lifecycle change.
type LogRecord struct {
	Timestamp  time.Time            `json:"timestamp"`
	Action     string               `json:"action"`
	AlertID    string               `json:"alert_id"`
	UnitID     string               `json:"unit_id,omitempty"`
	Status     model.DispatchStatus `json:"status,omitempty"`
	ETAMinutes int                  `json:"eta_minutes"`
	Position   *model.Location      `json:"position,omitempty"`
}

// LogQuery defines filters for retrieving records. Zero fields match
// everything.
type LogQuery struct {
	Start   time.Time
	End     time.Time
	AlertID string
	UnitID  string
	Action  string
	// Limit keeps only the most recent records when positive.
	Limit int
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// FromEvent converts a bus event into a log record.
func FromEvent(ev events.AlertEvent) LogRecord {
	rec := LogRecord{
		Timestamp: ev.At,
		Action:    string(ev.Type),
		AlertID:   ev.Alert.ID,
		UnitID:    ev.UnitID,
		Status:    ev.Alert.DispatchStatus(),
	}
	if d := ev.Alert.Dispatch; d != nil {
		rec.ETAMinutes = d.ETAMinutes
		if d.UnitPosition != nil {
			p := *d.UnitPosition
			rec.Position = &p
		}
	}
	return rec
}

// Match reports whether r satisfies q, ignoring Limit.
func (q LogQuery) Match(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.AlertID != "" && r.AlertID != q.AlertID {
		return false
	}
	if q.UnitID != "" && r.UnitID != q.UnitID {
		return false
	}
	if q.Action != "" && r.Action != q.Action {
		return false
	}
	return true
}

func applyLimit(recs []LogRecord, limit int) []LogRecord {
	if limit > 0 && len(recs) > limit {
		return recs[len(recs)-limit:]
	}
	return recs
}
