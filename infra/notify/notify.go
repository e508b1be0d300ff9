// Package notify posts alert lifecycle messages to operator chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/sosdispatch/core/events"
	"github.com/kilianp07/sosdispatch/core/factory"
	"github.com/kilianp07/sosdispatch/core/logger"
	"github.com/kilianp07/sosdispatch/core/model"
)

// Field is a labelled value shown alongside a message.
type Field struct {
	Name  string
	Value string
}

// Message is a chat notification.
type Message struct {
	Title  string
	Text   string
	Color  string
	Fields []Field
}

// Notifier delivers messages to a chat channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

var registry = factory.NewRegistry[Notifier]()

// Register adds a notifier factory identified by name.
func Register(name string, f factory.Factory[Notifier]) error {
	return registry.Register(name, f)
}

// New builds the configured notifiers. No configuration yields nil.
func New(cfgs []factory.ModuleConfig) (Notifier, error) {
	var out Multi
	for _, c := range cfgs {
		n, err := registry.Create(c)
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		out = append(out, n)
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	}
	return out, nil
}

// Multi fans a message out to several notifiers.
type Multi []Notifier

// Notify sends to every notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const (
	colorCritical = "#d62728"
	colorInfo     = "#1f77b4"
	colorOK       = "#2ca02c"
)

// FromEvent renders the events operators care about: new alerts,
// dispatches, arrivals and resolutions.
func FromEvent(ev events.AlertEvent) (Message, bool) {
	a := ev.Alert
	loc := fmt.Sprintf("%.5f, %.5f", a.Location.Lat, a.Location.Lon)
	switch ev.Type {
	case events.Created:
		return Message{
			Title:  "SOS alert " + a.ID,
			Text:   a.Message,
			Color:  colorCritical,
			Fields: []Field{{"Address", a.Address}, {"Location", loc}, {"Priority", a.Priority}},
		}, true
	case events.Dispatched:
		d := a.Dispatch
		return Message{
			Title: fmt.Sprintf("%s dispatched to %s", unitLabel(d), a.ID),
			Text:  a.Address,
			Color: colorInfo,
			Fields: []Field{
				{"Unit", ev.UnitID},
				{"ETA", fmt.Sprintf("%d min", d.ETAMinutes)},
				{"Location", loc},
			},
		}, true
	case events.Arrived:
		return Message{
			Title:  fmt.Sprintf("%s arrived at %s", unitLabel(a.Dispatch), a.ID),
			Text:   a.Address,
			Color:  colorInfo,
			Fields: []Field{{"Unit", ev.UnitID}},
		}, true
	case events.Status:
		if a.DispatchStatus() != model.StatusResolved {
			return Message{}, false
		}
		return Message{
			Title:  fmt.Sprintf("Alert %s resolved", a.ID),
			Text:   a.Address,
			Color:  colorOK,
			Fields: []Field{{"Unit", ev.UnitID}},
		}, true
	}
	return Message{}, false
}

func unitLabel(d *model.Dispatch) string {
	if d == nil {
		return "Unit"
	}
	if d.UnitName != "" {
		return d.UnitName
	}
	if d.UnitID != "" {
		return d.UnitID
	}
	return d.LastUnitID
}

// Run notifies n of every relevant event from sub until ctx is canceled or
// sub is closed.
func Run(ctx context.Context, sub <-chan events.AlertEvent, n Notifier, log logger.Logger) {
	log = logger.OrNop(log)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			msg, ok := FromEvent(ev)
			if !ok {
				continue
			}
			if err := n.Notify(ctx, msg); err != nil {
				log.Errorf("notify %s %s: %v", ev.Type, ev.Alert.ID, err)
			}
		}
	}
}
