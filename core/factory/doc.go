// Package factory provides a small generic registry used to instantiate
// pluggable modules (metrics sinks, notifiers, dispatch log stores) from
// configuration. A module is described by a type string and a map of raw
// settings; factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[Notifier]()
//	reg.Register("slack", func(conf map[string]any) (Notifier, error) {
//	    var c struct{ Channel string `json:"channel"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newSlack(c.Channel), nil
//	})
//	n, err := reg.Create(factory.ModuleConfig{Type: "slack", Conf: map[string]any{"channel": "C123"}})
package factory
