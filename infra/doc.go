// Package infra holds the adapters around the dispatch core: the MQTT
// relay to patrol units, metrics sinks, incident notifiers, logging and
// error monitoring. These packages depend only on interfaces defined in
// the core packages.
package infra
