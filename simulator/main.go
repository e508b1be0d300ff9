package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kilianp07/sosdispatch/config"
	"github.com/kilianp07/sosdispatch/core/fleet"
	"github.com/kilianp07/sosdispatch/infra/logger"
)

func main() {
	cfg := parseFlags()
	log := logger.New("unit-sim")
	if err := (&cfg).Validate(); err != nil {
		log.Errorf("invalid config: %v", err)
		os.Exit(2)
	}
	level := "info"
	if cfg.Verbose {
		level = "debug"
	}
	if err := logger.SetLevel(level); err != nil {
		log.Errorf("log level: %v", err)
	}

	units, err := resolveUnits(cfg)
	if err != nil {
		log.Errorf("roster: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli, err := newMQTTClient(cfg.Broker, "unit-sim")
	if err != nil {
		log.Errorf("connect %s: %v", cfg.Broker, err)
		os.Exit(1)
	}
	defer cli.Disconnect(250)

	r := NewResponder(RandomAck{Delay: cfg.AckLatency, DropRate: cfg.DropRate}, units, log)
	r.Workers = cfg.Workers
	if err := r.Run(ctx, cli); err != nil {
		log.Errorf("run: %v", err)
		os.Exit(1)
	}
	for unit, n := range r.Acked() {
		log.Infof("%s acknowledged %d orders", unit, n)
	}
}

func parseFlags() Config {
	var cfg Config
	var units string
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.ConfigFile, "config", "", "sosd config file to read the roster from")
	flag.StringVar(&units, "units", "", "comma separated unit ids to answer for (default all)")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 0, "ack latency")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "ack drop rate")
	flag.IntVar(&cfg.Workers, "workers", 4, "concurrent ack workers")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.Parse()
	cfg.Units = splitUnits(units)
	return cfg
}

func splitUnits(s string) []string {
	var out []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// resolveUnits returns the explicit unit list, else the roster of the
// config file. No config answers for every unit.
func resolveUnits(cfg Config) ([]string, error) {
	if len(cfg.Units) > 0 || cfg.ConfigFile == "" {
		return cfg.Units, nil
	}
	c, err := config.Load(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	roster := c.Fleet.Roster()
	if len(roster) == 0 {
		roster = fleet.DefaultRoster()
	}
	ids := make([]string, 0, len(roster))
	for _, u := range roster {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
