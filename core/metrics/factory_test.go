package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilianp07/sosdispatch/config"
	"github.com/kilianp07/sosdispatch/core/factory"
	metrics "github.com/kilianp07/sosdispatch/core/metrics"
	_ "github.com/kilianp07/sosdispatch/infra/metrics"
)

func TestSinkTypesRegistered(t *testing.T) {
	got := strings.Join(metrics.SinkTypes(), ",")
	if got != "influx,nop,prometheus" {
		t.Fatalf("unexpected sink types %s", got)
	}
	if _, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "statsd"}}); err == nil || !strings.Contains(err.Error(), "influx") {
		t.Fatalf("expected unknown type error listing known sinks, got %v", err)
	}
}

func TestNewMetricsSinkDefaultsToNop(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("create nop default: %v", err)
	}
	if _, ok := s.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}
}

// Sinks are decoded from the metrics section of a service config. The influx
// sink points at a closed port so its health check falls back to a NopSink.
func TestNewMetricsSinkFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sosd.yaml")
	data := `metrics:
  fleet_interval_seconds: 10
  sinks:
    - type: "nop"
    - type: "influx"
      conf:
        url: "http://127.0.0.1:1"
        token: "tok"
        org: "sos"
        bucket: "dispatch"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Metrics.Sinks) != 2 || cfg.Metrics.Sinks[1].Conf["bucket"] != "dispatch" {
		t.Fatalf("sinks not decoded: %+v", cfg.Metrics.Sinks)
	}

	s, err := metrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m, ok := s.(*metrics.MultiSink)
	if !ok || len(m.Sinks) != 2 {
		t.Fatalf("expected MultiSink of 2, got %T %+v", s, s)
	}
	if _, ok := m.Sinks[1].(metrics.NopSink); !ok {
		t.Fatalf("unreachable influx should fall back to NopSink, got %T", m.Sinks[1])
	}
}

func TestNewMetricsSinkRejectsDuplicates(t *testing.T) {
	cfgs := []factory.ModuleConfig{{Type: metrics.SinkNop}, {Type: metrics.SinkNop}}
	if _, err := metrics.NewMetricsSink(cfgs); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}
