package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sosdispatch/config"
	"github.com/kilianp07/sosdispatch/core/dispatch/logging"
	"github.com/kilianp07/sosdispatch/core/factory"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Logging.Path = filepath.Join(t.TempDir(), "dispatch.log")
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func call(t *testing.T, h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServiceRecordsDispatchLog(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()

	rr := call(t, svc.Router, http.MethodPost, "/api/sos/trigger", `{"latitude":19.10,"longitude":72.85}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	alerts := svc.Coordinator.ListAlerts(false)
	require.Len(t, alerts, 1)
	rr = call(t, svc.Router, http.MethodPost, "/api/sos/alerts/"+alerts[0].ID+"/dispatch", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	var recs []logging.LogRecord
	require.Eventually(t, func() bool {
		recs, err = svc.store.Query(context.Background(), logging.LogQuery{AlertID: alerts[0].ID})
		return err == nil && len(recs) == 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "created", recs[0].Action)
	assert.Equal(t, "dispatched", recs[1].Action)
	assert.Equal(t, "PATROL-03", recs[1].UnitID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceLogRoute(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.LogToken = "secret"
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, http.StatusUnauthorized, call(t, svc.Router, http.MethodGet, "/api/dispatch/logs", "").Code)
	assert.Equal(t, http.StatusOK, call(t, svc.Router, http.MethodGet, "/api/sos/count", "").Code)
}

func TestServiceWithoutDispatchLog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Backend = "none"
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()
	assert.Nil(t, svc.store)
	assert.Equal(t, http.StatusNotFound, call(t, svc.Router, http.MethodGet, "/api/dispatch/logs", "").Code)
}

func TestNewRejectsUnknownModules(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify = []factory.ModuleConfig{{Type: "pager"}}
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Geocoder.Type = "carrier-pigeon"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "statsd"}}
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestNewGeocoder(t *testing.T) {
	g, err := newGeocoder(config.GeocoderConfig{})
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = newGeocoder(config.GeocoderConfig{Type: "nominatim", UserAgent: "sosd", BaseURL: "http://geo.local", CountryCodes: "in"})
	require.NoError(t, err)
	assert.NotNil(t, g)
}
