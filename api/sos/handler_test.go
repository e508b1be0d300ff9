package sos

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kilianp07/sosdispatch/connectors"
	"github.com/kilianp07/sosdispatch/core/dispatch"
	"github.com/kilianp07/sosdispatch/core/dispatch/logging"
	"github.com/kilianp07/sosdispatch/core/events"
	"github.com/kilianp07/sosdispatch/core/model"
	"github.com/kilianp07/sosdispatch/core/sos"
	"github.com/kilianp07/sosdispatch/internal/eventbus"
)

type fakeGeocoder struct {
	loc model.Location
	err error
}

func (f fakeGeocoder) Geocode(context.Context, string) (model.Location, error) {
	return f.loc, f.err
}

type env struct {
	router http.Handler
	coord  *sos.Coordinator
	bus    *eventbus.TypedBus[events.AlertEvent]
}

func newEnv(t *testing.T, mutate func(*Options)) *env {
	t.Helper()
	bus := eventbus.NewTyped[events.AlertEvent]()
	t.Cleanup(bus.Close)
	c, err := sos.New(sos.Config{}, nil, sos.WithClock(clockz.NewFakeClock()), sos.WithPublisher(bus))
	require.NoError(t, err)
	o := Options{Coordinator: c, Events: bus}
	if mutate != nil {
		mutate(&o)
	}
	return &env{router: NewRouter(o), coord: c, bus: bus}
}

func (e *env) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.10:4242"
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func (e *env) trigger(t *testing.T, lat, lon float64) model.Alert {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"latitude": lat, "longitude": lon, "address": "Bandra West"})
	rr := e.do(t, http.MethodPost, "/api/sos/trigger", string(body))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[model.Alert](t, rr)
}

func TestDispatchLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	a := e.trigger(t, 19.10, 72.85)
	assert.Equal(t, "SOS EMERGENCY at Bandra West", a.Message)

	rr := e.do(t, http.MethodPost, "/api/sos/alerts/"+a.ID+"/dispatch", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[dispatch.Result](t, rr)
	assert.Equal(t, "PATROL-03", res.Unit.ID)
	assert.Equal(t, 5, res.ETAMinutes)

	rr = e.do(t, http.MethodPost, "/api/sos/alerts/"+a.ID+"/dispatch", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = e.do(t, http.MethodPut, "/api/sos/alerts/"+a.ID+"/status", `{"status":"resolved"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resolved := decode[model.Alert](t, rr)
	require.NotNil(t, resolved.Dispatch)
	assert.Equal(t, model.StatusResolved, resolved.Dispatch.Status)
	assert.Zero(t, resolved.Dispatch.ETAMinutes)

	units := decode[[]model.PatrolUnit](t, e.do(t, http.MethodGet, "/api/sos/units", ""))
	require.Len(t, units, 5)
	for _, u := range units {
		assert.Equal(t, model.UnitAvailable, u.Status, u.ID)
	}
}

func TestPreferredUnit(t *testing.T) {
	e := newEnv(t, nil)
	a := e.trigger(t, 19.10, 72.85)
	b := e.trigger(t, 19.10, 72.85)

	rr := e.do(t, http.MethodPost, "/api/sos/alerts/"+a.ID+"/dispatch", `{"unit_id":"PATROL-05"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "PATROL-05", decode[dispatch.Result](t, rr).Unit.ID)

	rr = e.do(t, http.MethodPost, "/api/sos/alerts/"+b.ID+"/dispatch", `{"unit_id":"PATROL-05"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	rr = e.do(t, http.MethodPost, "/api/sos/alerts/"+b.ID+"/dispatch", `{"unit_id":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t, nil)
	a := e.trigger(t, 19.10, 72.85)

	cases := []struct {
		name, method, url, body string
		code                    int
	}{
		{"missing alert", http.MethodGet, "/api/sos/alerts/SOS-MISSING", "", http.StatusNotFound},
		{"missing read", http.MethodPut, "/api/sos/alerts/SOS-MISSING/read", "", http.StatusNotFound},
		{"missing dismiss", http.MethodDelete, "/api/sos/alerts/SOS-MISSING", "", http.StatusNotFound},
		{"bad status", http.MethodPut, "/api/sos/alerts/" + a.ID + "/status?status=teleported", "", http.StatusBadRequest},
		{"no coordinates", http.MethodPost, "/api/sos/trigger", `{"address":"Somewhere"}`, http.StatusBadRequest},
		{"bad latitude", http.MethodPost, "/api/sos/trigger", `{"latitude":95,"longitude":72.8}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/sos/trigger", `{`, http.StatusBadRequest},
		{"bad export", http.MethodGet, "/api/sos/alerts/export?format=xml", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := e.do(t, tc.method, tc.url, tc.body)
			assert.Equal(t, tc.code, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestGeocodeFallback(t *testing.T) {
	e := newEnv(t, func(o *Options) {
		o.Geocoder = fakeGeocoder{loc: model.Location{Lat: 19.0544, Lon: 72.8406}}
	})
	rr := e.do(t, http.MethodPost, "/api/sos/trigger", `{"address":"Bandra West, Mumbai"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	a := decode[model.Alert](t, rr)
	assert.Equal(t, 19.0544, a.Location.Lat)
	assert.Equal(t, "Bandra West, Mumbai", a.Address)

	e = newEnv(t, func(o *Options) { o.Geocoder = fakeGeocoder{err: connectors.ErrNoResult} })
	rr = e.do(t, http.MethodPost, "/api/sos/trigger", `{"address":"Atlantis"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestListReadDismissCount(t *testing.T) {
	e := newEnv(t, nil)
	first := e.trigger(t, 19.10, 72.85)
	second := e.trigger(t, 19.05, 72.84)

	rr := e.do(t, http.MethodPut, "/api/sos/alerts/"+first.ID+"/read", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[model.Alert](t, rr).Read)

	all := decode[[]model.Alert](t, e.do(t, http.MethodGet, "/api/sos/alerts", ""))
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	unread := decode[[]model.Alert](t, e.do(t, http.MethodGet, "/api/sos/alerts?unread_only=true", ""))
	require.Len(t, unread, 1)
	assert.Equal(t, second.ID, unread[0].ID)

	assert.Equal(t, sos.Summary{Total: 2, Unread: 1, Pending: 2},
		decode[sos.Summary](t, e.do(t, http.MethodGet, "/api/sos/count", "")))

	rr = e.do(t, http.MethodDelete, "/api/sos/alerts/"+first.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/sos/alerts/"+first.ID, "").Code)

	empty := newEnv(t, nil)
	assert.Equal(t, "[]", empty.do(t, http.MethodGet, "/api/sos/alerts", "").Body.String())
}

func TestExport(t *testing.T) {
	e := newEnv(t, nil)
	e.trigger(t, 19.10, 72.85)

	rr := e.do(t, http.MethodGet, "/api/sos/alerts/export", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/geo+json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "FeatureCollection")

	rr = e.do(t, http.MethodGet, "/api/sos/alerts/export?format=csv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "Bandra West")
}

func TestTriggerRateLimit(t *testing.T) {
	e := newEnv(t, func(o *Options) { o.TriggerRPS = 0.001; o.TriggerBurst = 1 })
	e.trigger(t, 19.10, 72.85)
	rr := e.do(t, http.MethodPost, "/api/sos/trigger", `{"latitude":19.1,"longitude":72.85}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	// other endpoints are not limited
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/sos/count", "").Code)
}

func TestIPLimiterSweepsIdleVisitors(t *testing.T) {
	l := newIPLimiter(1, 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))

	now = now.Add(2 * time.Minute)
	assert.True(t, l.allow("b"))
	assert.Len(t, l.visitors, 1)
}

func TestDispatchLogsRoute(t *testing.T) {
	store, err := logging.NewJSONLStore(filepath.Join(t.TempDir(), "dispatch.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Append(context.Background(), logging.LogRecord{Timestamp: time.Now(), Action: "created", AlertID: "SOS-00000001"}))

	e := newEnv(t, func(o *Options) { o.Logs = store; o.LogToken = "secret" })
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/dispatch/logs", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/dispatch/logs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	recs := decode[[]logging.LogRecord](t, rr)
	require.Len(t, recs, 1)
	assert.Equal(t, "SOS-00000001", recs[0].AlertID)
}

func TestSSEStream(t *testing.T) {
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sos/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if name, ok := strings.CutPrefix(lines.Text(), "event:"); ok {
				return strings.TrimSpace(name)
			}
		}
		return ""
	}
	require.Equal(t, "connected", next())

	_, err = e.coord.TriggerAlert(sos.TriggerRequest{Location: model.Location{Lat: 19.1, Lon: 72.85}})
	require.NoError(t, err)
	require.Equal(t, string(events.Created), next())
	require.True(t, lines.Scan())
	data, _ := strings.CutPrefix(lines.Text(), "data:")
	var ev events.AlertEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, events.Created, ev.Type)
}

func TestWebsocketStream(t *testing.T) {
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/sos/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	a, err := e.coord.TriggerAlert(sos.TriggerRequest{Location: model.Location{Lat: 19.1, Lon: 72.85}})
	require.NoError(t, err)
	_, err = e.coord.Dispatch(a.ID, dispatch.Request{})
	require.NoError(t, err)

	var ev events.AlertEvent
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, events.Created, ev.Type)
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, events.Dispatched, ev.Type)
	assert.Equal(t, "PATROL-03", ev.UnitID)
}

func TestStatusCode(t *testing.T) {
	cases := map[error]int{
		model.E("op", "a", "", model.ErrNotFound): http.StatusNotFound,
		model.ErrAlreadyDispatched:                http.StatusConflict,
		model.ErrUnitUnavailable:                  http.StatusConflict,
		model.ErrNoUnitsAvailable:                 http.StatusConflict,
		model.ErrInvalidStatus:                    http.StatusBadRequest,
		connectors.ErrNoResult:                    http.StatusUnprocessableEntity,
		context.DeadlineExceeded:                  http.StatusGatewayTimeout,
		errors.New("boom"):                        http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusCode(err), err.Error())
	}
}
