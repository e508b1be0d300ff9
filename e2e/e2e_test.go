package e2e

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/sosdispatch/app"
	"github.com/kilianp07/sosdispatch/config"
	"github.com/kilianp07/sosdispatch/core/factory"
	coremqtt "github.com/kilianp07/sosdispatch/core/mqtt"
)

const (
	influxOrg    = "e2e_org"
	influxBucket = "e2e_bucket"
	influxToken  = "e2e-token"
)

// junitReport is a minimal representation of a JUnit XML report. The E2E
// suite writes such a report so CI systems can display the results.
type junitReport struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name    string  `xml:"name,attr"`
	Failure *string `xml:"failure,omitempty"`
	Time    float64 `xml:"time,attr"`
}

func writeJUnit(path string, rep junitReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(rep)
}

// startInflux starts an InfluxDB 2.7 container already onboarded with the
// e2e organisation, bucket and token.
func startInflux(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "e2e",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "e2e-password",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "8086")
	return cont, fmt.Sprintf("http://%s:%s", host, port.Port())
}

// startMosquitto spins up a broker accepting anonymous clients.
func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:1.6",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start mosquitto: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "1883")
	return cont, fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// patrolUnits acknowledges every dispatch order and records status broadcasts.
type patrolUnits struct {
	mu       sync.Mutex
	orders   []coremqtt.Order
	statuses []coremqtt.StatusUpdate
}

func (p *patrolUnits) connect(t *testing.T, broker string) paho.Client {
	t.Helper()
	cli := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("e2e-units"))
	if tok := cli.Connect(); tok.Wait() && tok.Error() != nil {
		t.Fatalf("units connect: %v", tok.Error())
	}
	onOrder := func(c paho.Client, m paho.Message) {
		var o struct {
			CommandID string `json:"command_id"`
			coremqtt.Order
		}
		if err := json.Unmarshal(m.Payload(), &o); err != nil {
			return
		}
		p.mu.Lock()
		p.orders = append(p.orders, o.Order)
		p.mu.Unlock()
		ack, _ := json.Marshal(map[string]string{"command_id": o.CommandID})
		c.Publish(coremqtt.UnitAckTopic(o.UnitID), 1, false, ack)
	}
	onStatus := func(_ paho.Client, m paho.Message) {
		var u coremqtt.StatusUpdate
		if err := json.Unmarshal(m.Payload(), &u); err != nil {
			return
		}
		p.mu.Lock()
		p.statuses = append(p.statuses, u)
		p.mu.Unlock()
	}
	if tok := cli.Subscribe(coremqtt.OrderTopic("+"), 1, onOrder); tok.Wait() && tok.Error() != nil {
		t.Fatalf("subscribe orders: %v", tok.Error())
	}
	if tok := cli.Subscribe(coremqtt.StatusTopic("+"), 1, onStatus); tok.Wait() && tok.Error() != nil {
		t.Fatalf("subscribe statuses: %v", tok.Error())
	}
	return cli
}

func (p *patrolUnits) sawStatus(alertID, status string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.statuses {
		if s.AlertID == alertID && s.Status == status {
			return true
		}
	}
	return false
}

func (p *patrolUnits) order(alertID string) (coremqtt.Order, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.orders {
		if o.AlertID == alertID {
			return o, true
		}
	}
	return coremqtt.Order{}, false
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func post(t *testing.T, base, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(base+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// Test_E2E_DispatchFlow runs the whole service against real Mosquitto and
// InfluxDB brokers: an SOS is triggered over HTTP, the nearest unit receives
// the order over MQTT and acknowledges it, the status broadcast follows and
// the dispatch metrics land in InfluxDB.
func Test_E2E_DispatchFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("e2e test")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	influxCont, influxURL := startInflux(ctx, t)
	defer influxCont.Terminate(ctx) //nolint:errcheck
	mqttCont, mqttURL := startMosquitto(ctx, t)
	defer mqttCont.Terminate(ctx) //nolint:errcheck

	influx := NewInfluxClient(influxURL, influxOrg, influxBucket, influxToken)
	defer influx.Close()
	if err := influx.SetupBucket(ctx); err != nil {
		t.Fatalf("setup bucket: %v", err)
	}

	units := &patrolUnits{}
	unitCli := units.connect(t, mqttURL)
	defer unitCli.Disconnect(100)

	cfg := &config.Config{}
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Logging.Backend = "none"
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = mqttURL
	cfg.MQTT.ClientID = "sosd-e2e"
	cfg.MQTT.AckTimeoutSeconds = 5
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "influx", Conf: map[string]any{
		"url":    influxURL,
		"token":  influxToken,
		"org":    influxOrg,
		"bucket": influxBucket,
	}}}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	defer svc.Close()
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go svc.Run(runCtx) //nolint:errcheck

	srv := httptest.NewServer(svc.Router)
	defer srv.Close()

	resp := post(t, srv.URL, "/api/sos/trigger", `{"latitude":19.10,"longitude":72.85,"message":"help"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("trigger status %d", resp.StatusCode)
	}
	alerts := svc.Coordinator.ListAlerts(false)
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	id := alerts[0].ID

	resp = post(t, srv.URL, "/api/sos/alerts/"+id+"/dispatch", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch status %d", resp.StatusCode)
	}

	eventually(t, "dispatch order", func() bool { _, ok := units.order(id); return ok })
	o, _ := units.order(id)
	if o.UnitID != "PATROL-03" {
		t.Fatalf("order went to %s", o.UnitID)
	}
	eventually(t, "dispatched status", func() bool { return units.sawStatus(id, "dispatched") })
	eventually(t, "influx dispatch point", func() bool {
		n, err := influx.Count(ctx, "dispatch_event", "alert_id", id)
		return err == nil && n > 0
	})

	rep := junitReport{Name: "e2e", Tests: 1, Cases: []junitTestCase{{
		Name: "Test_E2E_DispatchFlow",
		Time: time.Since(started).Seconds(),
	}}}
	if dir := os.Getenv("E2E_REPORT_DIR"); dir != "" {
		if err := writeJUnit(filepath.Join(dir, "e2e.xml"), rep); err != nil {
			t.Logf("write junit: %v", err)
		}
	}
}
