package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremon "github.com/kilianp07/sosdispatch/core/monitoring"
	coremqtt "github.com/kilianp07/sosdispatch/core/mqtt"
	"github.com/kilianp07/sosdispatch/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled    bool            `json:"enabled"`
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	AckTopic   string          `json:"ack_topic"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	AuthMethod string          `json:"auth_method"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	TLSConfig  *tls.Config     `json:"-"`

	// AckTimeoutSeconds makes the relay wait for order acknowledgments.
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
}

// AckTimeout returns the acknowledgment wait, zero when disabled.
func (c Config) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutSeconds) * time.Second
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "sosd"
	}
	if c.AckTopic == "" {
		c.AckTopic = coremqtt.AckTopic
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.Enabled && c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required when enabled")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient implements coremqtt.Client using Eclipse Paho.
type PahoClient struct {
	cli      pahoClient
	ackTopic string
	qos      map[string]byte

	mu         sync.Mutex
	ackChans   map[string]pendingAck
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

// pendingAck tracks an order awaiting acknowledgment from its unit.
type pendingAck struct {
	unitID string
	ch     chan struct{}
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the ACK topic.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	logger := logger.New("mqtt_client")
	pc := &PahoClient{ackTopic: cfg.AckTopic,
		ackChans:   make(map[string]pendingAck),
		logger:     logger,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		logger.Infof("MQTT connected")
		if token := c.Subscribe(pc.ackTopic, pc.qosFor("ack"), pc.onAck); token.Wait() && token.Error() != nil {
			logger.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pending, ok := p.ackChans[m.CommandID]
	if !ok {
		p.logger.Debugf("ack for unknown command %s", m.CommandID)
		return
	}
	if unit, ok := coremqtt.UnitFromTopic(msg.Topic()); ok && unit != pending.unitID {
		p.logger.Warnf("ack %s from %s, order was sent to %s", m.CommandID, unit, pending.unitID)
		return
	}
	select {
	case pending.ch <- struct{}{}:
	default:
	}
	p.logger.Infof("received ack %s from %s", m.CommandID, pending.unitID)
}

// publish sends payload with exponential backoff between attempts.
func (p *PahoClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		if err = token.Error(); err == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, err)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return err
}

// SendOrder sends a dispatch order to the unit topic and returns the command
// identifier used for acknowledgment tracking.
func (p *PahoClient) SendOrder(o coremqtt.Order) (string, error) {
	cmdID := uuid.NewString()
	order := struct {
		CommandID string `json:"command_id"`
		coremqtt.Order
		Timestamp int64 `json:"timestamp"`
	}{
		CommandID: cmdID,
		Order:     o,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return "", err
	}

	// registered before publishing so a fast ack is not lost
	p.mu.Lock()
	p.ackChans[cmdID] = pendingAck{unitID: o.UnitID, ch: make(chan struct{}, 1)}
	p.mu.Unlock()

	topic := coremqtt.OrderTopic(o.UnitID)
	if err := p.publish(topic, p.qosFor("command"), false, payload); err != nil {
		p.mu.Lock()
		delete(p.ackChans, cmdID)
		p.mu.Unlock()
		coremon.CaptureException(err, map[string]string{"module": "mqtt", "unit_id": o.UnitID, "alert_id": o.AlertID})
		return "", fmt.Errorf("mqtt: send order: %w", err)
	}
	p.logger.Infof("sent order %s to %s", cmdID, topic)
	return cmdID, nil
}

// PublishStatus broadcasts the status change as a retained message so late
// subscribers see the latest state.
func (p *PahoClient) PublishStatus(u coremqtt.StatusUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := p.publish(coremqtt.StatusTopic(u.AlertID), p.qosFor("status"), true, payload); err != nil {
		coremon.CaptureException(err, map[string]string{"module": "mqtt", "alert_id": u.AlertID})
		return fmt.Errorf("mqtt: publish status: %w", err)
	}
	return nil
}

// ClearStatus deletes the retained status message of the alert. An empty
// retained payload makes the broker drop it.
func (p *PahoClient) ClearStatus(alertID string) error {
	if err := p.publish(coremqtt.StatusTopic(alertID), p.qosFor("status"), true, []byte{}); err != nil {
		coremon.CaptureException(err, map[string]string{"module": "mqtt", "alert_id": alertID})
		return fmt.Errorf("mqtt: clear status: %w", err)
	}
	return nil
}

// WaitForAck blocks until an ACK for the given command ID is received or timeout.
func (p *PahoClient) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	pending, ok := p.ackChans[commandID]
	p.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("unknown command %s", commandID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-pending.ch:
		p.mu.Lock()
		delete(p.ackChans, commandID)
		p.mu.Unlock()
		return true, nil
	case <-timer.C:
		p.mu.Lock()
		delete(p.ackChans, commandID)
		p.mu.Unlock()
		return false, fmt.Errorf("%w", coremqtt.ErrAckTimeout)
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
