package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apisos "github.com/kilianp07/sosdispatch/api/sos"
	"github.com/kilianp07/sosdispatch/auth"
	"github.com/kilianp07/sosdispatch/config"
	"github.com/kilianp07/sosdispatch/connectors"
	"github.com/kilianp07/sosdispatch/connectors/clients/nominatim"
	connfactory "github.com/kilianp07/sosdispatch/connectors/factory"
	"github.com/kilianp07/sosdispatch/core/dispatch/logging"
	"github.com/kilianp07/sosdispatch/core/events"
	coremetrics "github.com/kilianp07/sosdispatch/core/metrics"
	coremon "github.com/kilianp07/sosdispatch/core/monitoring"
	"github.com/kilianp07/sosdispatch/core/movement"
	"github.com/kilianp07/sosdispatch/core/sos"
	"github.com/kilianp07/sosdispatch/infra/logger"
	"github.com/kilianp07/sosdispatch/infra/metrics"
	"github.com/kilianp07/sosdispatch/infra/monitoring"
	"github.com/kilianp07/sosdispatch/infra/mqtt"
	"github.com/kilianp07/sosdispatch/infra/notify"
	"github.com/kilianp07/sosdispatch/internal/eventbus"
)

const subscriberBuffer = 256

// Service wires the coordinator to its collaborators: the HTTP API, the
// dispatch log, MQTT unit orders, chat notifications and metrics.
type Service struct {
	Coordinator *sos.Coordinator
	Router      http.Handler

	cfg      *config.Config
	bus      *eventbus.TypedBus[events.AlertEvent]
	ticker   *movement.Ticker
	sink     coremetrics.MetricsSink
	store    logging.LogStore
	mqtt     *mqtt.PahoClient
	notifier notify.Notifier
	subs     map[string]<-chan events.AlertEvent
	log      logger.Logger
}

// New creates a Service from the configuration. Event consumers subscribe
// here so nothing published before Run is lost.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	bus := eventbus.NewTyped[events.AlertEvent]()
	coord, err := sos.New(cfg.SOS(), cfg.Fleet.Roster(),
		sos.WithLogger(logger.New("sos")),
		sos.WithMetrics(sink),
		sos.WithPublisher(bus),
	)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	svc := &Service{
		Coordinator: coord,
		cfg:         cfg,
		bus:         bus,
		ticker:      movement.NewTicker(logger.New("ticker")),
		sink:        sink,
		subs:        map[string]<-chan events.AlertEvent{},
		log:         logg,
	}
	fleetEvery := time.Duration(cfg.Metrics.FleetIntervalSeconds) * time.Second
	if err := coord.Schedule(svc.ticker, fleetEvery); err != nil {
		return nil, fmt.Errorf("ticker: %w", err)
	}

	if cfg.Logging.Enabled() {
		if svc.store, err = logging.Open(cfg.Logging.Options()); err != nil {
			return nil, fmt.Errorf("dispatch log: %w", err)
		}
		svc.subscribe("dispatch-log")
	}
	if cfg.MQTT.Enabled {
		if svc.mqtt, err = mqtt.NewPahoClient(cfg.MQTT); err != nil {
			svc.closeStore()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.subscribe("mqtt")
	}
	if svc.notifier, err = notify.New(cfg.Notify); err != nil {
		svc.Close()
		return nil, err
	}
	if svc.notifier != nil {
		svc.subscribe("notify")
	}
	if _, ok := sink.(coremetrics.AlertRecorder); ok {
		svc.subscribe("metrics")
	}

	geo, err := newGeocoder(cfg.Geocoder)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("geocoder: %w", err)
	}
	svc.Router = apisos.NewRouter(apisos.Options{
		Coordinator:  coord,
		Events:       bus,
		Geocoder:     geo,
		Logs:         svc.store,
		LogToken:     cfg.HTTP.LogToken,
		Logger:       logger.New("http"),
		TriggerRPS:   cfg.HTTP.TriggerRPS,
		TriggerBurst: cfg.HTTP.TriggerBurst,
	})
	return svc, nil
}

func (s *Service) subscribe(name string) {
	s.subs[name] = s.bus.SubscribeBuffered(subscriberBuffer)
}

func newGeocoder(cfg config.GeocoderConfig) (connectors.Geocoder, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	opts := []connectors.Option{nominatim.WithUserAgent(cfg.UserAgent)}
	if cfg.BaseURL != "" {
		opts = append(opts, nominatim.WithBaseURL(cfg.BaseURL))
	}
	if cfg.CountryCodes != "" {
		opts = append(opts, nominatim.WithCountryCodes(cfg.CountryCodes))
	}
	if cfg.Auth.Enabled() {
		opts = append(opts, nominatim.WithAuth(auth.NewClientCred(cfg.Auth)))
	}
	return connfactory.NewGeocoder(cfg.Type, opts...)
}

// Run starts the event consumers, the ticker and the servers, and blocks
// until the context is cancelled or the HTTP server fails.
func (s *Service) Run(ctx context.Context) error {
	if sub, ok := s.subs["dispatch-log"]; ok {
		coremon.Go(func() { logging.Record(ctx, s.store, sub, logger.New("dispatch-log")) })
	}
	if sub, ok := s.subs["mqtt"]; ok {
		relay := mqtt.NewRelay(s.mqtt, logger.New("mqtt-relay"), s.cfg.MQTT.AckTimeout())
		coremon.Go(func() { relay.Run(ctx, sub) })
	}
	if sub, ok := s.subs["notify"]; ok {
		coremon.Go(func() { notify.Run(ctx, sub, s.notifier, logger.New("notify")) })
	}
	if sub, ok := s.subs["metrics"]; ok {
		metrics.StartEventCollector(ctx, sub, s.sink)
	}
	coremon.Go(func() { s.ticker.Run(ctx) })
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		coremon.Go(func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		})
	}
	s.log.Infof("sos dispatch running with %d units, movement %s", len(s.Coordinator.ListUnits()), s.cfg.Movement.Mode)
	return apisos.Serve(ctx, s.cfg.HTTP.Addr, s.Router, logger.New("http"))
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return s.closeStore()
}

func (s *Service) closeStore() error {
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}
