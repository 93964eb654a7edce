package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/evshare/api/battery"
	"github.com/kilianp07/evshare/api/rides"
	"github.com/kilianp07/evshare/config"
	"github.com/kilianp07/evshare/core/model"
	"github.com/kilianp07/evshare/core/ride"
	"github.com/kilianp07/evshare/core/telemetry"
	"github.com/kilianp07/evshare/infra/logger"
	"github.com/kilianp07/evshare/infra/metrics"
	"github.com/kilianp07/evshare/infra/mqtt"
	"github.com/kilianp07/evshare/infra/store"
	"github.com/kilianp07/evshare/internal/eventbus"
)

// Service composes the telemetry emulator, the ride orchestrator and the
// administrative HTTP surface.
type Service struct {
	Rides    *ride.Service
	Store    *telemetry.Store
	Emulator *telemetry.Emulator

	actuator *mqtt.PahoActuator
	repo     ride.Repository
	bus      *eventbus.Bus[ride.Event]
	apiAddr  string
	handler  http.Handler
	promAddr string
	log      logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	actuator, err := mqtt.NewPahoActuator(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt actuator: %w", err)
	}

	var repo ride.Repository
	switch cfg.Storage.Backend {
	case "sqlite":
		sq, err := store.NewSQLiteRepository(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite repository: %w", err)
		}
		repo = sq
	default:
		repo = store.NewMemoryRepository()
	}

	vehicles := make([]model.Vehicle, 0, len(cfg.Fleet.Vehicles))
	for _, v := range cfg.Fleet.Vehicles {
		vehicles = append(vehicles, model.Vehicle{
			ID:               v.ID,
			Electric:         v.Electric,
			UnderMaintenance: v.UnderMaintenance,
		})
	}
	registry := store.NewMemoryRegistry(vehicles...)

	batteries := telemetry.NewStore(repo)
	var sink telemetry.SampleSink = telemetry.NopSink{}
	if cfg.Metrics.InfluxURL != "" {
		sink = metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL,
			cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
	}
	emulator := telemetry.NewEmulator(batteries, registry, cfg.Telemetry.Interval(), sink, logger.New("emulator"))

	bus := eventbus.New[ride.Event]()
	rideSvc, err := ride.NewService(repo, registry, actuator, cfg.Rides.QueryTimeout(), bus, logger.New("rides"))
	if err != nil {
		return nil, fmt.Errorf("ride service: %w", err)
	}

	batteryHandler := battery.NewHandler(batteries, cfg.API.AdminToken)
	ridesHandler := rides.NewHandler(rideSvc)
	mux := http.NewServeMux()
	mux.Handle("/api/battery", batteryHandler)
	mux.Handle("/api/battery/", batteryHandler)
	mux.Handle("/api/rides", ridesHandler)
	mux.Handle("/api/rides/", ridesHandler)

	return &Service{
		Rides:    rideSvc,
		Store:    batteries,
		Emulator: emulator,
		actuator: actuator,
		repo:     repo,
		bus:      bus,
		apiAddr:  cfg.API.Addr,
		handler:  mux,
		promAddr: cfg.Metrics.PromAddr,
		log:      logg,
	}, nil
}

// Run starts the emulation loop and the HTTP servers, blocking until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	events := s.bus.Subscribe()
	go func() {
		for e := range events {
			s.log.Infof("ride event %s: ride %s vehicle %s %s",
				e.Type, e.Ride.ID, e.Ride.VehicleID, e.Reason)
		}
	}()
	go s.Emulator.Run(ctx)
	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.apiAddr, Handler: s.handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api server shutdown: %v", err)
		}
	}()
	s.log.Infof("api listening on %s", s.apiAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.actuator.Disconnect()
	s.bus.Close()
	if closer, ok := s.repo.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
