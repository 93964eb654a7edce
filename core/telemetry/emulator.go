package telemetry

import (
	"context"
	"time"

	"github.com/kilianp07/evshare/core/logger"
	"github.com/kilianp07/evshare/core/model"
)

// VehicleRegistry lists the vehicles eligible for battery emulation.
type VehicleRegistry interface {
	ListElectricVehicles(ctx context.Context) ([]model.Vehicle, error)
}

// SampleSink receives battery snapshots after each tick. Implementations must
// not block; a nil sink disables sampling.
type SampleSink interface {
	RecordBatterySamples(states []BatteryState) error
}

// NopSink discards battery samples.
type NopSink struct{}

func (NopSink) RecordBatterySamples([]BatteryState) error { return nil }

// Emulator drives the battery simulation. One loop owns both the initial
// seeding from the registry and the periodic tick, so there is no second
// timer to race against during startup.
type Emulator struct {
	store    *Store
	registry VehicleRegistry
	interval time.Duration
	sink     SampleSink
	log      logger.Logger
}

// NewEmulator creates an emulator ticking at the given interval. An interval
// of zero defaults to 30 seconds, the cadence of the physical devices.
func NewEmulator(store *Store, registry VehicleRegistry, interval time.Duration, sink SampleSink, log logger.Logger) *Emulator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Emulator{store: store, registry: registry, interval: interval, sink: sink, log: log}
}

// Run seeds the store and ticks until the context is canceled. Errors from
// the registry, the tick or the sink are logged and never stop the schedule.
func (e *Emulator) Run(ctx context.Context) {
	e.seed(ctx)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if updated := e.store.Tick(ctx); updated > 0 {
				e.log.Infof("updated battery levels for %d vehicles", updated)
			}
			if e.sink != nil {
				if err := e.sink.RecordBatterySamples(e.store.All()); err != nil {
					e.log.Errorf("battery sample sink: %v", err)
				}
			}
		case <-ctx.Done():
			e.log.Infof("battery emulator stopped")
			return
		}
	}
}

func (e *Emulator) seed(ctx context.Context) {
	vehicles, err := e.registry.ListElectricVehicles(ctx)
	if err != nil {
		e.log.Errorf("list electric vehicles: %v", err)
		return
	}
	ids := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		if v.Tracked() {
			ids = append(ids, v.ID)
		}
	}
	added := e.store.Init(ids)
	e.log.Infof("battery states initialized for %d electric vehicles", added)
}
