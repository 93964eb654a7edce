package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

var fleetRng = rand.New(rand.NewSource(time.Now().UnixNano()))

// Config holds parameters for the simulated fleet.
type Config struct {
	Broker       string
	Count        int
	ReplyLatency time.Duration
	DropRate     float64
}

// GenerateFleet creates Count devices with IDs dev0001..devNNNN and battery
// levels drawn from the same range the emulator seeds.
func GenerateFleet(cfg Config) []*SimulatedDevice {
	if cfg.Count <= 0 {
		return nil
	}
	var strat ResponseStrategy = AutoRespond{Delay: cfg.ReplyLatency}
	if cfg.DropRate > 0 {
		strat = FlakyRespond{Delay: cfg.ReplyLatency, DropRate: cfg.DropRate}
	}
	devices := make([]*SimulatedDevice, cfg.Count)
	for i := range devices {
		id := fmt.Sprintf("dev%04d", i+1)
		devices[i] = NewSimulatedDevice(id, cfg.Broker, 15+fleetRng.Intn(85), strat)
	}
	return devices
}

// RunFleet runs all devices until ctx is done. The first connection error
// stops the fleet.
func RunFleet(ctx context.Context, devices []*SimulatedDevice) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range devices {
		d := d
		g.Go(func() error { return d.Run(gctx) })
	}
	return g.Wait()
}
