package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evshare/simulator"
)

var (
	simBroker  string
	simCount   int
	simLatency time.Duration
	simDrop    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a fleet of simulated onboard devices",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simBroker, "broker", "tcp://localhost:1883", "MQTT broker address")
	simulateCmd.Flags().IntVar(&simCount, "count", 10, "number of simulated devices")
	simulateCmd.Flags().DurationVar(&simLatency, "latency", 0, "delay before answering battery queries")
	simulateCmd.Flags().Float64Var(&simDrop, "drop-rate", 0, "probability of dropping a battery query")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devices := simulator.GenerateFleet(simulator.Config{
		Broker:       simBroker,
		Count:        simCount,
		ReplyLatency: simLatency,
		DropRate:     simDrop,
	})
	if len(devices) == 0 {
		return fmt.Errorf("no devices to simulate")
	}
	fmt.Printf("running %d simulated devices against %s\n", len(devices), simBroker)
	return simulator.RunFleet(ctx, devices)
}
