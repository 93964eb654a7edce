package simulator

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/evshare/infra/mqtt"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// ResponseStrategy defines how a device answers battery queries.
type ResponseStrategy interface {
	Respond(ctx context.Context, cli paho.Client, vehicleID string, req mqtt.BatteryRequest, level int)
}

// AutoRespond answers every query after an optional fixed delay.
type AutoRespond struct {
	Delay time.Duration
}

// Respond implements ResponseStrategy.
func (a AutoRespond) Respond(ctx context.Context, cli paho.Client, vehicleID string, req mqtt.BatteryRequest, level int) {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return
		}
	}
	publishResponse(cli, vehicleID, req.CorrelationID, level)
}

// FlakyRespond drops queries with the configured probability and waits for
// the specified delay before answering. A dropped query lets the caller's
// timeout resolve the admission.
type FlakyRespond struct {
	Delay    time.Duration
	DropRate float64
}

// Respond implements ResponseStrategy.
func (f FlakyRespond) Respond(ctx context.Context, cli paho.Client, vehicleID string, req mqtt.BatteryRequest, level int) {
	if f.DropRate > 0 && rng.Float64() < f.DropRate {
		return
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return
		}
	}
	publishResponse(cli, vehicleID, req.CorrelationID, level)
}

func publishResponse(cli paho.Client, vehicleID, correlationID string, level int) {
	payload, err := json.Marshal(mqtt.BatteryResponse{
		VehicleID:     vehicleID,
		CorrelationID: correlationID,
		Level:         level,
		Timestamp:     time.Now().Unix(),
	})
	if err != nil {
		log.Printf("marshal battery response: %v", err)
		return
	}
	token := cli.Publish(mqtt.BatteryResponseTopic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("battery response publish timeout for %s", vehicleID)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("publish battery response error for %s: %v", vehicleID, err)
	}
}
