package simulator

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/evshare/infra/mqtt"
)

// newMQTTClient is swapped out in tests.
var newMQTTClient = func(broker, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cli, nil
}

// SimulatedDevice connects to MQTT, applies lock commands and answers
// battery queries.
type SimulatedDevice struct {
	ID       string
	Broker   string
	Strategy ResponseStrategy

	client  paho.Client
	queryCh chan mqtt.BatteryRequest

	mu     sync.Mutex
	level  int
	locked bool
}

// NewSimulatedDevice creates a device reporting the given battery level.
func NewSimulatedDevice(id, broker string, level int, strat ResponseStrategy) *SimulatedDevice {
	return &SimulatedDevice{
		ID:       id,
		Broker:   broker,
		Strategy: strat,
		queryCh:  make(chan mqtt.BatteryRequest, 50),
		level:    level,
		locked:   true,
	}
}

// Run connects to the broker and serves commands and battery queries until
// ctx is done.
func (d *SimulatedDevice) Run(ctx context.Context) error {
	cli, err := newMQTTClient(d.Broker, "sim-"+d.ID)
	if err != nil {
		return err
	}
	d.client = cli
	for i := 0; i < 5; i++ {
		go d.worker(ctx)
	}
	if token := cli.Subscribe(mqtt.CommandTopic(d.ID), 0, d.onCommand); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return token.Error()
	}
	if token := cli.Subscribe(mqtt.BatteryRequestTopic(d.ID), 0, d.onBatteryRequest); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return token.Error()
	}
	<-ctx.Done()
	close(d.queryCh)
	cli.Disconnect(250)
	return nil
}

// Locked reports the current lock state.
func (d *SimulatedDevice) Locked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

// SetLevel updates the battery level reported to queries.
func (d *SimulatedDevice) SetLevel(level int) {
	d.mu.Lock()
	d.level = level
	d.mu.Unlock()
}

func (d *SimulatedDevice) onCommand(_ paho.Client, msg paho.Message) {
	var cmd mqtt.Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Printf("%s: decode command: %v", d.ID, err)
		return
	}
	d.mu.Lock()
	switch cmd.Command {
	case mqtt.CommandUnlock:
		d.locked = false
	case mqtt.CommandLock:
		d.locked = true
	default:
		d.mu.Unlock()
		log.Printf("%s: unknown command %q", d.ID, cmd.Command)
		return
	}
	d.mu.Unlock()
	log.Printf("%s: %s (ride %s)", d.ID, cmd.Command, cmd.RideID)
}

func (d *SimulatedDevice) onBatteryRequest(_ paho.Client, msg paho.Message) {
	var req mqtt.BatteryRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		log.Printf("%s: decode battery request: %v", d.ID, err)
		return
	}
	select {
	case d.queryCh <- req:
	default:
		log.Printf("%s: query queue full, dropping %s", d.ID, req.CorrelationID)
	}
}

func (d *SimulatedDevice) worker(ctx context.Context) {
	for {
		select {
		case req, ok := <-d.queryCh:
			if !ok {
				return
			}
			d.mu.Lock()
			level := d.level
			d.mu.Unlock()
			d.Strategy.Respond(ctx, d.client, d.ID, req, level)
		case <-ctx.Done():
			return
		}
	}
}
