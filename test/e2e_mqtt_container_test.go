package test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/evshare/core/model"
	"github.com/kilianp07/evshare/core/ride"
	"github.com/kilianp07/evshare/infra/logger"
	"github.com/kilianp07/evshare/infra/mqtt"
	"github.com/kilianp07/evshare/infra/store"
	"github.com/kilianp07/evshare/simulator"
)

func waitForMQTTReady(broker string, timeout time.Duration) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		lastErr = token.Error()
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for broker")
	}
	return lastErr
}

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
log_type notice
`
	dir := t.TempDir()
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatalf("write conf: %v", err)
	}

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			},
		},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("container start: %v", err)
	}
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())
	if err := waitForMQTTReady(broker, 5*time.Second); err != nil {
		t.Logf("mosquitto not ready at %s: %v", broker, err)
		t.Skip("Mosquitto not ready after retries")
	}
	return cont, broker
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRideLifecycleOverBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cont, broker := startMosquitto(ctx, t)
	defer func() {
		if err := cont.Terminate(context.Background()); err != nil {
			t.Logf("terminate: %v", err)
		}
	}()

	device := simulator.NewSimulatedDevice("veh1", broker, 80, simulator.AutoRespond{})
	devCtx, devCancel := context.WithCancel(ctx)
	defer devCancel()
	devDone := make(chan error, 1)
	go func() { devDone <- device.Run(devCtx) }()

	actuator, err := mqtt.NewPahoActuator(mqtt.Config{Broker: broker, ClientID: "e2e-coordinator"})
	if err != nil {
		t.Fatalf("actuator: %v", err)
	}
	defer actuator.Disconnect()

	ride.ResetMetrics(nil)
	registry := store.NewMemoryRegistry(model.Vehicle{ID: "veh1", Electric: true})
	svc, err := ride.NewService(store.NewMemoryRepository(), registry, actuator, 5*time.Second, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	// Give the device time to finish its subscriptions.
	time.Sleep(250 * time.Millisecond)

	res, err := svc.Start(ctx, ride.StartRequest{VehicleID: "veh1", UserID: "u1", ParkingID: 1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !res.BatteryChecked || res.BatteryLevel == nil || *res.BatteryLevel != 80 {
		t.Fatalf("battery not resolved over broker: %#v", res)
	}
	if res.Ride.State != model.RideActive {
		t.Fatalf("ride not active: %s", res.Ride.State)
	}
	waitFor(t, 3*time.Second, func() bool { return !device.Locked() }, "device not unlocked")

	ended, err := svc.End(ctx, res.Ride.ID, ride.EndRequest{ParkingID: 2})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.State != model.RideCompleted {
		t.Fatalf("ride not completed: %s", ended.State)
	}
	waitFor(t, 3*time.Second, func() bool { return device.Locked() }, "device not locked back")

	devCancel()
	<-devDone
}

func TestLowBatteryRejectedOverBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cont, broker := startMosquitto(ctx, t)
	defer func() {
		if err := cont.Terminate(context.Background()); err != nil {
			t.Logf("terminate: %v", err)
		}
	}()

	device := simulator.NewSimulatedDevice("veh1", broker, 10, simulator.AutoRespond{})
	devCtx, devCancel := context.WithCancel(ctx)
	defer devCancel()
	devDone := make(chan error, 1)
	go func() { devDone <- device.Run(devCtx) }()

	actuator, err := mqtt.NewPahoActuator(mqtt.Config{Broker: broker, ClientID: "e2e-coordinator-low"})
	if err != nil {
		t.Fatalf("actuator: %v", err)
	}
	defer actuator.Disconnect()

	ride.ResetMetrics(nil)
	registry := store.NewMemoryRegistry(model.Vehicle{ID: "veh1", Electric: true})
	svc, err := ride.NewService(store.NewMemoryRepository(), registry, actuator, 5*time.Second, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	time.Sleep(250 * time.Millisecond)

	if _, err := svc.Start(ctx, ride.StartRequest{VehicleID: "veh1", UserID: "u1"}); err == nil {
		t.Fatal("expected low battery rejection")
	}
	if device.Locked() == false {
		t.Fatal("device unlocked despite rejection")
	}

	devCancel()
	<-devDone
}
