package ride

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/evshare/core/device"
	"github.com/kilianp07/evshare/core/model"
	"github.com/kilianp07/evshare/infra/logger"
	"github.com/kilianp07/evshare/infra/mqtt"
	"github.com/kilianp07/evshare/infra/store"
	"github.com/kilianp07/evshare/internal/eventbus"
)

func newTestService(t *testing.T, vehicles ...model.Vehicle) (*Service, *store.MemoryRepository, *mqtt.MockActuator) {
	t.Helper()
	repo := store.NewMemoryRepository()
	registry := store.NewMemoryRegistry(vehicles...)
	act := mqtt.NewMockActuator()
	svc, err := NewService(repo, registry, act, time.Second, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, repo, act
}

func TestStartRideAdmitted(t *testing.T) {
	svc, repo, act := newTestService(t, model.Vehicle{ID: "e1", Electric: true})
	act.SetLevel("e1", 50)

	res, err := svc.Start(context.Background(), StartRequest{VehicleID: "e1", UserID: "u1", ParkingID: 3})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !res.Unlocked || !res.BatteryChecked {
		t.Fatalf("expected unlocked admission, got %#v", res)
	}
	if res.BatteryLevel == nil || *res.BatteryLevel != 50 {
		t.Fatalf("expected level 50, got %v", res.BatteryLevel)
	}
	if res.Ride.State != model.RideActive {
		t.Fatalf("expected active ride, got %s", res.Ride.State)
	}
	if act.Unlocked["e1"] != res.Ride.ID {
		t.Fatalf("unlock not published for ride")
	}
	stored, _ := repo.Get(context.Background(), res.Ride.ID)
	if stored == nil || stored.State != model.RideActive {
		t.Fatalf("ride not persisted active: %#v", stored)
	}
}

func TestStartRideLowBattery(t *testing.T) {
	svc, repo, act := newTestService(t, model.Vehicle{ID: "e2", Electric: true})
	act.SetLevel("e2", 10)

	res, err := svc.Start(context.Background(), StartRequest{VehicleID: "e2", UserID: "u1"})
	if !errors.Is(err, ErrLowBattery) {
		t.Fatalf("expected low battery rejection, got %v", err)
	}
	if res.BatteryLevel == nil || *res.BatteryLevel != 10 {
		t.Fatalf("expected observed level 10, got %v", res.BatteryLevel)
	}
	if res.Unlocked || len(act.Unlocked) != 0 {
		t.Fatalf("unlock must not be published on rejection")
	}
	stored, _ := repo.Get(context.Background(), res.Ride.ID)
	if stored == nil || stored.State != model.RideFailed {
		t.Fatalf("expected failed ride persisted, got %#v", stored)
	}
}

func TestStartRideSilentDeviceFailOpen(t *testing.T) {
	// no level configured: the mock resolves like a query timeout
	svc, _, act := newTestService(t, model.Vehicle{ID: "e3", Electric: true})

	res, err := svc.Start(context.Background(), StartRequest{VehicleID: "e3", UserID: "u1"})
	if err != nil {
		t.Fatalf("expected fail-open admission, got %v", err)
	}
	if !res.BatteryChecked || res.BatteryLevel != nil {
		t.Fatalf("expected checked with missing level, got %#v", res)
	}
	if res.Ride.State != model.RideActive {
		t.Fatalf("expected active ride, got %s", res.Ride.State)
	}
	if _, ok := act.Unlocked["e3"]; !ok {
		t.Fatalf("unlock not published")
	}
}

func TestStartRideNonElectricSkipsQuery(t *testing.T) {
	svc, _, _ := newTestService(t, model.Vehicle{ID: "b1"})

	res, err := svc.Start(context.Background(), StartRequest{VehicleID: "b1", UserID: "u1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.BatteryChecked || res.BatteryLevel != nil {
		t.Fatalf("battery query must be skipped for non-electric vehicles")
	}
	if res.Ride.State != model.RideActive {
		t.Fatalf("expected active ride, got %s", res.Ride.State)
	}
}

func TestStartRideActiveRideRejected(t *testing.T) {
	svc, _, act := newTestService(t, model.Vehicle{ID: "e1", Electric: true})
	act.SetLevel("e1", 80)

	if _, err := svc.Start(context.Background(), StartRequest{VehicleID: "e1", UserID: "u1"}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := svc.Start(context.Background(), StartRequest{VehicleID: "e1", UserID: "u2"})
	if !errors.Is(err, ErrActiveRide) {
		t.Fatalf("expected active ride rejection, got %v", err)
	}
}

func TestStartRideUnlockFailure(t *testing.T) {
	svc, repo, act := newTestService(t, model.Vehicle{ID: "e1", Electric: true})
	act.SetLevel("e1", 80)
	act.FailIDs["e1"] = true

	res, err := svc.Start(context.Background(), StartRequest{VehicleID: "e1", UserID: "u1"})
	if !errors.Is(err, device.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	stored, _ := repo.Get(context.Background(), res.Ride.ID)
	if stored == nil || stored.State != model.RideFailed {
		t.Fatalf("expected failed ride persisted, got %#v", stored)
	}
}

func TestStartRideUnknownVehicle(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Start(context.Background(), StartRequest{VehicleID: "ghost", UserID: "u1"})
	if !errors.Is(err, ErrUnknownVehicle) {
		t.Fatalf("expected unknown vehicle, got %v", err)
	}
}

func TestStartRideMaintenance(t *testing.T) {
	svc, _, _ := newTestService(t, model.Vehicle{ID: "m1", Electric: true, UnderMaintenance: true})
	_, err := svc.Start(context.Background(), StartRequest{VehicleID: "m1", UserID: "u1"})
	if !errors.Is(err, ErrVehicleUnavailable) {
		t.Fatalf("expected unavailable vehicle, got %v", err)
	}
}

func TestConcurrentStartSingleWinner(t *testing.T) {
	svc, _, act := newTestService(t, model.Vehicle{ID: "e1", Electric: true})
	act.SetLevel("e1", 90)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Start(context.Background(), StartRequest{VehicleID: "e1", UserID: "u"})
		}(i)
	}
	wg.Wait()

	admitted, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrActiveRide):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != 1 || rejected != n-1 {
		t.Fatalf("expected exactly one admission, got %d admitted %d rejected", admitted, rejected)
	}
}

func TestEndRide(t *testing.T) {
	svc, repo, act := newTestService(t, model.Vehicle{ID: "e1", Electric: true})
	act.SetLevel("e1", 70)

	res, err := svc.Start(context.Background(), StartRequest{VehicleID: "e1", UserID: "u1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ended, err := svc.End(context.Background(), res.Ride.ID, EndRequest{ParkingID: 7, Maintenance: true})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.State != model.RideCompleted || ended.EndTime == nil || ended.EndParkingID != 7 || !ended.Maintenance {
		t.Fatalf("unexpected ended ride %#v", ended)
	}
	if act.Locked["e1"] != ended.ID {
		t.Fatalf("lock not published on termination")
	}
	active, _ := repo.HasActiveRide(context.Background(), "e1")
	if active {
		t.Fatalf("vehicle still active after termination")
	}
}

func TestEndRideNotActive(t *testing.T) {
	svc, _, act := newTestService(t, model.Vehicle{ID: "e1", Electric: true})
	act.SetLevel("e1", 70)
	res, _ := svc.Start(context.Background(), StartRequest{VehicleID: "e1", UserID: "u1"})
	if _, err := svc.End(context.Background(), res.Ride.ID, EndRequest{}); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := svc.End(context.Background(), res.Ride.ID, EndRequest{}); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}
}

func TestEndRideUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.End(context.Background(), "missing", EndRequest{}); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestActiveForUser(t *testing.T) {
	svc, _, act := newTestService(t,
		model.Vehicle{ID: "e1", Electric: true},
		model.Vehicle{ID: "e2", Electric: true},
	)
	act.SetLevel("e1", 70)
	act.SetLevel("e2", 70)

	res1, _ := svc.Start(context.Background(), StartRequest{VehicleID: "e1", UserID: "u1"})
	if _, err := svc.End(context.Background(), res1.Ride.ID, EndRequest{}); err != nil {
		t.Fatalf("end: %v", err)
	}
	res2, _ := svc.Start(context.Background(), StartRequest{VehicleID: "e2", UserID: "u1"})

	active, err := svc.ActiveForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ID != res2.Ride.ID {
		t.Fatalf("expected %s active, got %#v", res2.Ride.ID, active)
	}

	rides, err := svc.ListByUser(context.Background(), "u1")
	if err != nil || len(rides) != 2 {
		t.Fatalf("expected 2 rides, got %d err %v", len(rides), err)
	}
}

func TestStartRideEventsPublished(t *testing.T) {
	repo := store.NewMemoryRepository()
	registry := store.NewMemoryRegistry(model.Vehicle{ID: "e1", Electric: true})
	act := mqtt.NewMockActuator()
	act.SetLevel("e1", 60)
	bus := eventbus.New[Event]()
	svc, err := NewService(repo, registry, act, time.Second, bus, logger.NopLogger{})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	ch := bus.Subscribe()

	if _, err := svc.Start(context.Background(), StartRequest{VehicleID: "e1", UserID: "u1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Type != EventStarted || ev.Ride.VehicleID != "e1" {
			t.Fatalf("unexpected event %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event published")
	}
}
