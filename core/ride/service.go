package ride

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/kilianp07/evshare/core/device"
	"github.com/kilianp07/evshare/core/logger"
	"github.com/kilianp07/evshare/core/model"
	"github.com/kilianp07/evshare/internal/eventbus"
)

// StartRequest asks to begin a ride on a vehicle.
type StartRequest struct {
	VehicleID string `json:"vehicle_id"`
	UserID    string `json:"user_id"`
	ParkingID int    `json:"parking_id"`
}

// StartResult reports the admission outcome. BatteryLevel is nil when the
// check was skipped (non-electric vehicle) or resolved by timeout.
type StartResult struct {
	Ride           *model.Ride `json:"ride,omitempty"`
	Unlocked       bool        `json:"unlocked"`
	BatteryChecked bool        `json:"battery_checked"`
	BatteryLevel   *int        `json:"battery_level,omitempty"`
}

// EndRequest terminates an active ride.
type EndRequest struct {
	ParkingID   int  `json:"parking_id"`
	Maintenance bool `json:"maintenance"`
}

// keyedMutex serializes admission per vehicle. Locks are created on first
// use and never removed; the fleet is bounded.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Service orchestrates the ride lifecycle: battery admission, actuation and
// persisted state transitions.
type Service struct {
	repo         Repository
	registry     VehicleRegistry
	actuator     device.Actuator
	queryTimeout time.Duration
	bus          *eventbus.Bus[Event]
	log          logger.Logger
	locks        keyedMutex
	now          func() time.Time
	newID        func() string
}

// NewService creates the orchestrator. A queryTimeout of zero defaults to
// ten seconds.
func NewService(repo Repository, registry VehicleRegistry, actuator device.Actuator, queryTimeout time.Duration, bus *eventbus.Bus[Event], log logger.Logger) (*Service, error) {
	if repo == nil || registry == nil || actuator == nil || log == nil {
		return nil, fmt.Errorf("ride: nil parameter provided to NewService")
	}
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Service{
		repo:         repo,
		registry:     registry,
		actuator:     actuator,
		queryTimeout: queryTimeout,
		bus:          bus,
		log:          log,
		now:          time.Now,
		newID:        uuid.NewString,
	}, nil
}

// Start runs the admission sequence: battery check, per-vehicle active-ride
// guard, unlock, activation. The battery query runs before the vehicle lock
// is taken so a slow device never blocks other admissions on the vehicle,
// and the lock is never held across the bus round-trip.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	vehicle, known, err := s.registry.Get(ctx, req.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("vehicle lookup: %w", err)
	}
	if !known {
		ridesRejected.WithLabelValues("unknown_vehicle").Inc()
		return nil, ErrUnknownVehicle
	}
	if vehicle.UnderMaintenance {
		ridesRejected.WithLabelValues("maintenance").Inc()
		return nil, ErrVehicleUnavailable
	}

	res := &StartResult{}
	acceptable := true
	if vehicle.Electric {
		res.BatteryChecked = true
		start := s.now()
		acceptable, res.BatteryLevel, err = s.actuator.RequestBatteryLevel(ctx, req.VehicleID, s.queryTimeout)
		batteryCheckLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			// Battery check faults never block a ride.
			s.log.Errorf("battery check for %s: %v", req.VehicleID, err)
			acceptable, res.BatteryLevel = true, nil
		}
	}

	lock := s.locks.get(req.VehicleID)
	lock.Lock()
	defer lock.Unlock()

	active, err := s.repo.HasActiveRide(ctx, req.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("active ride check: %w", err)
	}
	if active {
		ridesRejected.WithLabelValues("active_ride").Inc()
		return res, ErrActiveRide
	}

	r := &model.Ride{
		ID:             s.newID(),
		VehicleID:      req.VehicleID,
		UserID:         req.UserID,
		State:          model.RideRequested,
		StartTime:      s.now(),
		StartParkingID: req.ParkingID,
		EndParkingID:   model.ParkingUnknown,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("persist ride: %w", err)
	}
	res.Ride = r
	lifecycle := newLifecycle(r.State)

	if !acceptable {
		s.fail(ctx, lifecycle, r)
		ridesRejected.WithLabelValues("low_battery").Inc()
		s.publish(Event{Type: EventRejected, Ride: *r, BatteryLevel: res.BatteryLevel, Reason: "low_battery"})
		if res.BatteryLevel != nil {
			s.log.Infof("ride for %s rejected: battery at %d%%", req.VehicleID, *res.BatteryLevel)
		}
		return res, ErrLowBattery
	}

	if err := s.actuator.SendUnlock(req.VehicleID, r.ID); err != nil {
		actuationFailure.Inc()
		s.fail(ctx, lifecycle, r)
		ridesRejected.WithLabelValues("transport").Inc()
		s.publish(Event{Type: EventRejected, Ride: *r, Reason: "transport"})
		return res, fmt.Errorf("unlock %s: %w", req.VehicleID, err)
	}
	actuationSuccess.Inc()
	res.Unlocked = true

	if err := lifecycle.Event(ctx, eventActivate); err != nil {
		return res, fmt.Errorf("activate ride: %w", err)
	}
	r.State = model.RideState(lifecycle.Current())
	if err := s.repo.Update(ctx, r); err != nil {
		return res, fmt.Errorf("persist ride state: %w", err)
	}
	ridesStarted.Inc()
	s.publish(Event{Type: EventStarted, Ride: *r, BatteryLevel: res.BatteryLevel})
	s.log.Infof("ride %s active on vehicle %s", r.ID, req.VehicleID)
	return res, nil
}

// End terminates an active ride: records end time and destination, persists
// the completed state and issues the lock command. Termination never
// re-checks battery, and a lock publish failure does not undo completion.
func (s *Service) End(ctx context.Context, rideID string, req EndRequest) (*model.Ride, error) {
	r, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrRideNotFound
	}

	lock := s.locks.get(r.VehicleID)
	lock.Lock()
	defer lock.Unlock()

	lifecycle := newLifecycle(r.State)
	if err := lifecycle.Event(ctx, eventComplete); err != nil {
		return nil, fmt.Errorf("%w: state %s", ErrNotActive, r.State)
	}
	r.State = model.RideState(lifecycle.Current())
	end := s.now()
	r.EndTime = &end
	r.EndParkingID = req.ParkingID
	r.Maintenance = req.Maintenance
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("persist ride state: %w", err)
	}

	if err := s.actuator.SendLock(r.VehicleID, r.ID); err != nil {
		actuationFailure.Inc()
		s.log.Errorf("lock %s after ride %s: %v", r.VehicleID, r.ID, err)
	} else {
		actuationSuccess.Inc()
	}
	ridesCompleted.Inc()
	s.publish(Event{Type: EventEnded, Ride: *r})
	s.log.Infof("ride %s completed on vehicle %s", r.ID, r.VehicleID)
	return r, nil
}

// Get returns a ride by id.
func (s *Service) Get(ctx context.Context, rideID string) (*model.Ride, error) {
	r, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrRideNotFound
	}
	return r, nil
}

// ListByUser returns all rides of a user, active first included.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]model.Ride, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ActiveForUser returns the user's active ride, or nil when none exists.
func (s *Service) ActiveForUser(ctx context.Context, userID string) (*model.Ride, error) {
	rides, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range rides {
		if rides[i].State == model.RideActive {
			return &rides[i], nil
		}
	}
	return nil, nil
}

// fail transitions a requested ride to failed and persists it. Persistence
// errors here are logged only: the caller already carries the admission error.
func (s *Service) fail(ctx context.Context, lifecycle *fsm.FSM, r *model.Ride) {
	if err := lifecycle.Event(ctx, eventReject); err != nil {
		s.log.Errorf("reject ride %s: %v", r.ID, err)
		return
	}
	r.State = model.RideState(lifecycle.Current())
	if err := s.repo.Update(ctx, r); err != nil {
		s.log.Errorf("persist failed ride %s: %v", r.ID, err)
	}
}

func (s *Service) publish(e Event) {
	if s.bus == nil {
		return
	}
	e.Timestamp = s.now()
	s.bus.Publish(e)
}
