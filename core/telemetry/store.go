package telemetry

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Battery level thresholds driving the simulated charge cycle.
const (
	// chargeStopAt stops charging once reached.
	chargeStopAt = 90
	// chargeStartAt plugs the vehicle back in once reached.
	chargeStartAt = 25
	// chargingBelow derives the charging flag on seed and override.
	chargingBelow = 30
	// LowBatteryBelow classifies a vehicle as LOW at read time.
	LowBatteryBelow = 20
)

// BatteryState is the simulated telemetry of one electric vehicle.
type BatteryState struct {
	VehicleID     string    `json:"vehicle_id"`
	Level         int       `json:"level"`
	Charging      bool      `json:"charging"`
	LastUpdate    time.Time `json:"last_update"`
	ChargeRate    int       `json:"charge_rate"`
	DischargeRate int       `json:"discharge_rate"`
}

// Status classifies the battery at read time. It is never stored.
func (b BatteryState) Status() string {
	if b.Level < LowBatteryBelow {
		return "LOW"
	}
	return "OK"
}

// ActiveRideChecker reports whether a vehicle currently has an active ride.
// The discharge branch of the tick only drains vehicles in use.
type ActiveRideChecker interface {
	HasActiveRide(ctx context.Context, vehicleID string) (bool, error)
}

type entry struct {
	mu    sync.Mutex
	state BatteryState
}

// Store tracks per-vehicle battery state. Each vehicle has its own lock so
// ticks, overrides and reads on different vehicles never contend.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	rides   ActiveRideChecker
	now     func() time.Time
}

// NewStore creates an empty store draining vehicles reported in use by rides.
func NewStore(rides ActiveRideChecker) *Store {
	return &Store{
		entries: make(map[string]*entry),
		rides:   rides,
		now:     time.Now,
	}
}

// Init seeds battery state for every id not already tracked and returns the
// number of vehicles added. Seed levels are uniform in [15,100); a freshly
// seeded vehicle charges when below 30%. Already tracked ids are untouched.
func (s *Store) Init(vehicleIDs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, id := range vehicleIDs {
		if _, ok := s.entries[id]; ok {
			continue
		}
		level := 15 + rand.Intn(85)
		s.entries[id] = &entry{state: BatteryState{
			VehicleID:     id,
			Level:         level,
			Charging:      level < chargingBelow,
			LastUpdate:    s.now(),
			ChargeRate:    1 + rand.Intn(2),
			DischargeRate: 1,
		}}
		added++
	}
	return added
}

// Get returns a snapshot of the vehicle's battery state.
func (s *Store) Get(vehicleID string) (BatteryState, bool) {
	s.mu.RLock()
	e, ok := s.entries[vehicleID]
	s.mu.RUnlock()
	if !ok {
		return BatteryState{}, false
	}
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	return st, true
}

// All returns a snapshot of every tracked vehicle, in no particular order.
func (s *Store) All() []BatteryState {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()
	res := make([]BatteryState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		res = append(res, e.state)
		e.mu.Unlock()
	}
	return res
}

// SetLevel overrides the vehicle's level, clamped to [0,100], and recomputes
// the charging flag. Returns false for untracked vehicles.
func (s *Store) SetLevel(vehicleID string, level int) bool {
	s.mu.RLock()
	e, ok := s.entries[vehicleID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	e.mu.Lock()
	e.state.Level = level
	e.state.Charging = level < chargingBelow
	e.state.LastUpdate = s.now()
	e.mu.Unlock()
	return true
}

// Tick advances the simulation one cycle for every tracked vehicle and
// returns the number of vehicles whose level changed. Charging vehicles gain
// their charge rate and unplug at 90%. Idle vehicles only drain while a ride
// is active, and plug back in at 25%.
func (s *Store) Tick(ctx context.Context) int {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	updated := 0
	for _, e := range entries {
		e.mu.Lock()
		id := e.state.VehicleID
		old := e.state.Level
		if e.state.Charging {
			e.state.Level = min(100, e.state.Level+e.state.ChargeRate)
			if e.state.Level >= chargeStopAt {
				e.state.Charging = false
			}
		} else {
			// Runs under the vehicle lock: the checker must not call
			// back into the store.
			if inUse, err := s.rides.HasActiveRide(ctx, id); err == nil && inUse {
				e.state.Level = max(0, e.state.Level-e.state.DischargeRate)
			}
			if e.state.Level <= chargeStartAt {
				e.state.Charging = true
			}
		}
		e.state.LastUpdate = s.now()
		if e.state.Level != old {
			updated++
		}
		e.mu.Unlock()
	}
	return updated
}
