package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kilianp07/evshare/core/model"
)

// MemoryRepository keeps rides in memory. It backs tests and the simulator;
// production deployments use the SQLite repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	rides map[string]model.Ride
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rides: make(map[string]model.Ride)}
}

// HasActiveRide reports whether the vehicle has a ride in the active state.
func (m *MemoryRepository) HasActiveRide(_ context.Context, vehicleID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.VehicleID == vehicleID && r.State == model.RideActive {
			return true, nil
		}
	}
	return false, nil
}

// Create stores a new ride.
func (m *MemoryRepository) Create(_ context.Context, r *model.Ride) error {
	m.mu.Lock()
	m.rides[r.ID] = *r
	m.mu.Unlock()
	return nil
}

// Update overwrites the stored ride.
func (m *MemoryRepository) Update(_ context.Context, r *model.Ride) error {
	m.mu.Lock()
	m.rides[r.ID] = *r
	m.mu.Unlock()
	return nil
}

// Get returns the ride or nil when unknown.
func (m *MemoryRepository) Get(_ context.Context, id string) (*model.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// ListByUser returns the user's rides ordered by start time.
func (m *MemoryRepository) ListByUser(_ context.Context, userID string) ([]model.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]model.Ride, 0)
	for _, r := range m.rides {
		if r.UserID == userID {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StartTime.Before(res[j].StartTime) })
	return res, nil
}

// MemoryRegistry is a fixed in-memory vehicle registry.
type MemoryRegistry struct {
	mu       sync.RWMutex
	vehicles map[string]model.Vehicle
}

// NewMemoryRegistry creates a registry holding the given vehicles.
func NewMemoryRegistry(vehicles ...model.Vehicle) *MemoryRegistry {
	m := &MemoryRegistry{vehicles: make(map[string]model.Vehicle, len(vehicles))}
	for _, v := range vehicles {
		m.vehicles[v.ID] = v
	}
	return m
}

// Add registers or replaces a vehicle.
func (m *MemoryRegistry) Add(v model.Vehicle) {
	m.mu.Lock()
	m.vehicles[v.ID] = v
	m.mu.Unlock()
}

// Get returns the vehicle and whether it is known.
func (m *MemoryRegistry) Get(_ context.Context, id string) (model.Vehicle, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	return v, ok, nil
}

// ListElectricVehicles returns every electric vehicle, maintenance included;
// callers filter on the maintenance flag.
func (m *MemoryRegistry) ListElectricVehicles(_ context.Context) ([]model.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]model.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		if v.Electric {
			res = append(res, v)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
