package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/evshare/core/device"
)

// Actuator mirrors the core device.Actuator interface.
type Actuator = device.Actuator

// MockActuator is a simple actuator used in tests. Levels maps vehicle ids to
// reported battery levels; vehicles not present simulate a silent device.
type MockActuator struct {
	Unlocked map[string]string
	Locked   map[string]string
	Levels   map[string]int
	FailIDs  map[string]bool
	mu       sync.Mutex
}

// NewMockActuator creates a new MockActuator.
func NewMockActuator() *MockActuator {
	return &MockActuator{
		Unlocked: make(map[string]string),
		Locked:   make(map[string]string),
		Levels:   make(map[string]int),
		FailIDs:  make(map[string]bool),
	}
}

// SendUnlock records the unlock or returns a transport error if configured to fail.
func (m *MockActuator) SendUnlock(vehicleID, rideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[vehicleID] {
		return fmt.Errorf("%w: publish failed", device.ErrTransport)
	}
	m.Unlocked[vehicleID] = rideID
	return nil
}

// SendLock records the lock or returns a transport error if configured to fail.
func (m *MockActuator) SendLock(vehicleID, rideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[vehicleID] {
		return fmt.Errorf("%w: publish failed", device.ErrTransport)
	}
	m.Locked[vehicleID] = rideID
	return nil
}

// RequestBatteryLevel answers immediately from Levels, or simulates a timeout
// resolving fail-open when the vehicle has no configured level.
func (m *MockActuator) RequestBatteryLevel(_ context.Context, vehicleID string, _ time.Duration) (bool, *int, error) {
	m.mu.Lock()
	level, ok := m.Levels[vehicleID]
	m.mu.Unlock()
	if !ok {
		return true, nil, nil
	}
	return level >= device.MinStartLevel, &level, nil
}

// SetLevel configures the level reported for a vehicle.
func (m *MockActuator) SetLevel(vehicleID string, level int) {
	m.mu.Lock()
	m.Levels[vehicleID] = level
	m.mu.Unlock()
}
