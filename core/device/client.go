// Package device defines the contract between the ride orchestrator and the
// physical vehicle devices reached over the asynchronous bus.
package device

import (
	"context"
	"time"
)

// MinStartLevel is the battery percentage required to admit a ride.
const MinStartLevel = 20

// Actuator sends commands to a vehicle's onboard device and queries its
// battery over a correlated request/response round-trip.
type Actuator interface {
	// SendUnlock publishes an unlock command. Success means accepted for
	// delivery, not confirmed by the device.
	SendUnlock(vehicleID, rideID string) error

	// SendLock publishes a lock command, symmetric to SendUnlock.
	SendLock(vehicleID, rideID string) error

	// RequestBatteryLevel asks the device for its battery level and waits up
	// to timeout for the correlated response. A response yields the reported
	// level and acceptable = level >= MinStartLevel. A silent device or an
	// unavailable transport resolves fail-open: acceptable true, nil level.
	RequestBatteryLevel(ctx context.Context, vehicleID string, timeout time.Duration) (acceptable bool, level *int, err error)
}
