package ride

import "errors"

var (
	// ErrActiveRide rejects a start while the vehicle is already rented.
	ErrActiveRide = errors.New("vehicle already has an active ride")
	// ErrLowBattery rejects a start below the admission threshold. The
	// observed level travels in the StartResult, not in the error.
	ErrLowBattery = errors.New("battery level below start threshold")
	// ErrUnknownVehicle marks a start request for a vehicle the registry
	// does not know.
	ErrUnknownVehicle = errors.New("unknown vehicle")
	// ErrVehicleUnavailable rejects vehicles under maintenance.
	ErrVehicleUnavailable = errors.New("vehicle under maintenance")
	// ErrRideNotFound marks an operation on a missing ride id.
	ErrRideNotFound = errors.New("ride not found")
	// ErrNotActive rejects termination of a ride that is not active.
	ErrNotActive = errors.New("ride is not active")
)
