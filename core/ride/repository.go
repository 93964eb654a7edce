package ride

import (
	"context"

	"github.com/kilianp07/evshare/core/model"
)

// Repository persists rides. Implementations live outside the core.
type Repository interface {
	// HasActiveRide reports whether the vehicle has a ride in the active state.
	HasActiveRide(ctx context.Context, vehicleID string) (bool, error)
	Create(ctx context.Context, r *model.Ride) error
	Update(ctx context.Context, r *model.Ride) error
	Get(ctx context.Context, id string) (*model.Ride, error)
	ListByUser(ctx context.Context, userID string) ([]model.Ride, error)
}

// VehicleRegistry resolves vehicles for admission decisions.
type VehicleRegistry interface {
	// Get returns the vehicle and whether it is known.
	Get(ctx context.Context, id string) (model.Vehicle, bool, error)
	ListElectricVehicles(ctx context.Context) ([]model.Vehicle, error)
}
