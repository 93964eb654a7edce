package model

import "time"

// RideState is the lifecycle state of a rental.
type RideState string

const (
	RideRequested RideState = "requested"
	RideActive    RideState = "active"
	RideCompleted RideState = "completed"
	RideFailed    RideState = "failed"
)

// ParkingUnknown marks a battery status or ride whose parking location is
// undetermined. The reporting layer has no live position source yet.
const ParkingUnknown = 0

// Ride is one rental session for a vehicle by a user, from unlock to lock.
type Ride struct {
	ID             string     `json:"id"`
	VehicleID      string     `json:"vehicle_id"`
	UserID         string     `json:"user_id"`
	State          RideState  `json:"state"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	StartParkingID int        `json:"start_parking_id"`
	EndParkingID   int        `json:"end_parking_id"`
	Maintenance    bool       `json:"maintenance"`
}

// Terminal returns true when no further transition exists for the ride.
func (r Ride) Terminal() bool {
	return r.State == RideCompleted || r.State == RideFailed
}
