package mqtt

// Actuation commands understood by the onboard devices.
const (
	CommandLock   = "LOCK"
	CommandUnlock = "UNLOCK"
)

// Command is the payload published on a vehicle's command topic.
type Command struct {
	VehicleID string `json:"vehicle_id"`
	Command   string `json:"command"`
	RideID    string `json:"ride_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// BatteryRequest is the payload published on a vehicle's battery request topic.
type BatteryRequest struct {
	VehicleID     string `json:"vehicle_id"`
	CorrelationID string `json:"correlation_id"`
	Timestamp     int64  `json:"timestamp"`
}

// BatteryResponse is the payload devices publish on the shared response topic.
type BatteryResponse struct {
	VehicleID     string `json:"vehicle_id"`
	CorrelationID string `json:"correlation_id"`
	Level         int    `json:"level"`
	Timestamp     int64  `json:"timestamp"`
}
