package ride

import (
	"time"

	"github.com/kilianp07/evshare/core/model"
)

// EventType classifies ride lifecycle events on the bus.
type EventType string

const (
	EventStarted  EventType = "started"
	EventRejected EventType = "rejected"
	EventEnded    EventType = "ended"
)

// Event is published on the event bus for every lifecycle decision.
type Event struct {
	Type         EventType  `json:"type"`
	Ride         model.Ride `json:"ride"`
	BatteryLevel *int       `json:"battery_level,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}
