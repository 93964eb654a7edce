package ride

import (
	"github.com/looplab/fsm"

	"github.com/kilianp07/evshare/core/model"
)

// Lifecycle events.
const (
	eventActivate = "activate"
	eventReject   = "reject"
	eventComplete = "complete"
)

// newLifecycle builds the ride state machine seeded at the given state.
// Completed and failed are terminal: no event leaves them.
func newLifecycle(state model.RideState) *fsm.FSM {
	return fsm.NewFSM(
		string(state),
		fsm.Events{
			{Name: eventActivate, Src: []string{string(model.RideRequested)}, Dst: string(model.RideActive)},
			{Name: eventReject, Src: []string{string(model.RideRequested)}, Dst: string(model.RideFailed)},
			{Name: eventComplete, Src: []string{string(model.RideActive)}, Dst: string(model.RideCompleted)},
		},
		fsm.Callbacks{},
	)
}
