package device

import "errors"

// ErrTransport is returned when a command cannot be handed to the bus.
var ErrTransport = errors.New("device bus unavailable")

// ErrQueryTimeout marks a battery query that expired without a response.
// It never reaches callers of RequestBatteryLevel, which resolves fail-open;
// it exists for logging and tests.
var ErrQueryTimeout = errors.New("timeout waiting for battery response")
