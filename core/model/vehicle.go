package model

// Vehicle represents a shared asset known to the fleet registry.
type Vehicle struct {
	ID               string `json:"id"`
	Electric         bool   `json:"electric"`
	UnderMaintenance bool   `json:"under_maintenance"`
}

// Tracked returns true if the vehicle should carry simulated battery telemetry.
func (v Vehicle) Tracked() bool {
	return v.Electric && !v.UnderMaintenance
}
