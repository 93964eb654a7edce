package mqtt

// CommandTopic addresses lock/unlock commands to one vehicle's device.
func CommandTopic(vehicleID string) string {
	return "evshare/vehicle/" + vehicleID + "/command"
}

// BatteryRequestTopic addresses battery queries to one vehicle's device.
func BatteryRequestTopic(vehicleID string) string {
	return "evshare/vehicle/" + vehicleID + "/battery/request"
}

// BatteryResponseTopic is shared by all devices; responses are matched to
// their query by correlation id.
const BatteryResponseTopic = "evshare/battery/response"
