package mqtt

// Topics are the five per-device topics, derived once from the base prefix
// and the device ID.
type Topics struct {
	Data     string // telemetry, QoS 0, not retained
	State    string // device state, QoS 1, retained
	Info     string // device info, QoS 1, retained
	Command  string // inbound commands, QoS 1, subscribed
	Response string // command acks, QoS 1, retained
}

func NewTopics(base, deviceID string) Topics {
	prefix := base + "/" + deviceID
	return Topics{
		Data:     prefix + "/data",
		State:    prefix + "/state",
		Info:     prefix + "/info",
		Command:  prefix + "/command",
		Response: prefix + "/response",
	}
}
