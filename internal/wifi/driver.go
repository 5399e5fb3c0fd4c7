package wifi

import "context"

// EventKind identifies a driver notification.
type EventKind int

const (
	// EventGotIP fires when the station association completes and an
	// address is assigned.
	EventGotIP EventKind = iota
	// EventDisconnected fires when the station loses its association,
	// whether by failure or by AP action.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventGotIP:
		return "got_ip"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// DriverEvent is an asynchronous notification from the wireless backend.
type DriverEvent struct {
	Kind EventKind
	IP   string // set for EventGotIP
}

// ScanResult is one visible network.
type ScanResult struct {
	SSID string `json:"ssid"`
	RSSI int    `json:"rssi"`
	Auth string `json:"auth"`
}

// IPInfo describes the current station address.
type IPInfo struct {
	IP      string `json:"ip"`
	Gateway string `json:"gateway,omitempty"`
}

// Driver abstracts the wireless backend. The manager owns the connection
// lifecycle; the driver only executes primitives and reports events on
// Notifications. Implementations must not block event delivery on the
// manager (buffer or drop).
type Driver interface {
	// Connect begins association with the given network. Completion is
	// reported asynchronously via EventGotIP or EventDisconnected.
	Connect(ssid, password string) error
	// Disconnect drops the current association without disabling the radio.
	Disconnect() error
	// StopStation disables station mode entirely.
	StopStation() error
	// StartAccessPoint brings up the provisioning AP.
	StartAccessPoint(ssid string) error
	// StopAccessPoint tears down the provisioning AP.
	StopAccessPoint() error
	// Scan lists visible networks, at most max entries.
	Scan(ctx context.Context, max int) ([]ScanResult, error)
	// IPInfo returns the current station address, or an error when not
	// associated.
	IPInfo() (*IPInfo, error)
	// RSSI returns the signal strength of the current association in dBm.
	RSSI() (int, error)
	// Notifications delivers driver events for the lifetime of the driver.
	Notifications() <-chan DriverEvent
	Close() error
}
