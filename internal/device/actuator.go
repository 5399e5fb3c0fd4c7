package device

import "errors"

// Device names on the wire. The command protocol and the state payload use
// these exact strings.
const (
	Fan   = "fan"
	Light = "light"
	AC    = "ac"
)

// ErrUnknownDevice is returned when a command names a device this controller
// does not drive.
var ErrUnknownDevice = errors.New("unknown device")

// Actuators drives named boolean outputs. Implementations must be safe for
// concurrent use; Get reflects the last value written.
type Actuators interface {
	Set(name string, on bool) error
	Get(name string) (bool, error)
	Close() error
}

// KnownDevice reports whether name is one of the devices this controller
// drives.
func KnownDevice(name string) bool {
	switch name {
	case Fan, Light, AC:
		return true
	}
	return false
}
