package store

import "errors"

// ErrNotFound is returned when a requested entry does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface. Entries must survive process
// restart; all methods are safe for concurrent use.
type Store interface {
	// WiFi credentials (namespace "wifi_config")
	GetCredentials() (*Credentials, error)
	SaveCredentials(ssid, password string) error
	ClearCredentials() error

	// Device settings (namespace "mode_config")
	GetSettings() (*Settings, error)
	SaveSettings(s *Settings) error

	// Wipe erases all namespaces (factory reset).
	Wipe() error

	Close() error
}
