// Package status tracks named boolean health indicators. Component owners
// register a probe once; consumers (the LED task, the portal) poll the
// registry instead of reaching into each component.
package status

import "sync"

// Probe reports the current value of one indicator.
type Probe func() bool

// Registry holds the named indicators.
type Registry struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Probe)}
}

// Register installs the probe for name, replacing any previous one.
func (r *Registry) Register(name string, p Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = p
}

// Get evaluates the named indicator. Unregistered names read false.
func (r *Registry) Get(name string) bool {
	r.mu.RLock()
	p := r.probes[name]
	r.mu.RUnlock()
	if p == nil {
		return false
	}
	return p()
}

// Names returns the registered indicator names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	return names
}

// Standard indicator names.
const (
	WiFi = "wifi"
	MQTT = "mqtt"
	Mode = "mode"
)
