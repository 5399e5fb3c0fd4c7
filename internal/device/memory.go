package device

import (
	"fmt"
	"sync"
)

// MemoryActuators keeps output state in memory. Used when the daemon runs
// without GPIO hardware and in tests.
type MemoryActuators struct {
	mu    sync.Mutex
	state map[string]bool
}

// NewMemoryActuators creates in-memory outputs. With no arguments the
// standard device set is used; LED banks pass their own names.
func NewMemoryActuators(names ...string) *MemoryActuators {
	if len(names) == 0 {
		names = []string{Fan, Light, AC}
	}
	state := make(map[string]bool, len(names))
	for _, n := range names {
		state[n] = false
	}
	return &MemoryActuators{state: state}
}

func (m *MemoryActuators) Set(name string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	m.state[name] = on
	return nil
}

func (m *MemoryActuators) Get(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	on, ok := m.state[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	return on, nil
}

func (m *MemoryActuators) Close() error { return nil }
