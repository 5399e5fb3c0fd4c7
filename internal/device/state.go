package device

import (
	"errors"
	"fmt"
	"time"
)

// Interval bounds for the data publish period, in seconds.
const (
	MinInterval = 1
	MaxInterval = 3600
)

// Leave is the sentinel accepted by ApplyDevices to keep a device unchanged.
const Leave = -1

var (
	// ErrInvalidInterval is returned when set_interval is out of bounds.
	ErrInvalidInterval = errors.New("interval out of range")
	// ErrBusy is returned when the state lock could not be taken in time.
	ErrBusy = errors.New("state busy")
)

// State is the device state record as it appears on the wire. Boolean
// devices use 0/1 ints to match the JSON payloads.
type State struct {
	Mode        int `json:"mode"`
	IntervalSec int `json:"interval"`
	Fan         int `json:"fan"`
	Light       int `json:"light"`
	AC          int `json:"ac"`
}

// Coordinator guards the shared device state. All reads and writes go
// through it; the publish path uses the timed accessor so a stuck writer
// only costs one skipped cycle.
type Coordinator struct {
	sem           chan struct{}
	state         State
	intervalDirty bool
}

func NewCoordinator(initial State) *Coordinator {
	c := &Coordinator{sem: make(chan struct{}, 1)}
	c.state = initial
	if c.state.IntervalSec < MinInterval {
		c.state.IntervalSec = MinInterval
	}
	return c
}

func (c *Coordinator) lock()   { c.sem <- struct{}{} }
func (c *Coordinator) unlock() { <-c.sem }

func (c *Coordinator) tryLock(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// With runs fn while holding the state lock.
func (c *Coordinator) With(fn func(s *State)) {
	c.lock()
	defer c.unlock()
	fn(&c.state)
}

// View returns a snapshot of the current state.
func (c *Coordinator) View() State {
	c.lock()
	defer c.unlock()
	return c.state
}

// TryView returns a snapshot if the lock can be taken within timeout,
// otherwise ErrBusy. Callers on the publish path skip the cycle on ErrBusy.
func (c *Coordinator) TryView(timeout time.Duration) (State, error) {
	if !c.tryLock(timeout) {
		return State{}, ErrBusy
	}
	defer c.unlock()
	return c.state, nil
}

// ApplyDevices sets the three devices at once. A value of Leave (-1) keeps
// that device unchanged; any other nonzero value switches it on.
func (c *Coordinator) ApplyDevices(fan, light, ac int) {
	c.lock()
	defer c.unlock()
	if fan != Leave {
		c.state.Fan = toBit(fan)
	}
	if light != Leave {
		c.state.Light = toBit(light)
	}
	if ac != Leave {
		c.state.AC = toBit(ac)
	}
}

// SetDevice sets a single device by wire name.
func (c *Coordinator) SetDevice(name string, on bool) error {
	c.lock()
	defer c.unlock()
	bit := 0
	if on {
		bit = 1
	}
	switch name {
	case Fan:
		c.state.Fan = bit
	case Light:
		c.state.Light = bit
	case AC:
		c.state.AC = bit
	default:
		return fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	return nil
}

// SetMode switches the device mode (0=OFF, 1=ON).
func (c *Coordinator) SetMode(mode int) {
	c.lock()
	defer c.unlock()
	c.state.Mode = toBit(mode)
}

// SetInterval updates the data publish interval. Out-of-range values are
// rejected without changing the state. An accepted change marks the
// interval dirty so the publisher resets its timer.
func (c *Coordinator) SetInterval(sec int) error {
	if sec < MinInterval || sec > MaxInterval {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidInterval, sec, MinInterval, MaxInterval)
	}
	c.lock()
	defer c.unlock()
	c.state.IntervalSec = sec
	c.intervalDirty = true
	return nil
}

// ConsumeIntervalDirty reports whether the interval changed since the last
// call and clears the flag.
func (c *Coordinator) ConsumeIntervalDirty() bool {
	c.lock()
	defer c.unlock()
	dirty := c.intervalDirty
	c.intervalDirty = false
	return dirty
}

// SyncFromHardware re-derives the device bits from the actuators and the
// given mode. Called before every state publish so the payload reflects
// reality even after direct hardware changes.
func (c *Coordinator) SyncFromHardware(a Actuators, mode int) error {
	fan, err := a.Get(Fan)
	if err != nil {
		return err
	}
	light, err := a.Get(Light)
	if err != nil {
		return err
	}
	ac, err := a.Get(AC)
	if err != nil {
		return err
	}

	c.lock()
	defer c.unlock()
	c.state.Fan = boolBit(fan)
	c.state.Light = boolBit(light)
	c.state.AC = boolBit(ac)
	c.state.Mode = toBit(mode)
	return nil
}

func toBit(v int) int {
	if v != 0 {
		return 1
	}
	return 0
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
