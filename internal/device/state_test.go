package device

import (
	"errors"
	"testing"
	"time"
)

func TestApplyDevicesSentinel(t *testing.T) {
	c := NewCoordinator(State{Fan: 1, Light: 0, AC: 1, IntervalSec: 10})

	// -1 leaves a device alone, other values overwrite.
	c.ApplyDevices(Leave, 1, 0)

	s := c.View()
	if s.Fan != 1 {
		t.Errorf("fan = %d, want 1 (unchanged)", s.Fan)
	}
	if s.Light != 1 {
		t.Errorf("light = %d, want 1", s.Light)
	}
	if s.AC != 0 {
		t.Errorf("ac = %d, want 0", s.AC)
	}
}

func TestApplyDevicesNormalizesToBit(t *testing.T) {
	c := NewCoordinator(State{IntervalSec: 10})

	c.ApplyDevices(5, Leave, Leave)
	if got := c.View().Fan; got != 1 {
		t.Errorf("fan = %d, want 1", got)
	}
}

func TestSetDeviceUnknown(t *testing.T) {
	c := NewCoordinator(State{IntervalSec: 10})

	if err := c.SetDevice("heater", true); !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("err = %v, want ErrUnknownDevice", err)
	}
}

func TestSetIntervalBounds(t *testing.T) {
	c := NewCoordinator(State{IntervalSec: 10})

	for _, sec := range []int{0, -5, MaxInterval + 1} {
		if err := c.SetInterval(sec); !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("SetInterval(%d) err = %v, want ErrInvalidInterval", sec, err)
		}
	}
	if got := c.View().IntervalSec; got != 10 {
		t.Errorf("interval after rejected sets = %d, want 10", got)
	}

	if err := c.SetInterval(MaxInterval); err != nil {
		t.Fatal(err)
	}
	if got := c.View().IntervalSec; got != MaxInterval {
		t.Errorf("interval = %d, want %d", got, MaxInterval)
	}
}

func TestIntervalDirtyFlag(t *testing.T) {
	c := NewCoordinator(State{IntervalSec: 10})

	if c.ConsumeIntervalDirty() {
		t.Fatal("fresh coordinator reported a dirty interval")
	}

	if err := c.SetInterval(30); err != nil {
		t.Fatal(err)
	}
	if !c.ConsumeIntervalDirty() {
		t.Fatal("interval change not reported")
	}
	if c.ConsumeIntervalDirty() {
		t.Fatal("dirty flag not cleared after consume")
	}

	// A rejected set must not mark the interval dirty.
	c.SetInterval(0)
	if c.ConsumeIntervalDirty() {
		t.Fatal("rejected set marked the interval dirty")
	}
}

func TestTryViewTimesOutWhileHeld(t *testing.T) {
	c := NewCoordinator(State{IntervalSec: 10})

	release := make(chan struct{})
	held := make(chan struct{})
	go c.With(func(s *State) {
		close(held)
		<-release
	})
	<-held

	_, err := c.TryView(20 * time.Millisecond)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}

	close(release)

	// Once released the snapshot succeeds again.
	if _, err := c.TryView(time.Second); err != nil {
		t.Fatalf("TryView after release: %v", err)
	}
}

func TestSyncFromHardware(t *testing.T) {
	c := NewCoordinator(State{IntervalSec: 10})
	a := NewMemoryActuators()

	if err := a.Set(Fan, true); err != nil {
		t.Fatal(err)
	}
	if err := a.Set(AC, true); err != nil {
		t.Fatal(err)
	}

	if err := c.SyncFromHardware(a, 1); err != nil {
		t.Fatal(err)
	}

	s := c.View()
	if s.Fan != 1 || s.Light != 0 || s.AC != 1 {
		t.Errorf("state = %+v, want fan=1 light=0 ac=1", s)
	}
	if s.Mode != 1 {
		t.Errorf("mode = %d, want 1", s.Mode)
	}
}
