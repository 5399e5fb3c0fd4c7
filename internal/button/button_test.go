package button

import (
	"testing"
	"time"

	gpiod "github.com/warthog618/go-gpiocdev"
)

func TestDebounceAcceptsFirstChange(t *testing.T) {
	in := &input{}
	if !debounce(in, true) {
		t.Fatal("first press rejected")
	}
}

func TestDebounceRejectsRepeatedState(t *testing.T) {
	in := &input{}
	debounce(in, true)
	if debounce(in, true) {
		t.Fatal("repeat of the current state accepted")
	}
}

func TestDebounceRejectsFastBounce(t *testing.T) {
	in := &input{}
	debounce(in, true)
	// Release arrives immediately, inside the stability window.
	if debounce(in, false) {
		t.Fatal("bounce inside the stability window accepted")
	}
}

func TestDebounceAcceptsSettledChange(t *testing.T) {
	in := &input{}
	debounce(in, true)
	in.lastChange = time.Now().Add(-2 * debounceStability)
	if !debounce(in, false) {
		t.Fatal("settled release rejected")
	}
}

func TestPressedFromEdge(t *testing.T) {
	if !pressedFromEdge(gpiod.LineEventRisingEdge, false) {
		t.Error("rising edge on active-high wiring should press")
	}
	if pressedFromEdge(gpiod.LineEventFallingEdge, false) {
		t.Error("falling edge on active-high wiring should release")
	}
	if !pressedFromEdge(gpiod.LineEventFallingEdge, true) {
		t.Error("falling edge on active-low wiring should press")
	}
	if pressedFromEdge(gpiod.LineEventRisingEdge, true) {
		t.Error("rising edge on active-low wiring should release")
	}
}
