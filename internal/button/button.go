// Package button reads the physical control buttons over the GPIO
// character device and maps presses to controller actions.
package button

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	gpiod "github.com/warthog618/go-gpiocdev"
)

// debounceStability is the minimum gap between accepted state changes.
// Edges inside the window are treated as contact bounce.
const debounceStability = 100 * time.Millisecond

// Actions receives debounced button presses.
type Actions interface {
	ToggleDevice(name string)
	ToggleMode()
}

// Pin binds a button to a GPIO offset. Target names the device to toggle;
// the reserved target "mode" toggles the device mode instead.
type Pin struct {
	Target   string
	Offset   int
	Inverted bool // wired active-low with a pull-up
}

// ModeTarget is the reserved Pin target for the mode button.
const ModeTarget = "mode"

type input struct {
	line *gpiod.Line

	mu          sync.Mutex
	lastPressed bool
	lastChange  time.Time
}

// Buttons owns the requested input lines.
type Buttons struct {
	chip   *gpiod.Chip
	inputs []*input
	logger *slog.Logger
}

// New requests edge-event lines for the given pins and routes debounced
// presses to actions.
func New(chipName string, pins []Pin, actions Actions, logger *slog.Logger) (*Buttons, error) {
	chip, err := gpiod.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	b := &Buttons{
		chip:   chip,
		logger: logger.With("component", "button"),
	}
	for _, p := range pins {
		in := &input{}
		opts := []gpiod.LineReqOption{
			gpiod.AsInput,
			gpiod.WithBothEdges,
			gpiod.WithEventHandler(b.handler(in, p, actions)),
		}
		if p.Inverted {
			opts = append(opts, gpiod.WithPullUp)
		}
		line, err := chip.RequestLine(p.Offset, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request gpio line %d for %s button: %w", p.Offset, p.Target, err)
		}
		in.line = line
		b.inputs = append(b.inputs, in)
	}
	return b, nil
}

func (b *Buttons) handler(in *input, p Pin, actions Actions) func(gpiod.LineEvent) {
	return func(evt gpiod.LineEvent) {
		pressed := pressedFromEdge(evt.Type, p.Inverted)
		if !debounce(in, pressed) {
			return
		}
		// Act on press only, releases are just tracked for debouncing.
		if !pressed {
			return
		}
		b.logger.Info("button pressed", "target", p.Target)
		if p.Target == ModeTarget {
			actions.ToggleMode()
		} else {
			actions.ToggleDevice(p.Target)
		}
	}
}

// debounce reports whether the edge is a genuine state change. Repeats of
// the current state and changes inside the stability window are bounce.
func debounce(in *input, pressed bool) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	now := time.Now()
	if pressed == in.lastPressed {
		return false
	}
	if !in.lastChange.IsZero() && now.Sub(in.lastChange) < debounceStability {
		return false
	}
	in.lastPressed = pressed
	in.lastChange = now
	return true
}

func pressedFromEdge(t gpiod.LineEventType, inverted bool) bool {
	if inverted {
		return t == gpiod.LineEventFallingEdge
	}
	return t == gpiod.LineEventRisingEdge
}

func (b *Buttons) Close() error {
	for _, in := range b.inputs {
		if in.line != nil {
			in.line.Close()
		}
	}
	return b.chip.Close()
}
