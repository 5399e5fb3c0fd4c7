package device

import (
	"fmt"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"
)

// GPIOActuators drives relays through the GPIO character device. One line
// per device; lines marked inverted are active-low.
type GPIOActuators struct {
	mu       sync.Mutex
	chip     *gpiod.Chip
	lines    map[string]*gpiod.Line
	inverted map[string]bool
	state    map[string]bool
}

// GPIOPin binds a device name to a GPIO offset.
type GPIOPin struct {
	Name     string
	Offset   int
	Inverted bool
}

// NewGPIOActuators requests one output line per pin on the given chip
// (e.g. "gpiochip0"). All outputs start low.
func NewGPIOActuators(chipName string, pins []GPIOPin) (*GPIOActuators, error) {
	chip, err := gpiod.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	a := &GPIOActuators{
		chip:     chip,
		lines:    make(map[string]*gpiod.Line),
		inverted: make(map[string]bool),
		state:    make(map[string]bool),
	}
	for _, p := range pins {
		initial := 0
		if p.Inverted {
			initial = 1
		}
		line, err := chip.RequestLine(p.Offset, gpiod.AsOutput(initial))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("request gpio line %d for %s: %w", p.Offset, p.Name, err)
		}
		a.lines[p.Name] = line
		a.inverted[p.Name] = p.Inverted
		a.state[p.Name] = false
	}
	return a, nil
}

func (a *GPIOActuators) Set(name string, on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	line, ok := a.lines[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	val := 0
	if on != a.inverted[name] {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("set gpio %s: %w", name, err)
	}
	a.state[name] = on
	return nil
}

func (a *GPIOActuators) Get(name string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.lines[name]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	return a.state[name], nil
}

func (a *GPIOActuators) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, line := range a.lines {
		line.Close()
	}
	if a.chip != nil {
		return a.chip.Close()
	}
	return nil
}
