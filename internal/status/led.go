package status

import (
	"context"
	"log/slog"
	"time"

	"wifi-go-home/internal/device"
)

const ledPollInterval = 500 * time.Millisecond

// LEDTask mirrors registry indicators onto status LEDs. Each mapping pairs
// an indicator name with an actuator output of the same meaning.
type LEDTask struct {
	registry *Registry
	leds     device.Actuators
	mapping  map[string]string // indicator name -> led name
	logger   *slog.Logger

	last map[string]bool
}

func NewLEDTask(registry *Registry, leds device.Actuators, mapping map[string]string, logger *slog.Logger) *LEDTask {
	return &LEDTask{
		registry: registry,
		leds:     leds,
		mapping:  mapping,
		logger:   logger.With("component", "led"),
		last:     make(map[string]bool),
	}
}

// Run polls the registry until ctx is cancelled, writing only on change.
func (t *LEDTask) Run(ctx context.Context) {
	ticker := time.NewTicker(ledPollInterval)
	defer ticker.Stop()

	t.refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *LEDTask) refresh() {
	for indicator, led := range t.mapping {
		on := t.registry.Get(indicator)
		prev, seen := t.last[indicator]
		if seen && prev == on {
			continue
		}
		if err := t.leds.Set(led, on); err != nil {
			t.logger.Warn("failed to drive status led", "led", led, "error", err)
			continue
		}
		t.last[indicator] = on
	}
}
