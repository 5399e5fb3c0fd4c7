package controller

import (
	"context"
	"log/slog"
	"time"
)

const (
	tickInterval        = time.Second
	stateBackupInterval = 60 // seconds
)

// Publisher drives the periodic telemetry and state backup cycle with a 1s
// cooperative tick. Telemetry fires every configured interval while the
// device mode is ON; the retained state is republished on a fixed 60s
// cadence regardless of mode.
type Publisher struct {
	ctrl   *Controller
	logger *slog.Logger

	dataElapsed  int
	stateElapsed int
}

func NewPublisher(ctrl *Controller, logger *slog.Logger) *Publisher {
	return &Publisher{
		ctrl:   ctrl,
		logger: logger.With("component", "publisher"),
	}
}

// Run ticks until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	p.logger.Info("publisher started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("publisher stopped")
			return
		case <-ticker.C:
			p.Step()
		}
	}
}

// Step advances one tick. Factored out of Run so the cycle logic is
// testable without real time.
func (p *Publisher) Step() {
	// An interval change restarts the data window from zero.
	if p.ctrl.coord.ConsumeIntervalDirty() {
		p.dataElapsed = 0
	}
	p.dataElapsed++
	p.stateElapsed++

	if !p.ctrl.transport.IsConnected() {
		return
	}

	s := p.ctrl.coord.View()
	if p.dataElapsed >= s.IntervalSec {
		// The window closes even when mode is OFF; only the publish is
		// gated. Turning the mode on mid-window must not emit a stale
		// backlog.
		p.dataElapsed = 0
		if s.Mode != 0 {
			p.ctrl.PublishData()
		}
	}

	if p.stateElapsed >= stateBackupInterval {
		p.stateElapsed = 0
		p.ctrl.PublishState()
	}
}
