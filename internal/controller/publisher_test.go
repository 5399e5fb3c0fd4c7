package controller

import (
	"io"
	"log/slog"
	"testing"
)

func newTestPublisher(f *fixture) *Publisher {
	return NewPublisher(f.ctrl, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func countEvents(events []string, kind string) int {
	n := 0
	for _, e := range events {
		if e == kind {
			n++
		}
	}
	return n
}

func TestPublisherDataEveryInterval(t *testing.T) {
	f := newFixture(t)
	if err := f.coord.SetInterval(3); err != nil {
		t.Fatal(err)
	}
	f.coord.ConsumeIntervalDirty()
	p := newTestPublisher(f)

	for i := 0; i < 9; i++ {
		p.Step()
	}

	if got := countEvents(f.transport.eventLog(), "data"); got != 3 {
		t.Errorf("data publishes after 9 ticks at interval 3 = %d, want 3", got)
	}
}

func TestPublisherModeOffSkipsDataButAdvancesWindow(t *testing.T) {
	f := newFixture(t)
	if err := f.coord.SetInterval(3); err != nil {
		t.Fatal(err)
	}
	f.coord.ConsumeIntervalDirty()
	f.coord.SetMode(0)
	p := newTestPublisher(f)

	// Two full windows pass silently.
	for i := 0; i < 6; i++ {
		p.Step()
	}
	if got := countEvents(f.transport.eventLog(), "data"); got != 0 {
		t.Fatalf("data published with mode off: %d", got)
	}

	// Mode comes back on mid-window: no stale backlog, the next publish
	// waits for a full fresh window.
	f.coord.SetMode(1)
	p.Step()
	p.Step()
	if got := countEvents(f.transport.eventLog(), "data"); got != 0 {
		t.Errorf("data published before the window closed: %d", got)
	}
	p.Step()
	if got := countEvents(f.transport.eventLog(), "data"); got != 1 {
		t.Errorf("data publishes = %d, want 1 after the window closed", got)
	}
}

func TestPublisherIntervalChangeResetsWindow(t *testing.T) {
	f := newFixture(t)
	if err := f.coord.SetInterval(5); err != nil {
		t.Fatal(err)
	}
	f.coord.ConsumeIntervalDirty()
	p := newTestPublisher(f)

	// Four ticks into a 5s window, then the interval changes to 3.
	for i := 0; i < 4; i++ {
		p.Step()
	}
	if err := f.coord.SetInterval(3); err != nil {
		t.Fatal(err)
	}

	// The old progress is discarded: two more ticks stay quiet.
	p.Step()
	p.Step()
	if got := countEvents(f.transport.eventLog(), "data"); got != 0 {
		t.Fatalf("data published before the new window closed: %d", got)
	}
	p.Step()
	if got := countEvents(f.transport.eventLog(), "data"); got != 1 {
		t.Errorf("data publishes = %d, want 1", got)
	}
}

func TestPublisherStateBackup(t *testing.T) {
	f := newFixture(t)
	f.coord.SetMode(0) // state backup is not mode-gated
	p := newTestPublisher(f)

	for i := 0; i < 60; i++ {
		p.Step()
	}
	if got := countEvents(f.transport.eventLog(), "state"); got != 1 {
		t.Errorf("state backups after 60 ticks = %d, want 1", got)
	}

	for i := 0; i < 60; i++ {
		p.Step()
	}
	if got := countEvents(f.transport.eventLog(), "state"); got != 2 {
		t.Errorf("state backups after 120 ticks = %d, want 2", got)
	}
}

func TestPublisherIdleWhileDisconnected(t *testing.T) {
	f := newFixture(t)
	if err := f.coord.SetInterval(1); err != nil {
		t.Fatal(err)
	}
	f.coord.ConsumeIntervalDirty()
	f.transport.mu.Lock()
	f.transport.connected = false
	f.transport.mu.Unlock()
	p := newTestPublisher(f)

	for i := 0; i < 10; i++ {
		p.Step()
	}
	if events := f.transport.eventLog(); len(events) != 0 {
		t.Errorf("events = %v, want none while disconnected", events)
	}
}
