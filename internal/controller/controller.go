// Package controller ties the command protocol to the device state, the
// actuators and the persistent settings.
package controller

import (
	"errors"
	"log/slog"
	"time"

	"wifi-go-home/internal/clock"
	"wifi-go-home/internal/device"
	"wifi-go-home/internal/mqtt"
	"wifi-go-home/internal/sensor"
	"wifi-go-home/internal/store"
)

// rebootDelay gives the command ack time to reach the broker before the
// process goes down.
var rebootDelay = time.Second

// stateLockTimeout bounds how long a publish waits for the state lock. A
// busy cycle is skipped; the next one publishes fresh state anyway.
const stateLockTimeout = 100 * time.Millisecond

// Transport is the outbound slice of the MQTT client.
type Transport interface {
	IsConnected() bool
	PublishData(ts int64, r sensor.Reading) error
	PublishState(ts int64, s device.State) error
	PublishInfo(info mqtt.Info) error
	PublishResponse(cmdID, status string) error
}

// Config carries the controller's collaborators.
type Config struct {
	Coordinator *device.Coordinator
	Actuators   device.Actuators
	Transport   Transport
	Store       store.Store
	Clock       clock.Clock
	Cache       *sensor.Cache
	Info        func() mqtt.Info // builds the retained device description
	Restart     func()           // process restart for reboot/factory_reset
	Logger      *slog.Logger
}

// Controller implements the command semantics. It satisfies mqtt.Handler.
type Controller struct {
	coord     *device.Coordinator
	actuators device.Actuators
	transport Transport
	store     store.Store
	clock     clock.Clock
	cache     *sensor.Cache
	info      func() mqtt.Info
	restart   func()
	logger    *slog.Logger
}

func New(cfg Config) *Controller {
	return &Controller{
		coord:     cfg.Coordinator,
		actuators: cfg.Actuators,
		transport: cfg.Transport,
		store:     cfg.Store,
		clock:     cfg.Clock,
		cache:     cfg.Cache,
		info:      cfg.Info,
		restart:   cfg.Restart,
		logger:    cfg.Logger.With("component", "controller"),
	}
}

func (c *Controller) respond(cmdID, status string) {
	if err := c.transport.PublishResponse(cmdID, status); err != nil {
		c.logger.Warn("response publish failed", "cmd_id", cmdID, "error", err)
	}
}

// SetDevice switches one named device. Unknown names are acked with an
// error and touch nothing.
func (c *Controller) SetDevice(cmdID, name string, state int) {
	if !device.KnownDevice(name) {
		c.logger.Warn("set_device for unknown device", "cmd_id", cmdID, "name", name)
		c.respond(cmdID, mqtt.StatusError)
		return
	}
	on := state != 0
	if err := c.actuators.Set(name, on); err != nil {
		c.logger.Error("actuator write failed", "name", name, "error", err)
		c.respond(cmdID, mqtt.StatusError)
		return
	}
	if err := c.coord.SetDevice(name, on); err != nil {
		c.respond(cmdID, mqtt.StatusError)
		return
	}
	c.respond(cmdID, mqtt.StatusSuccess)
	c.PublishState()
}

// SetDevices applies a bulk update. A -1 leaves that device unchanged.
func (c *Controller) SetDevices(cmdID string, fan, light, ac int) {
	failed := false
	for _, d := range []struct {
		name  string
		value int
	}{
		{device.Fan, fan},
		{device.Light, light},
		{device.AC, ac},
	} {
		if d.value == device.Leave {
			continue
		}
		if err := c.actuators.Set(d.name, d.value != 0); err != nil {
			c.logger.Error("actuator write failed", "name", d.name, "error", err)
			failed = true
		}
	}
	c.coord.ApplyDevices(fan, light, ac)

	if failed {
		c.respond(cmdID, mqtt.StatusError)
	} else {
		c.respond(cmdID, mqtt.StatusSuccess)
	}
	c.PublishState()
}

// SetMode switches the device mode and persists it.
func (c *Controller) SetMode(cmdID string, mode int) {
	c.coord.SetMode(mode)
	c.persistSettings()
	c.respond(cmdID, mqtt.StatusSuccess)
	c.PublishState()
}

// SetInterval updates the telemetry interval. Out-of-range values are
// rejected and leave the running interval untouched.
func (c *Controller) SetInterval(cmdID string, sec int) {
	if err := c.coord.SetInterval(sec); err != nil {
		c.logger.Warn("set_interval rejected", "cmd_id", cmdID, "interval", sec, "error", err)
		c.respond(cmdID, mqtt.StatusError)
		return
	}
	c.persistSettings()
	c.respond(cmdID, mqtt.StatusSuccess)
	c.PublishState()
}

// SetTimestamp adjusts the device clock.
func (c *Controller) SetTimestamp(cmdID string, ts int64) {
	c.clock.Set(ts)
	c.logger.Info("clock set", "timestamp", ts)
	c.respond(cmdID, mqtt.StatusSuccess)
}

// GetStatus acks and republishes the full picture: telemetry, state, info.
func (c *Controller) GetStatus(cmdID string) {
	c.respond(cmdID, mqtt.StatusSuccess)
	c.PublishData()
	c.PublishState()
	c.PublishInfo()
}

// Ping acks and does nothing else.
func (c *Controller) Ping(cmdID string) {
	c.respond(cmdID, mqtt.StatusSuccess)
}

// Reboot acks, waits for the ack to flush, then restarts the process.
func (c *Controller) Reboot(cmdID string) {
	c.logger.Info("reboot requested", "cmd_id", cmdID)
	c.respond(cmdID, mqtt.StatusSuccess)
	time.AfterFunc(rebootDelay, c.restart)
}

// FactoryReset acks, wipes all persisted state, then restarts.
func (c *Controller) FactoryReset(cmdID string) {
	c.logger.Info("factory reset requested", "cmd_id", cmdID)
	c.respond(cmdID, mqtt.StatusSuccess)
	time.AfterFunc(rebootDelay, func() {
		if err := c.store.Wipe(); err != nil {
			c.logger.Error("store wipe failed", "error", err)
		}
		c.restart()
	})
}

// ToggleDevice flips one device, hardware first. Wired to the physical
// buttons.
func (c *Controller) ToggleDevice(name string) {
	cur, err := c.actuators.Get(name)
	if err != nil {
		c.logger.Error("toggle read failed", "name", name, "error", err)
		return
	}
	if err := c.actuators.Set(name, !cur); err != nil {
		c.logger.Error("toggle write failed", "name", name, "error", err)
		return
	}
	if err := c.coord.SetDevice(name, !cur); err != nil {
		c.logger.Error("toggle state update failed", "name", name, "error", err)
		return
	}
	c.logger.Info("device toggled", "name", name, "on", !cur)
	c.PublishState()
}

// ToggleMode flips the device mode. Wired to the mode button.
func (c *Controller) ToggleMode() {
	mode := 1 - c.coord.View().Mode
	c.coord.SetMode(mode)
	c.persistSettings()
	c.logger.Info("mode toggled", "mode", mode)
	c.PublishState()
}

// Mode returns the current device mode. Used by the status registry.
func (c *Controller) Mode() int {
	return c.coord.View().Mode
}

func (c *Controller) persistSettings() {
	s := c.coord.View()
	err := c.store.SaveSettings(&store.Settings{Mode: s.Mode, IntervalSec: s.IntervalSec})
	if err != nil {
		c.logger.Error("settings persist failed", "error", err)
	}
}

// PublishData sends the latest cached reading. Skipped while disconnected
// or before the first sample arrives.
func (c *Controller) PublishData() {
	if !c.transport.IsConnected() {
		return
	}
	reading, ok := c.cache.Latest()
	if !ok {
		c.logger.Debug("no sensor reading cached yet, skipping data publish")
		return
	}
	if err := c.transport.PublishData(c.clock.Now(), reading); err != nil {
		c.logger.Warn("data publish failed", "error", err)
	}
}

// PublishState re-derives the state from hardware and publishes it. When
// the state lock is contended past the timeout the cycle is skipped; a
// missed publish is superseded by the next one.
func (c *Controller) PublishState() {
	if !c.transport.IsConnected() {
		return
	}
	mode := c.coord.View().Mode
	if err := c.coord.SyncFromHardware(c.actuators, mode); err != nil {
		c.logger.Error("hardware state sync failed", "error", err)
		return
	}
	s, err := c.coord.TryView(stateLockTimeout)
	if err != nil {
		if errors.Is(err, device.ErrBusy) {
			c.logger.Warn("state lock busy, skipping state publish")
			return
		}
		c.logger.Error("state snapshot failed", "error", err)
		return
	}
	if err := c.transport.PublishState(c.clock.Now(), s); err != nil {
		c.logger.Warn("state publish failed", "error", err)
	}
}

// PublishInfo sends the retained device description.
func (c *Controller) PublishInfo() {
	if !c.transport.IsConnected() {
		return
	}
	info := c.info()
	info.Timestamp = c.clock.Now()
	if err := c.transport.PublishInfo(info); err != nil {
		c.logger.Warn("info publish failed", "error", err)
	}
}
