package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"wifi-go-home/internal/device"
	"wifi-go-home/internal/sensor"
)

// ErrNotConnected short-circuits publishes while the broker is unreachable.
// Telemetry is not queued; the next cycle publishes fresh values anyway.
var ErrNotConnected = errors.New("mqtt not connected")

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Handler receives dispatched commands. Implementations publish their own
// responses and state updates through the client, so the dispatch methods
// return nothing.
type Handler interface {
	SetDevice(cmdID, name string, state int)
	SetDevices(cmdID string, fan, light, ac int)
	SetMode(cmdID string, mode int)
	SetInterval(cmdID string, sec int)
	SetTimestamp(cmdID string, ts int64)
	GetStatus(cmdID string)
	Ping(cmdID string)
	Reboot(cmdID string)
	FactoryReset(cmdID string)
}

// Config holds the MQTT connection settings.
type Config struct {
	Broker    string
	DeviceID  string
	Username  string
	Password  string
	BaseTopic string
	Responses bool // false enables the legacy mode without response acks
}

// Client owns the broker connection and the five device topics.
type Client struct {
	client    pahomqtt.Client
	topics    Topics
	responses bool
	logger    *slog.Logger

	handler Handler
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		topics:    NewTopics(cfg.BaseTopic, cfg.DeviceID),
		responses: cfg.Responses,
		logger:    logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.DeviceID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			c.logger.Info("mqtt connected", "broker", cfg.Broker)
			c.subscribeCommands()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			c.logger.Warn("mqtt connection lost", "error", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = pahomqtt.NewClient(opts)
	return c
}

// SetHandler installs the command sink. Must be called before Start.
func (c *Client) SetHandler(h Handler) {
	c.handler = h
}

// Start connects to the broker. The command subscription is re-established
// on every (re)connect.
func (c *Client) Start() error {
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (c *Client) Stop() {
	c.client.Disconnect(1000)
	c.logger.Info("mqtt stopped")
}

// IsConnected reports whether the broker session is up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) subscribeCommands() {
	token := c.client.Subscribe(c.topics.Command, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.handleCommand(msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		c.logger.Error("command subscription failed", "topic", c.topics.Command, "error", token.Error())
		return
	}
	c.logger.Info("subscribed", "topic", c.topics.Command)
}

// handleCommand parses and dispatches one inbound message. Malformed
// envelopes are logged and dropped without a response; the sender has
// nothing to correlate an error to.
func (c *Client) handleCommand(payload []byte) {
	cmd, err := parseCommand(payload)
	if err != nil {
		c.logger.Warn("dropping malformed command", "error", err)
		return
	}
	if c.handler == nil {
		c.logger.Warn("no command handler installed", "command", cmd.Name)
		return
	}
	c.logger.Debug("command received", "id", cmd.ID, "command", cmd.Name)

	switch cmd.Name {
	case "set_device":
		name := paramString(cmd.Params, "device", "")
		state := paramInt(cmd.Params, "state", 0)
		c.handler.SetDevice(cmd.ID, name, state)
	case "set_devices":
		fan := paramInt(cmd.Params, "fan", device.Leave)
		light := paramInt(cmd.Params, "light", device.Leave)
		ac := paramInt(cmd.Params, "ac", device.Leave)
		c.handler.SetDevices(cmd.ID, fan, light, ac)
	case "set_mode":
		c.handler.SetMode(cmd.ID, paramInt(cmd.Params, "mode", 0))
	case "set_interval":
		c.handler.SetInterval(cmd.ID, paramInt(cmd.Params, "interval", 0))
	case "set_timestamp":
		c.handler.SetTimestamp(cmd.ID, paramInt64(cmd.Params, "timestamp", 0))
	case "get_status":
		c.handler.GetStatus(cmd.ID)
	case "ping":
		c.handler.Ping(cmd.ID)
	case "reboot":
		c.handler.Reboot(cmd.ID)
	case "factory_reset":
		c.handler.FactoryReset(cmd.ID)
	default:
		c.logger.Warn("unknown command", "id", cmd.ID, "command", cmd.Name)
	}
}

func (c *Client) publish(topic string, qos byte, retain bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishData sends one telemetry sample. QoS 0: a lost sample is
// superseded by the next one.
func (c *Client) PublishData(ts int64, r sensor.Reading) error {
	payload, err := buildData(ts, r)
	if err != nil {
		return err
	}
	return c.publish(c.topics.Data, 0, false, payload)
}

// PublishState sends the retained device state.
func (c *Client) PublishState(ts int64, s device.State) error {
	payload, err := buildState(ts, s)
	if err != nil {
		return err
	}
	return c.publish(c.topics.State, 1, true, payload)
}

// PublishInfo sends the retained device description.
func (c *Client) PublishInfo(info Info) error {
	payload, err := buildInfo(info)
	if err != nil {
		return err
	}
	return c.publish(c.topics.Info, 1, true, payload)
}

// PublishResponse acks a command. In legacy mode (responses disabled) this
// is a no-op; the retained state republish signals completion instead.
func (c *Client) PublishResponse(cmdID, status string) error {
	if !c.responses {
		return nil
	}
	payload, err := buildResponse(cmdID, status)
	if err != nil {
		return err
	}
	return c.publish(c.topics.Response, 1, true, payload)
}
