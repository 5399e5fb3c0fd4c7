package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"wifi-go-home/internal/button"
	"wifi-go-home/internal/clock"
	"wifi-go-home/internal/controller"
	"wifi-go-home/internal/device"
	"wifi-go-home/internal/mqtt"
	"wifi-go-home/internal/portal"
	"wifi-go-home/internal/sensor"
	"wifi-go-home/internal/status"
	"wifi-go-home/internal/store"
	"wifi-go-home/internal/wifi"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Device struct {
		ID              string `yaml:"id"`
		DefaultMode     int    `yaml:"default_mode"`
		DefaultInterval int    `yaml:"default_interval"`
	} `yaml:"device"`
	Sensor struct {
		Source string `yaml:"source"` // "mock" or "serial"
		Port   string `yaml:"port"`
		Baud   int    `yaml:"baud"`
	} `yaml:"sensor"`
	WiFi struct {
		Driver    string `yaml:"driver"` // "nmcli" or "none"
		Interface string `yaml:"interface"`
		MaxRetry  int    `yaml:"max_retry"`
		APSSID    string `yaml:"ap_ssid"`
	} `yaml:"wifi"`
	Portal struct {
		Listen string `yaml:"listen"`
	} `yaml:"portal"`
	MQTT struct {
		Enabled   bool   `yaml:"enabled"`
		Broker    string `yaml:"broker"`
		Username  string `yaml:"username"`
		Password  string `yaml:"password"`
		BaseTopic string `yaml:"base_topic"`
		Responses *bool  `yaml:"responses"` // false selects the legacy no-ack protocol
	} `yaml:"mqtt"`
	GPIO struct {
		Enabled bool   `yaml:"enabled"`
		Chip    string `yaml:"chip"`
		Relays  []struct {
			Name     string `yaml:"name"`
			Pin      int    `yaml:"pin"`
			Inverted bool   `yaml:"inverted"`
		} `yaml:"relays"`
		LEDs []struct {
			Status string `yaml:"status"` // "wifi", "mqtt" or "mode"
			Pin    int    `yaml:"pin"`
		} `yaml:"leds"`
		Buttons []struct {
			Target   string `yaml:"target"` // device name or "mode"
			Pin      int    `yaml:"pin"`
			Inverted bool   `yaml:"inverted"`
		} `yaml:"buttons"`
	} `yaml:"gpio"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	if c.Device.ID == "" {
		return fmt.Errorf("device.id is required")
	}
	if c.Device.DefaultInterval < device.MinInterval || c.Device.DefaultInterval > device.MaxInterval {
		return fmt.Errorf("device.default_interval must be %d-%d, got %d",
			device.MinInterval, device.MaxInterval, c.Device.DefaultInterval)
	}
	switch c.Sensor.Source {
	case "mock":
	case "serial":
		if c.Sensor.Port == "" {
			return fmt.Errorf("sensor.port is required for the serial source")
		}
	default:
		return fmt.Errorf("unknown sensor.source: %q (supported: mock, serial)", c.Sensor.Source)
	}
	switch c.WiFi.Driver {
	case "none":
	case "nmcli":
		if c.WiFi.Interface == "" {
			return fmt.Errorf("wifi.interface is required for the nmcli driver")
		}
	default:
		return fmt.Errorf("unknown wifi.driver: %q (supported: nmcli, none)", c.WiFi.Driver)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("wifi-go-home starting", "version", version, "device_id", cfg.Device.ID)

	// Open store and restore the persisted settings.
	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	initial := device.State{
		Mode:        cfg.Device.DefaultMode,
		IntervalSec: cfg.Device.DefaultInterval,
	}
	if settings, err := db.GetSettings(); err == nil {
		initial.Mode = settings.Mode
		if settings.IntervalSec >= device.MinInterval && settings.IntervalSec <= device.MaxInterval {
			initial.IntervalSec = settings.IntervalSec
		}
		logger.Info("settings restored", "mode", initial.Mode, "interval", initial.IntervalSec)
	}
	coord := device.NewCoordinator(initial)

	// Actuators, status LEDs and buttons.
	actuators, leds, err := createOutputs(cfg, logger)
	if err != nil {
		logger.Error("set up gpio outputs", "err", err)
		os.Exit(1)
	}
	defer actuators.Close()
	defer leds.Close()

	// Restore the relay outputs to the last published state.
	for _, d := range []struct {
		name string
		bit  int
	}{{device.Fan, initial.Fan}, {device.Light, initial.Light}, {device.AC, initial.AC}} {
		if err := actuators.Set(d.name, d.bit != 0); err != nil {
			logger.Warn("restore output", "name", d.name, "err", err)
		}
	}

	// Sensor source and cache.
	source, err := createSensorSource(cfg, logger)
	if err != nil {
		logger.Error("set up sensor source", "err", err)
		os.Exit(1)
	}
	defer source.Close()
	cache := sensor.NewCache()

	clk := clock.NewSystemClock()
	registry := status.NewRegistry()
	registry.Register(status.Mode, func() bool { return coord.View().Mode != 0 })

	restart := func() {
		logger.Info("restarting, expecting the service supervisor to relaunch")
		os.Exit(0)
	}

	// WiFi manager with provisioning fallback.
	var wifiMgr *wifi.Manager
	if cfg.WiFi.Driver == "nmcli" {
		driver, err := wifi.NewNMCLIDriver(cfg.WiFi.Interface, logger)
		if err != nil {
			logger.Error("create wifi driver", "err", err)
			os.Exit(1)
		}
		wifiMgr = wifi.NewManager(wifi.ManagerConfig{
			Driver:   driver,
			Store:    db,
			MaxRetry: cfg.WiFi.MaxRetry,
			APSSID:   cfg.WiFi.APSSID,
			Restart:  restart,
			Logger:   logger,
		})
		portalSrv, err := portal.NewServer(wifiMgr, cfg.Portal.Listen, cfg.WiFi.APSSID, logger)
		if err != nil {
			logger.Error("create portal", "err", err)
			os.Exit(1)
		}
		wifiMgr.SetPortal(portalSrv)
		wifiMgr.SetListener(func(connected bool) {
			logger.Info("wifi connectivity changed", "connected", connected)
		})
		registry.Register(status.WiFi, wifiMgr.IsConnected)

		if err := wifiMgr.Init(); err != nil {
			logger.Error("init wifi manager", "err", err)
			os.Exit(1)
		}
		if err := wifiMgr.Start(); err != nil {
			logger.Error("start wifi manager", "err", err)
			os.Exit(1)
		}
		defer wifiMgr.Close()
	} else {
		// Wired or externally managed connectivity.
		registry.Register(status.WiFi, func() bool { return true })
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sensor.Sample(ctx, source, cache, time.Second, logger)

	// The controller always runs so the physical buttons actuate even
	// without a broker; with MQTT disabled it gets an offline transport and
	// every publish is skipped.
	var transport controller.Transport = offlineTransport{}
	var client *mqtt.Client
	if cfg.MQTT.Enabled {
		client = mqtt.NewClient(mqtt.Config{
			Broker:    cfg.MQTT.Broker,
			DeviceID:  cfg.Device.ID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			BaseTopic: cfg.MQTT.BaseTopic,
			Responses: *cfg.MQTT.Responses,
		}, logger)
		registry.Register(status.MQTT, client.IsConnected)
		transport = client
	} else {
		registry.Register(status.MQTT, func() bool { return false })
	}

	ctrl := controller.New(controller.Config{
		Coordinator: coord,
		Actuators:   actuators,
		Transport:   transport,
		Store:       db,
		Clock:       clk,
		Cache:       cache,
		Info: func() mqtt.Info {
			info := mqtt.Info{ID: cfg.Device.ID, Firmware: version, Broker: cfg.MQTT.Broker}
			if wifiMgr != nil {
				st := wifiMgr.Status()
				info.SSID = st.SSID
				info.IP = st.IP
			}
			return info
		},
		Restart: restart,
		Logger:  logger,
	})

	if client != nil {
		client.SetHandler(ctrl)

		if wifiMgr != nil {
			// Refresh the retained info and state on every network change so
			// the ip/ssid fields never go stale.
			wifiMgr.SetListener(func(connected bool) {
				logger.Info("wifi connectivity changed", "connected", connected)
				if connected {
					ctrl.PublishInfo()
					ctrl.PublishState()
				}
			})
		}

		if err := client.Start(); err != nil {
			// Keep going; the client retries in the background and the
			// publish path skips cycles until the session is up.
			logger.Warn("mqtt connect pending", "err", err)
		}
		defer client.Stop()
		ctrl.PublishInfo()
		ctrl.PublishState()

		go controller.NewPublisher(ctrl, logger).Run(ctx)
	}

	if cfg.GPIO.Enabled && len(cfg.GPIO.Buttons) > 0 {
		pins := make([]button.Pin, 0, len(cfg.GPIO.Buttons))
		for _, b := range cfg.GPIO.Buttons {
			pins = append(pins, button.Pin{Target: b.Target, Offset: b.Pin, Inverted: b.Inverted})
		}
		buttons, err := button.New(cfg.GPIO.Chip, pins, ctrl, logger)
		if err != nil {
			logger.Error("set up buttons", "err", err)
			os.Exit(1)
		}
		defer buttons.Close()
	}

	ledMapping := make(map[string]string)
	for _, l := range cfg.GPIO.LEDs {
		ledMapping[l.Status] = l.Status
	}
	if len(ledMapping) == 0 {
		ledMapping = map[string]string{
			status.WiFi: status.WiFi,
			status.MQTT: status.MQTT,
			status.Mode: status.Mode,
		}
	}
	go status.NewLEDTask(registry, leds, ledMapping, logger).Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)
	cancel()
}

// offlineTransport stands in for the MQTT client when no broker is
// configured. It always reports disconnected, so the controller skips
// publishes the same way it does during an outage.
type offlineTransport struct{}

func (offlineTransport) IsConnected() bool { return false }

func (offlineTransport) PublishData(int64, sensor.Reading) error { return mqtt.ErrNotConnected }

func (offlineTransport) PublishState(int64, device.State) error { return mqtt.ErrNotConnected }

func (offlineTransport) PublishInfo(mqtt.Info) error { return mqtt.ErrNotConnected }

func (offlineTransport) PublishResponse(string, string) error { return nil }

// createOutputs builds the relay and LED actuator banks. Without GPIO
// hardware both fall back to in-memory outputs so the daemon still runs on
// a development host.
func createOutputs(cfg *Config, logger *slog.Logger) (device.Actuators, device.Actuators, error) {
	ledNames := []string{status.WiFi, status.MQTT, status.Mode}
	if !cfg.GPIO.Enabled {
		logger.Info("gpio disabled, using in-memory outputs")
		return device.NewMemoryActuators(), device.NewMemoryActuators(ledNames...), nil
	}

	relayPins := make([]device.GPIOPin, 0, len(cfg.GPIO.Relays))
	for _, r := range cfg.GPIO.Relays {
		relayPins = append(relayPins, device.GPIOPin{Name: r.Name, Offset: r.Pin, Inverted: r.Inverted})
	}
	actuators, err := device.NewGPIOActuators(cfg.GPIO.Chip, relayPins)
	if err != nil {
		return nil, nil, fmt.Errorf("relays: %w", err)
	}

	ledPins := make([]device.GPIOPin, 0, len(cfg.GPIO.LEDs))
	for _, l := range cfg.GPIO.LEDs {
		ledPins = append(ledPins, device.GPIOPin{Name: l.Status, Offset: l.Pin})
	}
	leds, err := device.NewGPIOActuators(cfg.GPIO.Chip, ledPins)
	if err != nil {
		actuators.Close()
		return nil, nil, fmt.Errorf("leds: %w", err)
	}
	return actuators, leds, nil
}

func createSensorSource(cfg *Config, logger *slog.Logger) (sensor.Source, error) {
	switch cfg.Sensor.Source {
	case "serial":
		logger.Info("using serial sensor source", "port", cfg.Sensor.Port, "baud", cfg.Sensor.Baud)
		return sensor.NewSerialSource(cfg.Sensor.Port, cfg.Sensor.Baud, logger)
	default:
		logger.Info("using mock sensor source")
		return sensor.NewMockSource(), nil
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Device.DefaultMode == 0 {
		cfg.Device.DefaultMode = 1
	}
	if cfg.Device.DefaultInterval == 0 {
		cfg.Device.DefaultInterval = 60
	}
	if cfg.Sensor.Source == "" {
		cfg.Sensor.Source = "mock"
	}
	if cfg.Sensor.Baud == 0 {
		cfg.Sensor.Baud = 115200
	}
	if cfg.WiFi.Driver == "" {
		cfg.WiFi.Driver = "none"
	}
	if cfg.WiFi.MaxRetry == 0 {
		cfg.WiFi.MaxRetry = 3
	}
	if cfg.WiFi.APSSID == "" {
		cfg.WiFi.APSSID = "wifi-go-home-setup"
	}
	if cfg.Portal.Listen == "" {
		cfg.Portal.Listen = ":8080"
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = "home/devices"
	}
	if cfg.MQTT.Responses == nil {
		t := true
		cfg.MQTT.Responses = &t
	}
	if cfg.GPIO.Chip == "" {
		cfg.GPIO.Chip = "gpiochip0"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "wifi-go-home.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
