package wifi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wifi-go-home/internal/store"
)

// ConnState is the manager's connection state.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateProvisioning
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateProvisioning:
		return "provisioning"
	}
	return "unknown"
}

// ErrNotInitialized is returned when Start is called before Init.
var ErrNotInitialized = errors.New("wifi manager not initialized")

var restartDelay = time.Second

// Portal is the provisioning frontend started when the manager gives up on
// station mode.
type Portal interface {
	Start() error
	Stop() error
}

// Listener is notified on connectivity changes. It is always invoked
// outside the manager lock, so it may call back into the manager.
type Listener func(connected bool)

// Status is the connection summary served to the portal.
type Status struct {
	Connected   bool   `json:"connected"`
	Provisioned bool   `json:"provisioned"`
	SSID        string `json:"ssid,omitempty"`
	IP          string `json:"ip,omitempty"`
	RSSI        int    `json:"rssi,omitempty"`
}

// ManagerConfig carries the manager's collaborators and tuning.
type ManagerConfig struct {
	Driver   Driver
	Store    store.Store
	Portal   Portal
	MaxRetry int    // consecutive failures before falling back to provisioning
	APSSID   string // provisioning access point name
	Restart  func() // invoked after provisioning or credential reset
	Logger   *slog.Logger
}

// Manager owns the station lifecycle: association, bounded retry, and the
// fallback to access-point provisioning when credentials are absent or
// exhausted.
type Manager struct {
	driver   Driver
	store    store.Store
	portal   Portal
	maxRetry int
	apSSID   string
	restart  func()
	logger   *slog.Logger

	mu          sync.Mutex
	state       ConnState
	retryCount  int
	creds       *store.Credentials
	listener    Listener
	initialized bool

	wg sync.WaitGroup
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 3
	}
	return &Manager{
		driver:   cfg.Driver,
		store:    cfg.Store,
		portal:   cfg.Portal,
		maxRetry: cfg.MaxRetry,
		apSSID:   cfg.APSSID,
		restart:  cfg.Restart,
		logger:   cfg.Logger.With("component", "wifi"),
		state:    StateIdle,
	}
}

// SetPortal installs the provisioning frontend. The portal needs the
// manager to serve scans and credentials, so it is wired in after
// construction. Must be called before Start.
func (m *Manager) SetPortal(p Portal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portal = p
}

// SetListener installs the connectivity callback. Must be called before
// Start.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// Init loads stored credentials and starts the driver event loop. Calling
// Init more than once is a no-op.
func (m *Manager) Init() error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.mu.Unlock()

	creds, err := m.store.GetCredentials()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load credentials: %w", err)
	}
	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()

	m.wg.Add(1)
	go m.eventLoop()
	return nil
}

// Start begins station association when provisioned credentials exist,
// otherwise goes straight to provisioning.
func (m *Manager) Start() error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	creds := m.creds
	m.mu.Unlock()

	if creds == nil || !creds.Provisioned {
		m.logger.Info("no stored credentials, starting provisioning")
		return m.startProvisioning()
	}
	return m.beginConnect(creds)
}

func (m *Manager) eventLoop() {
	defer m.wg.Done()
	for ev := range m.driver.Notifications() {
		switch ev.Kind {
		case EventGotIP:
			m.onGotIP(ev)
		case EventDisconnected:
			m.onDisconnected()
		}
	}
}

func (m *Manager) beginConnect(creds *store.Credentials) error {
	m.mu.Lock()
	m.state = StateConnecting
	m.mu.Unlock()

	m.logger.Info("connecting", "ssid", creds.SSID)
	if err := m.driver.Connect(creds.SSID, creds.Password); err != nil {
		return fmt.Errorf("connect to %s: %w", creds.SSID, err)
	}
	return nil
}

func (m *Manager) onGotIP(ev DriverEvent) {
	m.mu.Lock()
	m.state = StateConnected
	m.retryCount = 0
	l := m.listener
	m.mu.Unlock()

	m.logger.Info("got ip", "ip", ev.IP)
	if l != nil {
		l(true)
	}
}

func (m *Manager) onDisconnected() {
	m.mu.Lock()
	if m.state == StateProvisioning {
		// AP clients come and go while the portal is up.
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.retryCount++
	attempt := m.retryCount
	exhausted := attempt >= m.maxRetry
	creds := m.creds
	l := m.listener
	if !exhausted {
		m.state = StateConnecting
	}
	m.mu.Unlock()

	if l != nil {
		l(false)
	}

	if exhausted {
		m.logger.Warn("retries exhausted, falling back to provisioning", "attempts", attempt)
		m.escalate()
		return
	}

	m.logger.Warn("disconnected, retrying", "attempt", attempt, "max", m.maxRetry)
	if creds != nil {
		if err := m.driver.Connect(creds.SSID, creds.Password); err != nil {
			m.logger.Error("reconnect failed", "error", err)
		}
	}
}

// escalate clears stored credentials, leaves station mode and brings up the
// provisioning portal. Fresh credentials arrive via Provision.
func (m *Manager) escalate() {
	if err := m.store.ClearCredentials(); err != nil {
		m.logger.Error("failed to clear credentials", "error", err)
	}
	m.mu.Lock()
	m.creds = nil
	m.mu.Unlock()

	if err := m.driver.StopStation(); err != nil {
		m.logger.Error("failed to stop station mode", "error", err)
	}
	if err := m.startProvisioning(); err != nil {
		m.logger.Error("failed to start provisioning", "error", err)
	}
}

func (m *Manager) startProvisioning() error {
	m.mu.Lock()
	m.state = StateProvisioning
	m.retryCount = 0
	m.mu.Unlock()

	if err := m.driver.StartAccessPoint(m.apSSID); err != nil {
		return fmt.Errorf("start access point: %w", err)
	}
	if m.portal != nil {
		if err := m.portal.Start(); err != nil {
			return fmt.Errorf("start portal: %w", err)
		}
	}
	m.logger.Info("provisioning portal up", "ap_ssid", m.apSSID)
	return nil
}

// Provision persists new credentials and schedules a restart so the next
// boot associates with them. Called by the portal.
func (m *Manager) Provision(ssid, password string) error {
	if ssid == "" {
		return errors.New("empty ssid")
	}
	if err := m.store.SaveCredentials(ssid, password); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	m.mu.Lock()
	m.creds = &store.Credentials{SSID: ssid, Password: password, Provisioned: true}
	m.mu.Unlock()

	m.logger.Info("credentials saved, restarting", "ssid", ssid)
	m.scheduleRestart()
	return nil
}

// Disconnect requests a driver-level disconnect. The recorded state changes
// only when the resulting driver event arrives, keeping the event loop the
// single writer.
func (m *Manager) Disconnect() error {
	return m.driver.Disconnect()
}

// IPInfo returns the station address. Fails when not connected.
func (m *Manager) IPInfo() (*IPInfo, error) {
	if !m.IsConnected() {
		return nil, errors.New("not connected")
	}
	return m.driver.IPInfo()
}

// StopProvisioning tears down the access point and portal and returns the
// manager to idle. A no-op outside of provisioning.
func (m *Manager) StopProvisioning() error {
	m.mu.Lock()
	if m.state != StateProvisioning {
		m.mu.Unlock()
		return nil
	}
	m.state = StateIdle
	m.mu.Unlock()

	if m.portal != nil {
		if err := m.portal.Stop(); err != nil {
			m.logger.Warn("portal shutdown", "error", err)
		}
	}
	if err := m.driver.StopAccessPoint(); err != nil {
		return fmt.Errorf("stop access point: %w", err)
	}
	m.logger.Info("provisioning stopped")
	return nil
}

// ResetCredentials wipes the stored credentials and schedules a restart
// into provisioning mode.
func (m *Manager) ResetCredentials() error {
	if err := m.store.ClearCredentials(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	m.mu.Lock()
	m.creds = nil
	m.mu.Unlock()

	m.logger.Info("credentials cleared, restarting")
	m.scheduleRestart()
	return nil
}

func (m *Manager) scheduleRestart() {
	if m.restart == nil {
		return
	}
	time.AfterFunc(restartDelay, m.restart)
}

// State returns the current connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the station holds an address.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Scan lists visible networks.
func (m *Manager) Scan(ctx context.Context, max int) ([]ScanResult, error) {
	return m.driver.Scan(ctx, max)
}

// Status summarizes the connection for the portal.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		Connected:   m.state == StateConnected,
		Provisioned: m.creds != nil && m.creds.Provisioned,
	}
	if m.creds != nil {
		st.SSID = m.creds.SSID
	}
	m.mu.Unlock()

	if st.Connected {
		if info, err := m.driver.IPInfo(); err == nil {
			st.IP = info.IP
		}
		if rssi, err := m.driver.RSSI(); err == nil {
			st.RSSI = rssi
		}
	}
	return st
}

// Close stops the portal if it is up and releases the driver. The event
// loop exits when the driver closes its notification channel.
func (m *Manager) Close() error {
	m.mu.Lock()
	provisioning := m.state == StateProvisioning
	m.mu.Unlock()

	if provisioning && m.portal != nil {
		if err := m.portal.Stop(); err != nil {
			m.logger.Warn("portal shutdown", "error", err)
		}
	}
	err := m.driver.Close()
	m.wg.Wait()
	return err
}
