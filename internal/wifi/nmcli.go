package wifi

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	nmcliTimeout      = 10 * time.Second
	hotspotConnection = "provisioning-hotspot"
)

// NMCLIDriver drives the wireless interface through NetworkManager's nmcli
// tool. Connection state changes are picked up from `nmcli monitor` output
// and translated into driver events.
type NMCLIDriver struct {
	iface  string
	logger *slog.Logger

	events chan DriverEvent
	cancel context.CancelFunc

	mu      sync.Mutex
	monitor *exec.Cmd
}

func NewNMCLIDriver(iface string, logger *slog.Logger) (*NMCLIDriver, error) {
	if iface == "" {
		return nil, fmt.Errorf("wifi interface not configured")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &NMCLIDriver{
		iface:  iface,
		logger: logger.With("component", "nmcli"),
		events: make(chan DriverEvent, 16),
		cancel: cancel,
	}
	if err := d.startMonitor(ctx); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

func (d *NMCLIDriver) startMonitor(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "nmcli", "monitor")
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("nmcli monitor pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start nmcli monitor: %w", err)
	}
	d.mu.Lock()
	d.monitor = cmd
	d.mu.Unlock()

	go func() {
		defer close(d.events)
		scanner := bufio.NewScanner(out)
		for scanner.Scan() {
			d.handleMonitorLine(strings.TrimSpace(scanner.Text()))
		}
		cmd.Wait()
	}()
	return nil
}

// handleMonitorLine parses nmcli monitor output. Relevant lines look like
//
//	wlan0: connected
//	wlan0: disconnected
//	wlan0: connection failed
func (d *NMCLIDriver) handleMonitorLine(line string) {
	prefix := d.iface + ":"
	if !strings.HasPrefix(line, prefix) {
		return
	}
	event := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	switch {
	case event == "connected":
		info, err := d.IPInfo()
		ip := ""
		if err == nil {
			ip = info.IP
		}
		d.emit(DriverEvent{Kind: EventGotIP, IP: ip})
	case event == "disconnected", strings.HasPrefix(event, "connection failed"):
		d.emit(DriverEvent{Kind: EventDisconnected})
	}
}

func (d *NMCLIDriver) emit(ev DriverEvent) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warn("dropping driver event, queue full", "event", ev.Kind)
	}
}

func (d *NMCLIDriver) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), nmcliTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "nmcli", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("nmcli %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Connect asks NetworkManager to associate. The command itself blocks until
// the association settles, so it runs in the background; the outcome
// arrives through the monitor as got_ip or a failure event.
func (d *NMCLIDriver) Connect(ssid, password string) error {
	go func() {
		args := []string{"device", "wifi", "connect", ssid, "ifname", d.iface}
		if password != "" {
			args = append(args, "password", password)
		}
		if _, err := d.run(args...); err != nil {
			d.logger.Warn("association failed", "ssid", ssid, "error", err)
			d.emit(DriverEvent{Kind: EventDisconnected})
		}
	}()
	return nil
}

func (d *NMCLIDriver) Disconnect() error {
	_, err := d.run("device", "disconnect", d.iface)
	return err
}

func (d *NMCLIDriver) StopStation() error {
	// NetworkManager has no separate station teardown; dropping the device
	// association is equivalent.
	return d.Disconnect()
}

func (d *NMCLIDriver) StartAccessPoint(ssid string) error {
	_, err := d.run("device", "wifi", "hotspot",
		"ifname", d.iface, "con-name", hotspotConnection, "ssid", ssid)
	return err
}

func (d *NMCLIDriver) StopAccessPoint() error {
	_, err := d.run("connection", "down", hotspotConnection)
	return err
}

// Scan lists visible networks, strongest first, at most max entries.
func (d *NMCLIDriver) Scan(ctx context.Context, max int) ([]ScanResult, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, nmcliTimeout)
	defer cancel()
	out, err := exec.CommandContext(cmdCtx, "nmcli", "-t", "-f", "SSID,SIGNAL,SECURITY",
		"device", "wifi", "list", "ifname", d.iface, "--rescan", "yes").Output()
	if err != nil {
		return nil, fmt.Errorf("nmcli scan: %w", err)
	}

	var results []ScanResult
	seen := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		r, ok := parseScanLine(line)
		if !ok || seen[r.SSID] {
			continue
		}
		seen[r.SSID] = true
		results = append(results, r)
		if max > 0 && len(results) >= max {
			break
		}
	}
	return results, nil
}

// parseScanLine parses one terse-mode scan row (SSID:SIGNAL:SECURITY).
// Signal is a 0-100 percentage; it is mapped to an approximate dBm value.
func parseScanLine(line string) (ScanResult, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return ScanResult{}, false
	}
	parts := strings.SplitN(line, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return ScanResult{}, false
	}
	signal, err := strconv.Atoi(parts[1])
	if err != nil {
		return ScanResult{}, false
	}
	auth := strings.ToLower(parts[2])
	if auth == "" || auth == "--" {
		auth = "open"
	}
	return ScanResult{
		SSID: parts[0],
		RSSI: signalToDBM(signal),
		Auth: auth,
	}, true
}

// signalToDBM inverts NetworkManager's percentage mapping (0% = -100 dBm,
// 100% = -50 dBm).
func signalToDBM(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return -100 + percent/2
}

func (d *NMCLIDriver) IPInfo() (*IPInfo, error) {
	out, err := d.run("-t", "-f", "IP4.ADDRESS,IP4.GATEWAY", "device", "show", d.iface)
	if err != nil {
		return nil, err
	}
	info := &IPInfo{}
	for _, line := range strings.Split(out, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(key, "IP4.ADDRESS"):
			// Strip the prefix length (192.168.1.20/24).
			if addr, _, found := strings.Cut(val, "/"); found {
				info.IP = addr
			} else {
				info.IP = val
			}
		case key == "IP4.GATEWAY":
			info.Gateway = val
		}
	}
	if info.IP == "" {
		return nil, fmt.Errorf("interface %s has no address", d.iface)
	}
	return info, nil
}

// RSSI reports the signal strength of the in-use network.
func (d *NMCLIDriver) RSSI() (int, error) {
	out, err := d.run("-t", "-f", "IN-USE,SIGNAL", "device", "wifi", "list", "ifname", d.iface)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(out, "\n") {
		inUse, signalField, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || inUse != "*" {
			continue
		}
		signal, err := strconv.Atoi(signalField)
		if err != nil {
			return 0, fmt.Errorf("bad signal value %q", signalField)
		}
		return signalToDBM(signal), nil
	}
	return 0, fmt.Errorf("no network in use on %s", d.iface)
}

func (d *NMCLIDriver) Notifications() <-chan DriverEvent { return d.events }

func (d *NMCLIDriver) Close() error {
	d.cancel()
	return nil
}
