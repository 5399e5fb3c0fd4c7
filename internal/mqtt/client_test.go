package mqtt

import (
	"io"
	"log/slog"
	"testing"

	"wifi-go-home/internal/device"
)

type recordedCall struct {
	method string
	cmdID  string
	args   []any
}

type recordingHandler struct {
	calls []recordedCall
}

func (h *recordingHandler) record(method, cmdID string, args ...any) {
	h.calls = append(h.calls, recordedCall{method: method, cmdID: cmdID, args: args})
}

func (h *recordingHandler) SetDevice(cmdID, name string, state int) {
	h.record("set_device", cmdID, name, state)
}

func (h *recordingHandler) SetDevices(cmdID string, fan, light, ac int) {
	h.record("set_devices", cmdID, fan, light, ac)
}

func (h *recordingHandler) SetMode(cmdID string, mode int) { h.record("set_mode", cmdID, mode) }

func (h *recordingHandler) SetInterval(cmdID string, sec int) { h.record("set_interval", cmdID, sec) }

func (h *recordingHandler) SetTimestamp(cmdID string, ts int64) {
	h.record("set_timestamp", cmdID, ts)
}

func (h *recordingHandler) GetStatus(cmdID string) { h.record("get_status", cmdID) }

func (h *recordingHandler) Ping(cmdID string) { h.record("ping", cmdID) }

func (h *recordingHandler) Reboot(cmdID string) { h.record("reboot", cmdID) }

func (h *recordingHandler) FactoryReset(cmdID string) { h.record("factory_reset", cmdID) }

func newTestClient(t *testing.T) (*Client, *recordingHandler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(Config{
		Broker:    "tcp://127.0.0.1:1883",
		DeviceID:  "esp0001",
		BaseTopic: "home/sensors",
		Responses: true,
	}, logger)
	h := &recordingHandler{}
	c.SetHandler(h)
	return c, h
}

func TestDispatchSetDevice(t *testing.T) {
	c, h := newTestClient(t)

	c.handleCommand([]byte(`{"id":"a1","command":"set_device","params":{"device":"fan","state":1}}`))

	if len(h.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(h.calls))
	}
	call := h.calls[0]
	if call.method != "set_device" || call.cmdID != "a1" {
		t.Errorf("call = %+v", call)
	}
	if call.args[0] != "fan" || call.args[1] != 1 {
		t.Errorf("args = %v, want [fan 1]", call.args)
	}
}

func TestDispatchSetDeviceDefaultState(t *testing.T) {
	c, h := newTestClient(t)

	// Missing state defaults to 0 (off).
	c.handleCommand([]byte(`{"id":"a2","command":"set_device","params":{"device":"light"}}`))

	if len(h.calls) != 1 || h.calls[0].args[1] != 0 {
		t.Fatalf("calls = %+v, want state 0", h.calls)
	}
}

func TestDispatchSetDevicesSentinels(t *testing.T) {
	c, h := newTestClient(t)

	// Only fan given; the others pass through as leave-unchanged.
	c.handleCommand([]byte(`{"id":"a3","command":"set_devices","params":{"fan":1}}`))

	if len(h.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(h.calls))
	}
	args := h.calls[0].args
	if args[0] != 1 || args[1] != device.Leave || args[2] != device.Leave {
		t.Errorf("args = %v, want [1 -1 -1]", args)
	}
}

func TestDispatchParameterless(t *testing.T) {
	c, h := newTestClient(t)

	for _, name := range []string{"get_status", "ping", "reboot", "factory_reset"} {
		c.handleCommand([]byte(`{"id":"x","command":"` + name + `"}`))
	}

	if len(h.calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(h.calls))
	}
	for i, name := range []string{"get_status", "ping", "reboot", "factory_reset"} {
		if h.calls[i].method != name {
			t.Errorf("call %d = %q, want %q", i, h.calls[i].method, name)
		}
	}
}

func TestDispatchSetTimestamp(t *testing.T) {
	c, h := newTestClient(t)

	c.handleCommand([]byte(`{"id":"t1","command":"set_timestamp","params":{"timestamp":1700000000}}`))

	if len(h.calls) != 1 || h.calls[0].args[0] != int64(1700000000) {
		t.Fatalf("calls = %+v, want timestamp 1700000000", h.calls)
	}
}

func TestDispatchDropsMalformedAndUnknown(t *testing.T) {
	c, h := newTestClient(t)

	c.handleCommand([]byte(`garbage`))
	c.handleCommand([]byte(`{"command":"ping"}`))
	c.handleCommand([]byte(`{"id":"u1","command":"self_destruct"}`))

	if len(h.calls) != 0 {
		t.Fatalf("calls = %+v, want none", h.calls)
	}
}

func TestDispatchCaseSensitive(t *testing.T) {
	c, h := newTestClient(t)

	c.handleCommand([]byte(`{"id":"c1","command":"PING"}`))

	if len(h.calls) != 0 {
		t.Fatalf("upper-case command dispatched: %+v", h.calls)
	}
}

func TestPublishResponseLegacyMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(Config{
		Broker:    "tcp://127.0.0.1:1883",
		DeviceID:  "esp0001",
		BaseTopic: "home/sensors",
		Responses: false,
	}, logger)

	// Legacy mode: no ack, no error, even while disconnected.
	if err := c.PublishResponse("a1", StatusSuccess); err != nil {
		t.Fatalf("legacy PublishResponse: %v", err)
	}
}

func TestPublishWhileDisconnected(t *testing.T) {
	c, _ := newTestClient(t)

	if err := c.PublishState(1700000000, device.State{}); err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}
