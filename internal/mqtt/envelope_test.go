package mqtt

import (
	"strings"
	"testing"

	"wifi-go-home/internal/device"
	"wifi-go-home/internal/sensor"
)

func TestParseCommand(t *testing.T) {
	cmd, err := parseCommand([]byte(`{"id":"a1","command":"set_device","params":{"device":"fan","state":1}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cmd.ID != "a1" {
		t.Errorf("id = %q, want a1", cmd.ID)
	}
	if cmd.Name != "set_device" {
		t.Errorf("command = %q, want set_device", cmd.Name)
	}
	if paramString(cmd.Params, "device", "") != "fan" {
		t.Error("device param lost")
	}
	if paramInt(cmd.Params, "state", -99) != 1 {
		t.Error("state param lost")
	}
}

func TestParseCommandWithoutParams(t *testing.T) {
	cmd, err := parseCommand([]byte(`{"id":"p1","command":"ping"}`))
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Name != "ping" {
		t.Errorf("command = %q, want ping", cmd.Name)
	}
	if paramInt(cmd.Params, "anything", 42) != 42 {
		t.Error("absent params must fall back to the default")
	}
}

func TestParseCommandRejectsMalformed(t *testing.T) {
	bad := []string{
		`not json at all`,
		`{"command":"ping"}`,
		`{"id":"a1"}`,
		`{"id":"","command":"ping"}`,
		`{"id":"a1","command":""}`,
	}
	for _, payload := range bad {
		if _, err := parseCommand([]byte(payload)); err == nil {
			t.Errorf("parseCommand(%q) succeeded, want error", payload)
		}
	}
}

func TestParseCommandTruncatesLongFields(t *testing.T) {
	longID := strings.Repeat("x", 20)
	longCmd := strings.Repeat("y", 50)
	cmd, err := parseCommand([]byte(`{"id":"` + longID + `","command":"` + longCmd + `"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cmd.ID) != maxCmdIDLen {
		t.Errorf("id length = %d, want %d", len(cmd.ID), maxCmdIDLen)
	}
	if len(cmd.Name) != maxCommandLen {
		t.Errorf("command length = %d, want %d", len(cmd.Name), maxCommandLen)
	}
}

func TestParamFallbacksOnWrongTypes(t *testing.T) {
	cmd, err := parseCommand([]byte(`{"id":"a1","command":"set_devices","params":{"fan":"high","light":1}}`))
	if err != nil {
		t.Fatal(err)
	}
	// Wrong type falls back, absent key falls back, valid value passes.
	if got := paramInt(cmd.Params, "fan", device.Leave); got != device.Leave {
		t.Errorf("fan = %d, want %d", got, device.Leave)
	}
	if got := paramInt(cmd.Params, "ac", device.Leave); got != device.Leave {
		t.Errorf("ac = %d, want %d", got, device.Leave)
	}
	if got := paramInt(cmd.Params, "light", device.Leave); got != 1 {
		t.Errorf("light = %d, want 1", got)
	}
}

func TestBuildDataRounding(t *testing.T) {
	payload, err := buildData(1700000000, sensor.Reading{
		Temperature: 25.555,
		Humidity:    60.014,
		Light:       300,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"timestamp":1700000000,"temperature":25.56,"humidity":60.01,"light":300}`
	if string(payload) != want {
		t.Errorf("payload = %s, want %s", payload, want)
	}
}

func TestBuildState(t *testing.T) {
	payload, err := buildState(1700000000, device.State{Mode: 1, IntervalSec: 30, Fan: 1, Light: 0, AC: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"timestamp":1700000000,"mode":1,"interval":30,"fan":1,"light":0,"ac":1}`
	if string(payload) != want {
		t.Errorf("payload = %s, want %s", payload, want)
	}
}

func TestBuildInfoOmitsEmptyFields(t *testing.T) {
	payload, err := buildInfo(Info{Timestamp: 1700000000, ID: "esp0001", Firmware: "1.2.0"})
	if err != nil {
		t.Fatal(err)
	}
	got := string(payload)
	want := `{"timestamp":1700000000,"id":"esp0001","firmware":"1.2.0"}`
	if got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
}

func TestBuildInfoFull(t *testing.T) {
	payload, err := buildInfo(Info{
		Timestamp: 1700000000,
		ID:        "esp0001",
		SSID:      "Home",
		IP:        "192.168.1.20",
		Broker:    "ssl://broker.local:8883",
		Firmware:  "1.2.0",
	})
	if err != nil {
		t.Fatal(err)
	}
	got := string(payload)
	for _, field := range []string{`"ssid":"Home"`, `"ip":"192.168.1.20"`, `"broker":"ssl://broker.local:8883"`} {
		if !strings.Contains(got, field) {
			t.Errorf("payload missing %s: %s", field, got)
		}
	}
}

func TestBuildResponse(t *testing.T) {
	payload, err := buildResponse("a1", StatusSuccess)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"cmd_id":"a1","status":"success"}`
	if string(payload) != want {
		t.Errorf("payload = %s, want %s", payload, want)
	}
}

func TestNewTopics(t *testing.T) {
	topics := NewTopics("home/sensors", "esp0001")
	if topics.Data != "home/sensors/esp0001/data" {
		t.Errorf("data topic = %q", topics.Data)
	}
	if topics.Command != "home/sensors/esp0001/command" {
		t.Errorf("command topic = %q", topics.Command)
	}
	if topics.Response != "home/sensors/esp0001/response" {
		t.Errorf("response topic = %q", topics.Response)
	}
}
