package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"wifi-go-home/internal/device"
	"wifi-go-home/internal/sensor"
)

// Field limits on the command envelope. Longer values are truncated, not
// rejected, so a sloppy client still gets its ack correlated.
const (
	maxCmdIDLen   = 7
	maxCommandLen = 31
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var errMissingField = errors.New("missing required field")

// Command is a parsed command envelope.
type Command struct {
	ID     string
	Name   string
	Params map[string]json.RawMessage
}

// parseCommand decodes a command envelope. Both id and command are
// required; params is optional. Oversized id/command values are truncated
// to their field limits.
func parseCommand(payload []byte) (Command, error) {
	var raw struct {
		ID      *string                    `json:"id"`
		Command *string                    `json:"command"`
		Params  map[string]json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if raw.ID == nil || *raw.ID == "" {
		return Command{}, fmt.Errorf("%w: id", errMissingField)
	}
	if raw.Command == nil || *raw.Command == "" {
		return Command{}, fmt.Errorf("%w: command", errMissingField)
	}
	return Command{
		ID:     truncate(*raw.ID, maxCmdIDLen),
		Name:   truncate(*raw.Command, maxCommandLen),
		Params: raw.Params,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// paramInt extracts an integer parameter, falling back to def when the key
// is absent or not a number. Commands never fail on bad parameter types.
func paramInt(params map[string]json.RawMessage, key string, def int) int {
	raw, ok := params[key]
	if !ok {
		return def
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return def
	}
	return n
}

// paramInt64 is paramInt for 64-bit values (timestamps).
func paramInt64(params map[string]json.RawMessage, key string, def int64) int64 {
	raw, ok := params[key]
	if !ok {
		return def
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return def
	}
	return n
}

// paramString extracts a string parameter with the same fallback rules.
func paramString(params map[string]json.RawMessage, key, def string) string {
	raw, ok := params[key]
	if !ok {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return def
	}
	return s
}

// Info is the retained device description. Empty string fields are left
// out of the payload entirely.
type Info struct {
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
	SSID      string `json:"ssid,omitempty"`
	IP        string `json:"ip,omitempty"`
	Broker    string `json:"broker,omitempty"`
	Firmware  string `json:"firmware,omitempty"`
}

type dataPayload struct {
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Light       int     `json:"light"`
}

type statePayload struct {
	Timestamp int64 `json:"timestamp"`
	device.State
}

type responsePayload struct {
	CmdID  string `json:"cmd_id"`
	Status string `json:"status"`
}

// buildData serializes one telemetry sample. Temperature and humidity are
// rounded half-up to two decimals.
func buildData(ts int64, r sensor.Reading) ([]byte, error) {
	return json.Marshal(dataPayload{
		Timestamp:   ts,
		Temperature: round2(r.Temperature),
		Humidity:    round2(r.Humidity),
		Light:       r.Light,
	})
}

func round2(v float32) float64 {
	return math.Round(float64(v)*100) / 100
}

func buildState(ts int64, s device.State) ([]byte, error) {
	return json.Marshal(statePayload{Timestamp: ts, State: s})
}

func buildInfo(info Info) ([]byte, error) {
	return json.Marshal(info)
}

func buildResponse(cmdID, status string) ([]byte, error) {
	return json.Marshal(responsePayload{CmdID: cmdID, Status: status})
}
