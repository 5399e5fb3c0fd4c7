package sensor

import (
	"bufio"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// SerialSource reads line-oriented frames from a UART-attached sensor board.
// Each frame looks like:
//
//	T=25.43 H=60.10 L=312
//
// Malformed lines are skipped; Read blocks until a complete frame arrives.
type SerialSource struct {
	port    serial.Port
	scanner *bufio.Scanner
	logger  *slog.Logger
}

func NewSerialSource(device string, baudRate int, logger *slog.Logger) (*SerialSource, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return &SerialSource{
		port:    port,
		scanner: bufio.NewScanner(port),
		logger:  logger.With("component", "sensor"),
	}, nil
}

func (s *SerialSource) Read() (Reading, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		r, err := parseFrame(line)
		if err != nil {
			s.logger.Warn("skipping malformed sensor frame", "line", line, "error", err)
			continue
		}
		return r, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Reading{}, fmt.Errorf("serial read: %w", err)
	}
	return Reading{}, fmt.Errorf("serial port closed")
}

func (s *SerialSource) Close() error {
	return s.port.Close()
}

func parseFrame(line string) (Reading, error) {
	var r Reading
	var haveT, haveH, haveL bool

	for _, field := range strings.Fields(line) {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			return Reading{}, fmt.Errorf("bad field %q", field)
		}
		switch key {
		case "T":
			f, err := strconv.ParseFloat(val, 32)
			if err != nil {
				return Reading{}, fmt.Errorf("bad temperature %q", val)
			}
			r.Temperature = float32(f)
			haveT = true
		case "H":
			f, err := strconv.ParseFloat(val, 32)
			if err != nil {
				return Reading{}, fmt.Errorf("bad humidity %q", val)
			}
			r.Humidity = float32(f)
			haveH = true
		case "L":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Reading{}, fmt.Errorf("bad light %q", val)
			}
			r.Light = n
			haveL = true
		default:
			return Reading{}, fmt.Errorf("unknown field %q", key)
		}
	}
	if !haveT || !haveH || !haveL {
		return Reading{}, fmt.Errorf("incomplete frame")
	}
	return r, nil
}
