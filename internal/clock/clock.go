package clock

import (
	"sync"
	"time"
)

// Clock is the time source used for telemetry timestamps. The device clock
// can be set remotely, so it is modeled as an offset rather than reading the
// host clock directly.
type Clock interface {
	// Now returns the current unix timestamp in seconds.
	Now() int64
	// Set adjusts the clock so subsequent Now calls track the given timestamp.
	Set(ts int64)
}

// SystemClock derives its time from the host clock plus a settable offset.
// Setting the clock never touches the system time.
type SystemClock struct {
	mu     sync.Mutex
	offset int64
}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Unix() + c.offset
}

func (c *SystemClock) Set(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = ts - time.Now().Unix()
}
