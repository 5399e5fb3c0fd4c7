package sensor

import (
	"sync"
	"time"
)

// Reading is a single environmental sample. Temperature in degrees Celsius,
// humidity in percent, light level in raw ADC units.
type Reading struct {
	Temperature float32
	Humidity    float32
	Light       int
}

// Source produces sensor readings. Read blocks until a sample is available
// or fails if the underlying hardware is unreachable.
type Source interface {
	Read() (Reading, error)
	Close() error
}

// Cache holds the latest known reading so publishers never block on the
// sensor hardware.
type Cache struct {
	mu      sync.Mutex
	reading Reading
	at      time.Time
	valid   bool
}

func NewCache() *Cache {
	return &Cache{}
}

// Update stores a fresh reading.
func (c *Cache) Update(r Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reading = r
	c.at = time.Now()
	c.valid = true
}

// Latest returns the most recent reading and whether one has ever been stored.
func (c *Cache) Latest() (Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reading, c.valid
}

// Age reports how long ago the cached reading was taken. Returns false if
// nothing has been cached yet.
func (c *Cache) Age() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return 0, false
	}
	return time.Since(c.at), true
}
