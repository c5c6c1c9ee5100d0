// Package tacho turns tachometer edge interrupts into a fan speed reading.
package tacho

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/units"
)

// ErrWindowTooShort is returned by RPM when less than one whole second has
// passed since the window started.
var ErrWindowTooShort = fmt.Errorf("%w: rpm window shorter than one second", faults.ErrTiming)

// HardwareConfig describes the tachometer wiring.
type HardwareConfig struct {
	PulsesPerRevolution uint8
	// GPIO is the BCM line offset the tacho output is connected to.
	GPIO int
}

// NoctuaTacho is the profile for Noctua PWM fans: two pulses per revolution.
func NoctuaTacho(gpio int) HardwareConfig {
	return HardwareConfig{PulsesPerRevolution: 2, GPIO: gpio}
}

// Counter accumulates edges for a single measurement window.
//
// HandleInterrupt may be called from any goroutine, including a GPIO event
// handler, while RPM is being computed: the count is swapped atomically so
// an edge lands either in the finished window or in the next one.
type Counter struct {
	cfg   HardwareConfig
	count atomic.Uint64

	mu    sync.Mutex
	start time.Time
	now   func() time.Time
}

func NewCounter(cfg HardwareConfig) (*Counter, error) {
	if cfg.PulsesPerRevolution == 0 {
		return nil, fmt.Errorf("%w: tacho pulses per revolution must be positive", faults.ErrConfiguration)
	}
	c := &Counter{cfg: cfg, now: time.Now}
	c.start = c.now()
	return c, nil
}

func (c *Counter) Config() HardwareConfig { return c.cfg }

// HandleInterrupt records one edge.
func (c *Counter) HandleInterrupt() {
	c.count.Add(1)
}

// Count returns the edges seen in the current window.
func (c *Counter) Count() uint64 {
	return c.count.Load()
}

// Reset discards the current window and starts a new one.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count.Store(0)
	c.start = c.now()
}

// RPM converts the edges counted since the window started into revolutions
// per minute and starts a new window.
//
// Elapsed time is truncated to whole seconds. If that leaves zero seconds
// ErrWindowTooShort is returned and the window keeps accumulating.
func (c *Counter) RPM() (units.RPM, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	secs := now.Sub(c.start).Truncate(time.Second).Seconds()
	if secs <= 0 {
		return 0, fmt.Errorf("%w (elapsed %s, %d edges pending)", ErrWindowTooShort, now.Sub(c.start), c.count.Load())
	}

	edges := c.count.Swap(0)
	c.start = now

	frequency := float64(edges) / secs
	return units.RPM(frequency * 60 / float64(c.cfg.PulsesPerRevolution)), nil
}
