package tacho

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/units"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCounter(t *testing.T, ppr uint8) (*Counter, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := NewCounter(HardwareConfig{PulsesPerRevolution: ppr, GPIO: 23})
	require.NoError(t, err)
	c.now = clk.Now
	c.start = clk.Now()
	return c, clk
}

func TestCounter_RPM(t *testing.T) {
	c, clk := newTestCounter(t, 2)
	for i := 0; i < 120; i++ {
		c.HandleInterrupt()
	}
	require.Equal(t, uint64(120), c.Count())

	// 2.7s truncates to a 2s window.
	clk.Advance(2700 * time.Millisecond)
	rpm, err := c.RPM()
	require.NoError(t, err)
	assert.Equal(t, units.RPM(1800), rpm)
	assert.Equal(t, uint64(0), c.Count())
}

func TestCounter_RPMResetsWindow(t *testing.T) {
	c, clk := newTestCounter(t, 2)
	for i := 0; i < 40; i++ {
		c.HandleInterrupt()
	}
	clk.Advance(time.Second)
	_, err := c.RPM()
	require.NoError(t, err)

	// Immediate second query: the window restarted at the first call.
	_, err = c.RPM()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWindowTooShort))
	assert.True(t, errors.Is(err, faults.ErrTiming))

	// A full second later with no edges the fan reads as stopped.
	clk.Advance(time.Second)
	rpm, err := c.RPM()
	require.NoError(t, err)
	assert.Equal(t, units.RPM(0), rpm)
}

func TestCounter_ShortWindowKeepsEdges(t *testing.T) {
	c, clk := newTestCounter(t, 2)
	for i := 0; i < 30; i++ {
		c.HandleInterrupt()
	}
	clk.Advance(999 * time.Millisecond)
	_, err := c.RPM()
	require.ErrorIs(t, err, ErrWindowTooShort)
	assert.Equal(t, uint64(30), c.Count())

	clk.Advance(time.Millisecond)
	rpm, err := c.RPM()
	require.NoError(t, err)
	// 30 edges/s * 60 / 2
	assert.Equal(t, units.RPM(900), rpm)
}

func TestCounter_Reset(t *testing.T) {
	c, clk := newTestCounter(t, 4)
	c.HandleInterrupt()
	clk.Advance(5 * time.Second)
	c.Reset()
	assert.Equal(t, uint64(0), c.Count())
	_, err := c.RPM()
	assert.ErrorIs(t, err, ErrWindowTooShort)
}

func TestCounter_ConcurrentEdgesNotLost(t *testing.T) {
	c, clk := newTestCounter(t, 1)

	const writers, perWriter = 8, 5000
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				c.HandleInterrupt()
			}
		}()
	}

	var total float64
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		clk.Advance(time.Second)
		rpm, err := c.RPM()
		require.NoError(t, err)
		// 1s windows at 1 pulse/rev: rpm = edges * 60.
		total += float64(rpm) / 60
	}
	assert.Equal(t, float64(writers*perWriter), total)
}

func TestNewCounter_RejectsZeroPulses(t *testing.T) {
	_, err := NewCounter(HardwareConfig{PulsesPerRevolution: 0, GPIO: 23})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrConfiguration)
}

func TestNoctuaTacho(t *testing.T) {
	cfg := NoctuaTacho(23)
	assert.Equal(t, uint8(2), cfg.PulsesPerRevolution)
	assert.Equal(t, 23, cfg.GPIO)
}
