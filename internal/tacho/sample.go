package tacho

import (
	"context"
	"fmt"
	"time"

	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/units"
)

// DefaultPollInterval bounds each wait for an edge so the sampling deadline
// is re-checked regularly.
const DefaultPollInterval = 10 * time.Millisecond

// EdgeSource delivers tachometer edges.
//
// WaitForEdge blocks for at most timeout and returns the number of edges
// observed, zero meaning the poll timed out.
type EdgeSource interface {
	WaitForEdge(timeout time.Duration) (int, error)
	Close() error
}

var sinceFn = time.Since

// Sample counts edges from src for window and returns the resulting speed.
// A poll timeout is not an error; a failing source is a hardware error.
// Cancelling ctx ends the window early.
func Sample(ctx context.Context, src EdgeSource, c *Counter, window, poll time.Duration) (units.RPM, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	start := time.Now()
	for sinceFn(start) < window {
		if err := ctx.Err(); err != nil {
			break
		}
		n, err := src.WaitForEdge(poll)
		if err != nil {
			return 0, fmt.Errorf("%w: tacho: wait for edge: %v", faults.ErrHardware, err)
		}
		for i := 0; i < n; i++ {
			c.HandleInterrupt()
		}
	}
	return c.RPM()
}
