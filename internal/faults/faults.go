// Package faults defines the error kinds shared by the fan controller.
//
// Domain errors wrap exactly one of the kinds below so callers can classify
// them with errors.Is regardless of which package produced them.
package faults

import "errors"

var (
	// ErrConfiguration covers invalid curves, duty values and hardware
	// selectors. Always fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrHardware covers GPIO and PWM programming failures.
	ErrHardware = errors.New("hardware error")
	// ErrSensor covers unreadable or unparsable temperature samples.
	ErrSensor = errors.New("sensor error")
	// ErrTiming covers RPM windows too short to measure.
	ErrTiming = errors.New("timing error")
)

// Exit codes used by the commands.
const (
	ExitOK            = 0
	ExitRuntime       = 1
	ExitConfiguration = 2
)

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	default:
		return ExitRuntime
	}
}

// Kind returns the short name of the error kind wrapped by err, or "unknown".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrHardware):
		return "hardware"
	case errors.Is(err, ErrSensor):
		return "sensor"
	case errors.Is(err, ErrTiming):
		return "timing"
	default:
		return "unknown"
	}
}
