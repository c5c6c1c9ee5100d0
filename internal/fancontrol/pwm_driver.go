package fancontrol

import (
	"fmt"

	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/units"
)

// PWMSink is the minimal interface fancontrol needs from a PWM/GPIO backend.
//
// Close releases the backend's handles but leaves the output at its last
// programmed duty; the fan keeps running after the process exits.
type PWMSink interface {
	SetFrequencyHz(hz int) error
	SetDuty(d units.DutyCycle) error
	Close() error
}

// PWM backends.
const (
	BackendSysfs  = "sysfs"
	BackendPeriph = "periph"
	BackendGPIO   = "gpio"
)

var (
	openSysfsFn  = openSysfs
	openPeriphFn = openPeriph
	openGPIOFn   = openGPIO
)

// ValidBackend reports whether name selects a PWM backend.
func ValidBackend(name string) bool {
	switch name {
	case BackendSysfs, BackendPeriph, BackendGPIO:
		return true
	}
	return false
}

// OpenPWM validates p and opens the named backend. Nothing is written to the
// hardware when p is invalid.
func OpenPWM(backend string, p Profile) (PWMSink, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var (
		sink PWMSink
		err  error
	)
	switch backend {
	case BackendSysfs, "":
		sink, err = openSysfsFn(p)
	case BackendPeriph:
		sink, err = openPeriphFn(p)
	case BackendGPIO:
		sink, err = openGPIOFn(p)
	default:
		return nil, fmt.Errorf("%w: unknown pwm backend %q", faults.ErrConfiguration, backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fancontrol: %v", faults.ErrHardware, err)
	}
	return sink, nil
}
