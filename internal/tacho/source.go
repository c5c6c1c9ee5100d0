package tacho

import (
	"fmt"

	"rp-fancontrol/internal/faults"
)

// Edge source backends.
const (
	BackendCdev   = "cdev"
	BackendPeriph = "periph"
)

// DefaultChip is the GPIO character device carrying the 40-pin header lines.
const DefaultChip = "gpiochip0"

var (
	openCdevFn   = openCdev
	openPeriphFn = openPeriph
)

// Open returns an edge source for the given backend. Open failures are
// hardware errors; an unknown backend is a configuration error.
func Open(backend, chip string, gpio int) (EdgeSource, error) {
	if gpio < 0 {
		return nil, fmt.Errorf("%w: invalid tacho gpio %d", faults.ErrConfiguration, gpio)
	}
	var (
		src EdgeSource
		err error
	)
	switch backend {
	case BackendCdev, "":
		if chip == "" {
			chip = DefaultChip
		}
		src, err = openCdevFn(chip, gpio)
	case BackendPeriph:
		src, err = openPeriphFn(gpio)
	default:
		return nil, fmt.Errorf("%w: unknown tacho backend %q (want %s or %s)", faults.ErrConfiguration, backend, BackendCdev, BackendPeriph)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: tacho: %v", faults.ErrHardware, err)
	}
	return src, nil
}
