// Package units holds the value types passed between the temperature source,
// the curve and the PWM sink.
package units

import (
	"fmt"
	"math"

	"rp-fancontrol/internal/faults"
)

// Celsius is a temperature in degrees Celsius.
type Celsius float64

func (c Celsius) String() string {
	return fmt.Sprintf("%.1f°C", float64(c))
}

// FromMilliCelsius converts the integer reported by the Linux thermal
// subsystem (e.g. 52345) into degrees.
func FromMilliCelsius(m int64) Celsius {
	return Celsius(float64(m) / 1000.0)
}

// DutyCycle is the fraction of each PWM period the output is held high.
// Values built through NewDutyCycle or SaturateDutyCycle are in [0, 1].
type DutyCycle float64

// ErrDutyOutOfRange is returned by NewDutyCycle.
var ErrDutyOutOfRange = fmt.Errorf("%w: duty cycle outside [0, 1]", faults.ErrConfiguration)

const (
	DutyOff  DutyCycle = 0
	DutyFull DutyCycle = 1
)

// NewDutyCycle validates v. It is used wherever a value comes from the user.
func NewDutyCycle(v float64) (DutyCycle, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("%w: %v", ErrDutyOutOfRange, v)
	}
	return DutyCycle(v), nil
}

// SaturateDutyCycle clamps v into [0, 1]. NaN maps to 0.
func SaturateDutyCycle(v float64) DutyCycle {
	switch {
	case math.IsNaN(v), v < 0:
		return DutyOff
	case v > 1:
		return DutyFull
	}
	return DutyCycle(v)
}

func (d DutyCycle) Fraction() float64 { return float64(d) }

// Percent returns the duty in 0..100.
func (d DutyCycle) Percent() float64 { return float64(d) * 100 }

func (d DutyCycle) String() string {
	return fmt.Sprintf("%g", float64(d))
}

// RPM is a rotational speed in revolutions per minute.
type RPM float64

func (r RPM) String() string {
	return fmt.Sprintf("%.0f", float64(r))
}
