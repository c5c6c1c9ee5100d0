// Package curve maps a temperature to a fan duty cycle through a
// piecewise-linear curve of user supplied breakpoints.
package curve

import (
	"fmt"
	"math"
	"strings"

	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/units"
)

var (
	ErrLengthMismatch          = fmt.Errorf("%w: temperature and duty lists must be the same length", faults.ErrConfiguration)
	ErrEmptyCurve              = fmt.Errorf("%w: at least one temperature/duty point must be provided", faults.ErrConfiguration)
	ErrInvalidDutyValue        = fmt.Errorf("%w: duty value outside [0, 1]", faults.ErrConfiguration)
	ErrNonMonotonicTemperature = fmt.Errorf("%w: temperature points must be strictly increasing", faults.ErrConfiguration)
	ErrNonMonotonicDuty        = fmt.Errorf("%w: duty points must be non-decreasing", faults.ErrConfiguration)
)

// Point is one breakpoint of the curve.
type Point struct {
	Temp units.Celsius
	Duty units.DutyCycle
}

// Curve is immutable once built.
type Curve struct {
	points []Point
}

// New builds a curve from paired temperature and duty lists. The lists are
// expected in ascending temperature order; they are validated, not sorted.
func New(temps []units.Celsius, duties []float64) (*Curve, error) {
	if len(temps) != len(duties) {
		return nil, fmt.Errorf("%w: %d temperatures, %d duties", ErrLengthMismatch, len(temps), len(duties))
	}
	if len(temps) == 0 {
		return nil, ErrEmptyCurve
	}

	points := make([]Point, len(temps))
	for i := range temps {
		d, err := units.NewDutyCycle(duties[i])
		if err != nil {
			return nil, fmt.Errorf("%w: point %d has duty %v", ErrInvalidDutyValue, i, duties[i])
		}
		points[i] = Point{Temp: temps[i], Duty: d}
	}

	for i := 0; i+1 < len(points); i++ {
		p0, p1 := points[i], points[i+1]
		// Written as a negation so NaN temperatures are rejected too.
		if !(p0.Temp < p1.Temp) {
			return nil, fmt.Errorf("%w: %s !< %s", ErrNonMonotonicTemperature, p0.Temp, p1.Temp)
		}
		if p0.Duty > p1.Duty {
			return nil, fmt.Errorf("%w: %s !<= %s", ErrNonMonotonicDuty, p0.Duty, p1.Duty)
		}
	}
	return &Curve{points: points}, nil
}

// FromPoints is New for callers that already hold pairs.
func FromPoints(points []Point) (*Curve, error) {
	temps := make([]units.Celsius, len(points))
	duties := make([]float64, len(points))
	for i, p := range points {
		temps[i] = p.Temp
		duties[i] = float64(p.Duty)
	}
	return New(temps, duties)
}

// Evaluate returns the duty cycle for temp.
//
// Below the first breakpoint the first duty applies, above the last one the
// last duty applies. A temperature equal to a breakpoint yields exactly that
// breakpoint's duty. A NaN temperature matches no breakpoint and yields the
// last duty.
func (c *Curve) Evaluate(temp units.Celsius) units.DutyCycle {
	idx := -1
	for i, p := range c.points {
		if p.Temp >= temp {
			idx = i
			break
		}
	}

	switch {
	case idx < 0:
		return c.points[len(c.points)-1].Duty
	case idx == 0:
		return units.SaturateDutyCycle(float64(c.points[0].Duty))
	case c.points[idx].Temp == temp:
		return c.points[idx].Duty
	}

	p0, p1 := c.points[idx-1], c.points[idx]
	frac := float64(temp-p0.Temp) / float64(p1.Temp-p0.Temp)
	v := float64(p0.Duty) + float64(p1.Duty-p0.Duty)*frac
	if math.IsNaN(v) || math.IsInf(v, 0) {
		// Only reachable with breakpoints near the float64 limits.
		return p1.Duty
	}
	return units.SaturateDutyCycle(v)
}

// Points returns a copy of the breakpoints.
func (c *Curve) Points() []Point {
	out := make([]Point, len(c.points))
	copy(out, c.points)
	return out
}

func (c *Curve) Len() int { return len(c.points) }

func (c *Curve) String() string {
	var b strings.Builder
	for i, p := range c.points {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s=>%s", p.Temp, p.Duty)
	}
	return b.String()
}
