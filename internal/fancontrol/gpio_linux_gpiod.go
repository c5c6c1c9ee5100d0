//go:build linux

package fancontrol

import (
	"fmt"

	"github.com/warthog618/gpiod"

	"rp-fancontrol/internal/units"
)

// gpiodGPIO drives the channel's GPIO as a plain digital output for 2-wire
// fans switched by a transistor. Any duty > 0 turns the fan on.
type gpiodGPIO struct {
	line     *gpiod.Line
	inverted bool
}

func openGPIO(p Profile) (PWMSink, error) {
	chip := p.Chip
	if chip == "" {
		chip = "gpiochip0"
	}
	off := 0
	if p.Polarity == PolarityInversed {
		off = 1
	}
	line, err := gpiod.RequestLine(chip, p.GPIO(), gpiod.AsOutput(off), gpiod.WithConsumer("rp-fancontrol"))
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, p.GPIO(), err)
	}
	return &gpiodGPIO{line: line, inverted: p.Polarity == PolarityInversed}, nil
}

func (g *gpiodGPIO) SetFrequencyHz(hz int) error {
	// Digital on/off backend ignores PWM frequency.
	return nil
}

func (g *gpiodGPIO) SetDuty(duty units.DutyCycle) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("fancontrol: gpio driver not initialized")
	}
	on := duty > 0
	if g.inverted {
		on = !on
	}
	v := 0
	if on {
		v = 1
	}
	return g.line.SetValue(v)
}

// Close releases the line. What the pin does afterwards depends on the
// board's bias on the switching transistor.
func (g *gpiodGPIO) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	return err
}
