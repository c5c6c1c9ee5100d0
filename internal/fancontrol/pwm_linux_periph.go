//go:build linux

package fancontrol

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"rp-fancontrol/internal/units"
)

// periphPWM drives the channel's GPIO through periph's hardware PWM support.
// periph programs frequency and duty together, so SetFrequencyHz only
// records the frequency used by the next SetDuty.
type periphPWM struct {
	pin      gpio.PinIO
	freq     physic.Frequency
	inverted bool
}

func openPeriph(p Profile) (PWMSink, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	name := fmt.Sprintf("GPIO%d", p.GPIO())
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("periph: no pin %s", name)
	}
	return &periphPWM{
		pin:      pin,
		freq:     physic.Frequency(p.FrequencyHz) * physic.Hertz,
		inverted: p.Polarity == PolarityInversed,
	}, nil
}

func (d *periphPWM) SetFrequencyHz(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("fancontrol: invalid frequency %d", hz)
	}
	d.freq = physic.Frequency(hz) * physic.Hertz
	return nil
}

func (d *periphPWM) SetDuty(duty units.DutyCycle) error {
	v := duty.Fraction()
	if d.inverted {
		v = 1 - v
	}
	if err := d.pin.PWM(gpio.Duty(math.Round(v*float64(gpio.DutyMax))), d.freq); err != nil {
		return fmt.Errorf("fancontrol: periph pwm %s: %w", d.pin, err)
	}
	return nil
}

// Close does not halt the pin; halting would stop the fan.
func (d *periphPWM) Close() error {
	return nil
}
