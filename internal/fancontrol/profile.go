package fancontrol

import (
	"fmt"

	"rp-fancontrol/internal/faults"
)

type Polarity string

const (
	PolarityNormal   Polarity = "normal"
	PolarityInversed Polarity = "inversed"
)

// NoctuaFrequencyHz is the PWM frequency required by the Noctua PWM
// specification white paper.
const NoctuaFrequencyHz = 25_000

// DefaultChannel is PWM2, which is routed to GPIO18 on a Pi 5.
const DefaultChannel = 2

// channelGPIO maps a PWM channel to its BCM GPIO on a Pi 5. Before the Pi 5
// PWM0 is available on GPIO12/GPIO18 and PWM1 on GPIO13/GPIO19.
var channelGPIO = [...]int{12, 13, 18, 19}

// Profile describes how a fan expects to be driven.
type Profile struct {
	Name        string
	FrequencyHz int
	Channel     int
	Polarity    Polarity
	// Chip is the GPIO character device used by the on/off backend.
	Chip string
}

// NoctuaFan is the profile for 4-pin Noctua fans on the given PWM channel.
func NoctuaFan(channel int) Profile {
	return Profile{
		Name:        "noctua",
		FrequencyHz: NoctuaFrequencyHz,
		Channel:     channel,
		Polarity:    PolarityNormal,
		Chip:        "gpiochip0",
	}
}

func (p Profile) Validate() error {
	if p.Channel < 0 || p.Channel >= len(channelGPIO) {
		return fmt.Errorf("%w: invalid pwm channel %d, must be one of [0, 1, 2, 3]", faults.ErrConfiguration, p.Channel)
	}
	if p.FrequencyHz <= 0 {
		return fmt.Errorf("%w: invalid pwm frequency %d", faults.ErrConfiguration, p.FrequencyHz)
	}
	switch p.Polarity {
	case PolarityNormal, PolarityInversed:
	default:
		return fmt.Errorf("%w: invalid pwm polarity %q", faults.ErrConfiguration, p.Polarity)
	}
	return nil
}

// GPIO returns the BCM GPIO carrying the profile's channel.
func (p Profile) GPIO() int {
	if p.Channel < 0 || p.Channel >= len(channelGPIO) {
		return -1
	}
	return channelGPIO[p.Channel]
}

// PeriodNS is the PWM period in nanoseconds (40000 at 25 kHz).
func (p Profile) PeriodNS() uint32 {
	if p.FrequencyHz <= 0 {
		return 0
	}
	return uint32(1_000_000_000 / p.FrequencyHz)
}
