//go:build linux

package tacho

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// periphSource polls the pin through periph's edge detection, one edge per
// wake-up.
type periphSource struct {
	pin gpio.PinIO
}

func openPeriph(bcm int) (EdgeSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	name := fmt.Sprintf("GPIO%d", bcm)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("periph: no pin %s", name)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("periph: configure %s: %w", name, err)
	}
	return &periphSource{pin: pin}, nil
}

func (s *periphSource) WaitForEdge(timeout time.Duration) (int, error) {
	if s.pin.WaitForEdge(timeout) {
		return 1, nil
	}
	return 0, nil
}

func (s *periphSource) Close() error {
	return s.pin.Halt()
}
