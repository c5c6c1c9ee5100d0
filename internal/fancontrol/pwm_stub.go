//go:build !linux

package fancontrol

import "fmt"

// Stub implementations for non-Linux platforms.
func openSysfs(p Profile) (PWMSink, error) {
	return nil, fmt.Errorf("sysfs pwm unsupported on this platform")
}

func openPeriph(p Profile) (PWMSink, error) {
	return nil, fmt.Errorf("periph pwm unsupported on this platform")
}

func openGPIO(p Profile) (PWMSink, error) {
	return nil, fmt.Errorf("gpio unsupported on this platform")
}
