//go:build !linux

package tacho

import "fmt"

func openCdev(chip string, offset int) (EdgeSource, error) {
	return nil, fmt.Errorf("gpio character device unsupported on this platform")
}

func openPeriph(bcm int) (EdgeSource, error) {
	return nil, fmt.Errorf("periph gpio unsupported on this platform")
}
