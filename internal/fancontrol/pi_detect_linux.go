//go:build linux

package fancontrol

import (
	"os"
	"strings"
)

// modelPaths are the device-tree model files, in order of preference.
var modelPaths = []string{
	"/sys/firmware/devicetree/base/model",
	"/proc/device-tree/model",
}

func boardModel() string {
	for _, p := range modelPaths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		return strings.Trim(strings.TrimSpace(string(b)), "\x00")
	}
	return ""
}

// isRaspberryPi5 decides the PWM channel layout: the Pi 5 exposes four
// independent channels, older boards two.
func isRaspberryPi5() bool {
	return strings.Contains(boardModel(), "Raspberry Pi 5")
}
