package fancontrol

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/units"
)

// DefaultTempFile is where Raspberry Pi OS exposes the SoC temperature.
const DefaultTempFile = "/sys/class/thermal/thermal_zone0/temp"

// TemperatureSource yields one temperature sample per call.
type TemperatureSource interface {
	ReadTemperature() (units.Celsius, error)
}

// TempFile reads a Linux thermal zone file holding millidegrees Celsius.
type TempFile struct {
	Path string
}

func (f TempFile) ReadTemperature() (units.Celsius, error) {
	path := f.Path
	if path == "" {
		path = DefaultTempFile
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: read cpu temp: %v", faults.ErrSensor, err)
	}
	return parseMilliCelsius(string(b))
}

func parseMilliCelsius(s string) (units.Celsius, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: cpu temp empty", faults.ErrSensor)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse cpu temp %q: %v", faults.ErrSensor, s, err)
	}
	return units.FromMilliCelsius(n), nil
}
