package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rp-fancontrol/internal/curve"
	"rp-fancontrol/internal/fancontrol"
	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/logger"
	"rp-fancontrol/internal/tacho"
	"rp-fancontrol/internal/units"
)

type Config struct {
	TempFile             string        `yaml:"temp_file"`
	Interval             time.Duration `yaml:"interval"`
	Curve                []PointConfig `yaml:"curve"`
	PWM                  PWMConfig     `yaml:"pwm"`
	Tacho                TachoConfig   `yaml:"tacho"`
	OnError              string        `yaml:"on_error"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
	Spinup               time.Duration `yaml:"spinup"`
	LogLevel             string        `yaml:"log_level"`
}

// PointConfig is one breakpoint of the temperature curve. Duty is a
// fraction in [0, 1].
type PointConfig struct {
	Temp float64 `yaml:"temp"`
	Duty float64 `yaml:"duty"`
}

type PWMConfig struct {
	Backend     string `yaml:"backend"`
	Channel     int    `yaml:"channel"`
	FrequencyHz int    `yaml:"frequency_hz"`
	Polarity    string `yaml:"polarity"`
	// Chip is only used by the gpio backend.
	Chip string `yaml:"chip"`
}

type TachoConfig struct {
	Backend             string        `yaml:"backend"`
	Chip                string        `yaml:"chip"`
	GPIO                int           `yaml:"gpio"`
	PulsesPerRevolution int           `yaml:"pulses_per_revolution"`
	Delay               time.Duration `yaml:"delay"`
}

// Default returns the settings used when neither the file nor the command
// line says otherwise. There is deliberately no default curve.
func Default() Config {
	return Config{
		TempFile: fancontrol.DefaultTempFile,
		Interval: fancontrol.DefaultInterval,
		PWM: PWMConfig{
			Backend:     fancontrol.BackendSysfs,
			Channel:     fancontrol.DefaultChannel,
			FrequencyHz: fancontrol.NoctuaFrequencyHz,
			Polarity:    string(fancontrol.PolarityNormal),
			Chip:        tacho.DefaultChip,
		},
		Tacho: TachoConfig{
			Backend:             tacho.BackendCdev,
			Chip:                tacho.DefaultChip,
			GPIO:                23,
			PulsesPerRevolution: 2,
			Delay:               time.Second,
		},
		OnError:              string(fancontrol.OnErrorHold),
		MaxConsecutiveErrors: fancontrol.DefaultMaxConsecutiveErrors,
		LogLevel:             "info",
	}
}

// Load reads a YAML file over Default and validates the result. The curve
// is validated separately by BuildCurve since command-line points may
// replace it.
func Load(path string) (Config, error) {
	return LoadOver(path, Default())
}

// LoadOver is Load with base in place of Default: fields absent from the file
// keep the value from base.
func LoadOver(path string, base Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", faults.ErrConfiguration, err)
	}

	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return Config{}, fmt.Errorf("%w: config contains invalid fields: %s", faults.ErrConfiguration, strings.Join(te.Errors, "; "))
		}
		return Config{}, fmt.Errorf("%w: %v", faults.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{faults.ErrConfiguration}, args...)...)
}

// Validate checks everything except the curve.
func (c Config) Validate() error {
	if c.TempFile == "" {
		return invalid("temp_file is required")
	}
	if c.Interval <= 0 {
		return invalid("interval must be > 0")
	}
	if !fancontrol.OnError(c.OnError).Valid() {
		return invalid("on_error must be one of exit, hold, full (got %q)", c.OnError)
	}
	if c.MaxConsecutiveErrors < 1 {
		return invalid("max_consecutive_errors must be >= 1")
	}
	if c.Spinup < 0 {
		return invalid("spinup must be >= 0")
	}
	if !fancontrol.ValidBackend(c.PWM.Backend) {
		return invalid("pwm.backend must be one of sysfs, periph, gpio (got %q)", c.PWM.Backend)
	}
	if err := c.Profile().Validate(); err != nil {
		return err
	}

	switch c.Tacho.Backend {
	case tacho.BackendCdev, tacho.BackendPeriph:
	default:
		return invalid("tacho.backend must be one of cdev, periph (got %q)", c.Tacho.Backend)
	}
	if c.Tacho.GPIO < 0 {
		return invalid("tacho.gpio must be >= 0")
	}
	if c.Tacho.PulsesPerRevolution < 1 || c.Tacho.PulsesPerRevolution > 255 {
		return invalid("tacho.pulses_per_revolution must be in 1..255")
	}
	// The counter measures in whole seconds.
	if c.Tacho.Delay < time.Second {
		return invalid("tacho.delay must be at least 1s")
	}
	if c.Tacho.Delay%time.Second != 0 {
		return invalid("tacho.delay must be a whole number of seconds (got %s)", c.Tacho.Delay)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level: %v", err)
	}
	return nil
}

// BuildCurve validates and builds the temperature curve.
func (c Config) BuildCurve() (*curve.Curve, error) {
	temps := make([]units.Celsius, len(c.Curve))
	duties := make([]float64, len(c.Curve))
	for i, p := range c.Curve {
		temps[i] = units.Celsius(p.Temp)
		duties[i] = p.Duty
	}
	return curve.New(temps, duties)
}

func (c Config) Profile() fancontrol.Profile {
	p := fancontrol.NoctuaFan(c.PWM.Channel)
	p.FrequencyHz = c.PWM.FrequencyHz
	p.Polarity = fancontrol.Polarity(c.PWM.Polarity)
	if c.PWM.Chip != "" {
		p.Chip = c.PWM.Chip
	}
	return p
}

func (c Config) TachoHardware() tacho.HardwareConfig {
	return tacho.HardwareConfig{
		PulsesPerRevolution: uint8(c.Tacho.PulsesPerRevolution),
		GPIO:                c.Tacho.GPIO,
	}
}

// Service returns the control loop settings for an already built curve.
func (c Config) Service(cv *curve.Curve) fancontrol.Config {
	return fancontrol.Config{
		Curve:                cv,
		Profile:              c.Profile(),
		Interval:             c.Interval,
		Spinup:               c.Spinup,
		OnError:              fancontrol.OnError(c.OnError),
		MaxConsecutiveErrors: c.MaxConsecutiveErrors,
	}
}
