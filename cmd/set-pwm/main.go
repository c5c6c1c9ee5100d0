// Command set-pwm programs a fixed duty cycle and exits, leaving the fan
// running at that duty.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"rp-fancontrol/internal/fancontrol"
	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/logger"
	"rp-fancontrol/internal/units"
)

var openPWMFn = fancontrol.OpenPWM

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

type options struct {
	duty    units.DutyCycle
	backend string
	profile fancontrol.Profile
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("set-pwm", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		pwm      float64
		channel  int
		backend  string
		polarity string
		freq     int
	)
	fs.Float64Var(&pwm, "pwm", -1, "Duty cycle in [0, 1] (required)")
	fs.Float64Var(&pwm, "p", -1, "Shorthand for -pwm")
	fs.IntVar(&channel, "pwm-channel", fancontrol.DefaultChannel, "PWM channel: 0=GPIO12 1=GPIO13 2=GPIO18 3=GPIO19")
	fs.StringVar(&backend, "backend", fancontrol.BackendSysfs, "PWM backend: sysfs, periph or gpio")
	fs.StringVar(&polarity, "polarity", string(fancontrol.PolarityNormal), "PWM polarity: normal or inversed")
	fs.IntVar(&freq, "frequency", fancontrol.NoctuaFrequencyHz, "PWM frequency in Hz")

	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("%w: %v", faults.ErrConfiguration, err)
	}

	duty, err := units.NewDutyCycle(pwm)
	if err != nil {
		return options{}, fmt.Errorf("-pwm: %w", err)
	}
	if !fancontrol.ValidBackend(backend) {
		return options{}, fmt.Errorf("%w: unknown pwm backend %q", faults.ErrConfiguration, backend)
	}
	p := fancontrol.NoctuaFan(channel)
	p.Polarity = fancontrol.Polarity(polarity)
	p.FrequencyHz = freq
	if err := p.Validate(); err != nil {
		return options{}, err
	}
	return options{duty: duty, backend: backend, profile: p}, nil
}

func run(args []string, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		logger.Errorf("set-pwm: %v", err)
		return faults.ExitCode(err)
	}

	sink, err := openPWMFn(opts.backend, opts.profile)
	if err != nil {
		logger.Errorf("set-pwm: %v", err)
		return faults.ExitCode(err)
	}
	defer sink.Close()

	if err := sink.SetFrequencyHz(opts.profile.FrequencyHz); err != nil {
		logger.Errorf("set-pwm: set frequency: %v", err)
		return faults.ExitRuntime
	}
	if err := sink.SetDuty(opts.duty); err != nil {
		logger.Errorf("set-pwm: set duty: %v", err)
		return faults.ExitRuntime
	}
	logger.Infof("pwm%d duty set to %s", opts.profile.Channel, opts.duty)
	return faults.ExitOK
}
