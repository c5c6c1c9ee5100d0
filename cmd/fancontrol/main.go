// Command fancontrol drives a PWM fan from the CPU temperature through a
// piecewise-linear curve.
//
//	fancontrol -temp 30 -pwm 0.2 -temp 50 -pwm 0.5 -temp 70 -pwm 1
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rp-fancontrol/internal/config"
	"rp-fancontrol/internal/curve"
	"rp-fancontrol/internal/fancontrol"
	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/logger"
	"rp-fancontrol/internal/units"
)

var openPWMFn = fancontrol.OpenPWM

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// options is the parsed command line: the merged configuration plus the
// curve it describes.
type options struct {
	cfg   config.Config
	curve *curve.Curve
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("fancontrol", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath string
		tempFile   string
		intervalMS int
		temps      floatList
		pwms       floatList
		channel    int
		backend    string
		onError    string
		spinup     time.Duration
		logLevel   string
	)
	fs.StringVar(&configPath, "config", "", "Path to YAML config")
	fs.StringVar(&tempFile, "temp-file", fancontrol.DefaultTempFile, "File from which to read the CPU temperature in millidegrees")
	fs.IntVar(&intervalMS, "interval", 5000, "Interval in milliseconds between two evaluations of the curve")
	fs.IntVar(&intervalMS, "i", 5000, "Shorthand for -interval")
	fs.Var(&temps, "temp", "Temperature point of the curve; repeat once per point, as many as -pwm")
	fs.Var(&temps, "t", "Shorthand for -temp")
	fs.Var(&pwms, "pwm", "Duty point (0..1) of the curve; repeat once per point, as many as -temp")
	fs.Var(&pwms, "p", "Shorthand for -pwm")
	fs.IntVar(&channel, "pwm-channel", fancontrol.DefaultChannel, "PWM channel: 0=GPIO12 1=GPIO13 2=GPIO18 3=GPIO19")
	fs.StringVar(&backend, "backend", fancontrol.BackendSysfs, "PWM backend: sysfs, periph or gpio")
	fs.StringVar(&onError, "on-error", string(fancontrol.OnErrorHold), "On sensor or PWM failure: exit, hold or full")
	fs.DurationVar(&spinup, "spinup", 0, "Run the fan at full duty for this long before regulating")
	fs.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("%w: %v", faults.ErrConfiguration, err)
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("%w: unexpected arguments %v", faults.ErrConfiguration, fs.Args())
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return options{}, err
		}
	}

	// Flags given explicitly override the file.
	curveFlags := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "temp-file":
			cfg.TempFile = tempFile
		case "interval", "i":
			cfg.Interval = time.Duration(intervalMS) * time.Millisecond
		case "temp", "t", "pwm", "p":
			curveFlags = true
		case "pwm-channel":
			cfg.PWM.Channel = channel
		case "backend":
			cfg.PWM.Backend = backend
		case "on-error":
			cfg.OnError = onError
		case "spinup":
			cfg.Spinup = spinup
		case "log-level":
			cfg.LogLevel = logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return options{}, err
	}

	var (
		cv  *curve.Curve
		err error
	)
	if curveFlags {
		celsius := make([]units.Celsius, len(temps))
		for i, v := range temps {
			celsius[i] = units.Celsius(v)
		}
		cv, err = curve.New(celsius, pwms)
	} else {
		cv, err = cfg.BuildCurve()
	}
	if err != nil {
		return options{}, err
	}
	return options{cfg: cfg, curve: cv}, nil
}

func run(args []string, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		logger.Errorf("fancontrol: %v", err)
		return faults.ExitCode(err)
	}
	level, _ := logger.ParseLevel(opts.cfg.LogLevel)
	logger.SetLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sink, err := openPWMFn(opts.cfg.PWM.Backend, opts.cfg.Profile())
	if err != nil {
		logger.Errorf("fancontrol: %v", err)
		return faults.ExitCode(err)
	}
	defer sink.Close()

	svc, err := fancontrol.New(opts.cfg.Service(opts.curve), fancontrol.TempFile{Path: opts.cfg.TempFile}, sink)
	if err != nil {
		logger.Errorf("fancontrol: %v", err)
		return faults.ExitCode(err)
	}
	if err := svc.Run(ctx); err != nil {
		logger.Errorf("%v", err)
		return faults.ExitCode(err)
	}
	logger.Infof("fancontrol stopping, fan left at duty %s", units.DutyCycle(svc.Snapshot().Duty))
	return faults.ExitOK
}
