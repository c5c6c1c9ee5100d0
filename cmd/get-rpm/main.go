// Command get-rpm samples the fan tachometer for a fixed window and prints the
// measured speed in RPM.
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
	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/logger"
	"rp-fancontrol/internal/tacho"
)

var openSourceFn = tacho.Open

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	cfg    config.Config
	repeat int
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("get-rpm", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath string
		delayMS    int
		gpio       int
		chip       string
		backend    string
		ppr        int
		repeat     int
		logLevel   string
	)
	fs.StringVar(&configPath, "config", "", "Path to YAML config (tacho section)")
	fs.IntVar(&delayMS, "delay", 1000, "Sampling window in milliseconds, a whole number of seconds")
	fs.IntVar(&delayMS, "d", 1000, "Shorthand for -delay")
	fs.IntVar(&gpio, "gpio-tacho", 23, "GPIO line the tachometer is connected to")
	fs.IntVar(&gpio, "g", 23, "Shorthand for -gpio-tacho")
	fs.StringVar(&chip, "chip", tacho.DefaultChip, "GPIO character device (cdev backend)")
	fs.StringVar(&backend, "backend", tacho.BackendCdev, "Edge source: cdev or periph")
	fs.IntVar(&ppr, "ppr", 2, "Tachometer pulses per revolution")
	fs.IntVar(&repeat, "repeat", 1, "Number of consecutive windows to report, 0 for until interrupted")
	fs.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("%w: %v", faults.ErrConfiguration, err)
	}

	cfg := config.Default()
	cfg.LogLevel = logLevel
	if configPath != "" {
		var err error
		if cfg, err = config.LoadOver(configPath, cfg); err != nil {
			return options{}, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "delay", "d":
			cfg.Tacho.Delay = time.Duration(delayMS) * time.Millisecond
		case "gpio-tacho", "g":
			cfg.Tacho.GPIO = gpio
		case "chip":
			cfg.Tacho.Chip = chip
		case "backend":
			cfg.Tacho.Backend = backend
		case "ppr":
			cfg.Tacho.PulsesPerRevolution = ppr
		case "log-level":
			cfg.LogLevel = logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return options{}, err
	}
	if repeat < 0 {
		return options{}, fmt.Errorf("%w: repeat must be >= 0", faults.ErrConfiguration)
	}
	return options{cfg: cfg, repeat: repeat}, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		logger.Errorf("get-rpm: %v", err)
		return faults.ExitCode(err)
	}
	level, _ := logger.ParseLevel(opts.cfg.LogLevel)
	logger.SetLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := measure(ctx, opts, stdout); err != nil {
		logger.Errorf("get-rpm: %v", err)
		return faults.ExitCode(err)
	}
	return faults.ExitOK
}

func measure(ctx context.Context, opts options, stdout io.Writer) error {
	tc := opts.cfg.Tacho
	counter, err := tacho.NewCounter(opts.cfg.TachoHardware())
	if err != nil {
		return err
	}
	src, err := openSourceFn(tc.Backend, tc.Chip, tc.GPIO)
	if err != nil {
		return err
	}
	defer src.Close()

	logger.Debugf("sampling gpio %d via %s for %s", tc.GPIO, tc.Backend, tc.Delay)
	counter.Reset()
	for i := 0; opts.repeat == 0 || i < opts.repeat; i++ {
		rpm, err := tacho.Sample(ctx, src, counter, tc.Delay, tacho.DefaultPollInterval)
		if err != nil {
			if ctx.Err() != nil && i > 0 {
				return nil
			}
			return err
		}
		fmt.Fprintln(stdout, rpm)
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}
