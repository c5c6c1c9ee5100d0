package fancontrol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rp-fancontrol/internal/curve"
	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/logger"
	"rp-fancontrol/internal/units"
)

var afterFn = time.After

// OnError selects what a control cycle does after a sensor or PWM failure.
type OnError string

const (
	// OnErrorExit stops the loop on the first failure.
	OnErrorExit OnError = "exit"
	// OnErrorHold keeps the last programmed duty and retries next cycle.
	OnErrorHold OnError = "hold"
	// OnErrorFull drives the fan at full duty until a cycle succeeds.
	OnErrorFull OnError = "full"
)

func (o OnError) Valid() bool {
	switch o {
	case OnErrorExit, OnErrorHold, OnErrorFull:
		return true
	}
	return false
}

const (
	DefaultInterval             = 5 * time.Second
	DefaultMaxConsecutiveErrors = 5
)

type Config struct {
	Curve   *curve.Curve
	Profile Profile
	// Interval between two evaluations of the curve.
	Interval time.Duration
	// Spinup runs the fan at full duty for this long before the first
	// evaluation. Zero disables it.
	Spinup time.Duration
	OnError OnError
	// MaxConsecutiveErrors ends Run under the hold and full policies.
	MaxConsecutiveErrors int
}

type Snapshot struct {
	CPUValid bool
	CPUTempC float64

	// DutyValid is false until the first duty has been programmed.
	DutyValid bool
	Duty      float64
	Cycles    uint64

	ConsecutiveErrors int
	LastUpdateAt      time.Time
	LastError         string
}

// Service periodically maps the CPU temperature onto the fan duty.
type Service struct {
	cfg  Config
	temp TemperatureSource
	pwm  PWMSink

	mu   sync.RWMutex
	snap Snapshot
}

func New(cfg Config, temp TemperatureSource, pwm PWMSink) (*Service, error) {
	if cfg.Curve == nil {
		return nil, fmt.Errorf("%w: fancontrol: curve is required", faults.ErrConfiguration)
	}
	if temp == nil || pwm == nil {
		return nil, fmt.Errorf("fancontrol: temperature source and pwm sink are required")
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.OnError == "" {
		cfg.OnError = OnErrorHold
	}
	if !cfg.OnError.Valid() {
		return nil, fmt.Errorf("%w: fancontrol: unknown on_error policy %q", faults.ErrConfiguration, cfg.OnError)
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	return &Service{cfg: cfg, temp: temp, pwm: pwm}, nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.LastUpdateAt = time.Now().UTC()
}

// Run programs the PWM frequency and evaluates the curve immediately and then
// every Interval until ctx is cancelled (nil) or the error policy gives up.
func (s *Service) Run(ctx context.Context) error {
	if err := s.pwm.SetFrequencyHz(s.cfg.Profile.FrequencyHz); err != nil {
		return fmt.Errorf("%w: fancontrol: set pwm frequency: %v", faults.ErrHardware, err)
	}
	logger.Infof("fancontrol: %s fan on pwm%d at %d Hz, curve %s, interval %s, on_error=%s",
		s.cfg.Profile.Name, s.cfg.Profile.Channel, s.cfg.Profile.FrequencyHz, s.cfg.Curve, s.cfg.Interval, s.cfg.OnError)

	if s.cfg.Spinup > 0 {
		if err := s.setDuty(units.DutyFull); err != nil {
			return err
		}
		logger.Infof("fancontrol: spin-up at full duty for %s", s.cfg.Spinup)
		select {
		case <-afterFn(s.cfg.Spinup):
		case <-ctx.Done():
			return nil
		}
	}

	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		if err := s.handleCycle(s.cycle()); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// cycle runs one read-evaluate-program step.
func (s *Service) cycle() error {
	temp, err := s.temp.ReadTemperature()
	if err != nil {
		s.setState(func(sn *Snapshot) { sn.CPUValid = false })
		if !errors.Is(err, faults.ErrSensor) {
			err = fmt.Errorf("%w: %v", faults.ErrSensor, err)
		}
		return err
	}
	s.setState(func(sn *Snapshot) {
		sn.CPUValid = true
		sn.CPUTempC = float64(temp)
	})

	duty := s.cfg.Curve.Evaluate(temp)
	if err := s.setDuty(duty); err != nil {
		return err
	}
	logger.Infof("temp=%s setting pwm duty to %s", temp, duty)
	return nil
}

func (s *Service) setDuty(d units.DutyCycle) error {
	if err := s.pwm.SetDuty(d); err != nil {
		if !errors.Is(err, faults.ErrHardware) {
			err = fmt.Errorf("%w: %v", faults.ErrHardware, err)
		}
		return err
	}
	s.setState(func(sn *Snapshot) {
		sn.DutyValid = true
		sn.Duty = float64(d)
	})
	return nil
}

// handleCycle applies the error policy. A non-nil return ends Run.
func (s *Service) handleCycle(err error) error {
	if err == nil {
		s.setState(func(sn *Snapshot) {
			sn.Cycles++
			sn.ConsecutiveErrors = 0
			sn.LastError = ""
		})
		return nil
	}

	var (
		failures  int
		dutyValid bool
	)
	s.setState(func(sn *Snapshot) {
		sn.Cycles++
		sn.ConsecutiveErrors++
		sn.LastError = err.Error()
		failures = sn.ConsecutiveErrors
		dutyValid = sn.DutyValid
	})

	if s.cfg.OnError == OnErrorExit {
		return fmt.Errorf("fancontrol: %w", err)
	}
	if failures >= s.cfg.MaxConsecutiveErrors {
		return fmt.Errorf("fancontrol: giving up after %d consecutive failures: %w", failures, err)
	}

	policy := s.cfg.OnError
	if policy == OnErrorHold && !dutyValid {
		// Setting the frequency leaves the channel at duty 0; there is
		// nothing to hold yet.
		logger.Warnf("fancontrol: no duty programmed yet, failing safe")
		policy = OnErrorFull
	}

	switch policy {
	case OnErrorHold:
		logger.Warnf("fancontrol: %s error (%d/%d), holding duty %s: %v",
			faults.Kind(err), failures, s.cfg.MaxConsecutiveErrors, units.DutyCycle(s.Snapshot().Duty), err)
	case OnErrorFull:
		logger.Warnf("fancontrol: %s error (%d/%d), forcing full duty: %v",
			faults.Kind(err), failures, s.cfg.MaxConsecutiveErrors, err)
		if ferr := s.setDuty(units.DutyFull); ferr != nil {
			logger.Errorf("fancontrol: fail-safe duty failed: %v", ferr)
		}
	}
	return nil
}
