package fancontrol

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"rp-fancontrol/internal/curve"
	"rp-fancontrol/internal/faults"
	"rp-fancontrol/internal/units"
)

type fakeSink struct {
	mu      sync.Mutex
	freqs   []int
	duties  []units.DutyCycle
	dutyErr error
}

func (d *fakeSink) SetFrequencyHz(hz int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freqs = append(d.freqs, hz)
	return nil
}

func (d *fakeSink) SetDuty(duty units.DutyCycle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dutyErr != nil {
		return d.dutyErr
	}
	d.duties = append(d.duties, duty)
	return nil
}

func (d *fakeSink) Close() error { return nil }

func (d *fakeSink) Duties() []units.DutyCycle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]units.DutyCycle(nil), d.duties...)
}

// sample is one scripted temperature reading; err wins over temp.
type sample struct {
	temp units.Celsius
	err  error
}

// scriptedTemps replays samples, repeating the last one, and cancels the run
// once the last sample has been read.
type scriptedTemps struct {
	mu      sync.Mutex
	samples []sample
	reads   int
	cancel  context.CancelFunc
}

func (s *scriptedTemps) ReadTemperature() (units.Celsius, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	if i >= len(s.samples) {
		i = len(s.samples) - 1
	}
	s.reads++
	if s.reads >= len(s.samples) && s.cancel != nil {
		s.cancel()
	}
	return s.samples[i].temp, s.samples[i].err
}

var errSensor = errors.New("read /sys/class/thermal/thermal_zone0/temp: no such file")

func referenceCurve(t *testing.T) *curve.Curve {
	t.Helper()
	c, err := curve.New([]units.Celsius{30, 50, 70}, []float64{0.2, 0.5, 1.0})
	if err != nil {
		t.Fatalf("curve.New: %v", err)
	}
	return c
}

func runService(t *testing.T, cfg Config, samples []sample, sink *fakeSink) (*Service, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Curve == nil {
		cfg.Curve = referenceCurve(t)
	}
	if cfg.Profile == (Profile{}) {
		cfg.Profile = NoctuaFan(DefaultChannel)
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Millisecond
	}
	src := &scriptedTemps{samples: samples, cancel: cancel}
	svc, err := New(cfg, src, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	select {
	case err := <-done:
		return svc, err
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
	}
	return nil, nil
}

// requireDutyPrefix checks the first len(want) programmed duties. Cancellation
// may race one extra tick, so later entries are ignored.
func requireDutyPrefix(t *testing.T, got []units.DutyCycle, want ...float64) {
	t.Helper()
	if len(got) < len(want) {
		t.Fatalf("duties=%v want prefix %v", got, want)
	}
	for i, w := range want {
		if math.Abs(float64(got[i])-w) > 1e-9 {
			t.Fatalf("duties=%v want prefix %v", got, want)
		}
	}
}

func TestService_EvaluatesCurve(t *testing.T) {
	sink := &fakeSink{}
	svc, err := runService(t, Config{OnError: OnErrorExit}, []sample{{temp: 40}, {temp: 20}, {temp: 80}, {temp: 50}}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.freqs) != 1 || sink.freqs[0] != NoctuaFrequencyHz {
		t.Fatalf("freqs=%v want [25000]", sink.freqs)
	}
	requireDutyPrefix(t, sink.Duties(), 0.35, 0.2, 1.0, 0.5)

	snap := svc.Snapshot()
	if !snap.CPUValid || snap.Cycles < 4 || snap.LastError != "" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestService_ExitPolicyStopsOnSensorError(t *testing.T) {
	sink := &fakeSink{}
	_, err := runService(t, Config{OnError: OnErrorExit}, []sample{{err: errSensor}, {temp: 40}}, sink)
	if !errors.Is(err, faults.ErrSensor) {
		t.Fatalf("err=%v want sensor error", err)
	}
	if d := sink.Duties(); len(d) != 0 {
		t.Fatalf("duties=%v want none", d)
	}
}

func TestService_ExitPolicyStopsOnPWMError(t *testing.T) {
	sink := &fakeSink{dutyErr: errors.New("write duty_cycle: invalid argument")}
	_, err := runService(t, Config{OnError: OnErrorExit}, []sample{{temp: 40}}, sink)
	if !errors.Is(err, faults.ErrHardware) {
		t.Fatalf("err=%v want hardware error", err)
	}
}

func TestService_HoldPolicyKeepsLastDuty(t *testing.T) {
	sink := &fakeSink{}
	svc, err := runService(t, Config{OnError: OnErrorHold, MaxConsecutiveErrors: 3},
		[]sample{{temp: 40}, {err: errSensor}, {err: errSensor}, {temp: 50}}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	requireDutyPrefix(t, sink.Duties(), 0.35, 0.5)
	if snap := svc.Snapshot(); snap.ConsecutiveErrors != 0 {
		t.Fatalf("consecutive errors=%d want 0", snap.ConsecutiveErrors)
	}
}

func TestService_HoldPolicyFailsSafeBeforeFirstDuty(t *testing.T) {
	sink := &fakeSink{}
	svc, err := runService(t, Config{OnError: OnErrorHold},
		[]sample{{err: errSensor}, {temp: 40}}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	requireDutyPrefix(t, sink.Duties(), 1.0, 0.35)
	if snap := svc.Snapshot(); !snap.DutyValid {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestService_HoldPolicyGivesUp(t *testing.T) {
	sink := &fakeSink{}
	svc, err := runService(t, Config{OnError: OnErrorHold, MaxConsecutiveErrors: 2},
		[]sample{{temp: 40}, {err: errSensor}, {err: errSensor}, {err: errSensor}, {temp: 40}}, sink)
	if !errors.Is(err, faults.ErrSensor) {
		t.Fatalf("err=%v want sensor error", err)
	}
	if !strings.Contains(err.Error(), "2 consecutive failures") {
		t.Fatalf("err=%q", err)
	}
	requireDutyPrefix(t, sink.Duties(), 0.35)
	if snap := svc.Snapshot(); snap.CPUValid || snap.LastError == "" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestService_FullPolicyFailsSafe(t *testing.T) {
	sink := &fakeSink{}
	_, err := runService(t, Config{OnError: OnErrorFull},
		[]sample{{temp: 40}, {err: errSensor}, {temp: 30}}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	requireDutyPrefix(t, sink.Duties(), 0.35, 1.0, 0.2)
}

func TestService_Spinup(t *testing.T) {
	old := afterFn
	afterFn = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	t.Cleanup(func() { afterFn = old })

	sink := &fakeSink{}
	_, err := runService(t, Config{Spinup: time.Hour}, []sample{{temp: 30}}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	requireDutyPrefix(t, sink.Duties(), 1.0, 0.2)
}

func TestNew_Validation(t *testing.T) {
	src := &scriptedTemps{samples: []sample{{temp: 40}}}
	sink := &fakeSink{}

	_, err := New(Config{Profile: NoctuaFan(0)}, src, sink)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("nil curve: err=%v want configuration error", err)
	}

	_, err = New(Config{Curve: referenceCurve(t), Profile: NoctuaFan(0), OnError: "retry"}, src, sink)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("bad policy: err=%v want configuration error", err)
	}

	_, err = New(Config{Curve: referenceCurve(t), Profile: NoctuaFan(7)}, src, sink)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("bad channel: err=%v want configuration error", err)
	}

	svc, err := New(Config{Curve: referenceCurve(t), Profile: NoctuaFan(0)}, src, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.cfg.Interval != DefaultInterval || svc.cfg.OnError != OnErrorHold || svc.cfg.MaxConsecutiveErrors != DefaultMaxConsecutiveErrors {
		t.Fatalf("defaults not applied: %+v", svc.cfg)
	}
}

func TestOpenPWM(t *testing.T) {
	oldSysfs, oldPeriph, oldGPIO := openSysfsFn, openPeriphFn, openGPIOFn
	t.Cleanup(func() { openSysfsFn, openPeriphFn, openGPIOFn = oldSysfs, oldPeriph, oldGPIO })

	opened := ""
	openSysfsFn = func(p Profile) (PWMSink, error) { opened = BackendSysfs; return &fakeSink{}, nil }
	openPeriphFn = func(p Profile) (PWMSink, error) { return nil, errors.New("no pin GPIO18") }
	openGPIOFn = func(p Profile) (PWMSink, error) { opened = BackendGPIO; return &fakeSink{}, nil }

	if _, err := OpenPWM("", NoctuaFan(2)); err != nil || opened != BackendSysfs {
		t.Fatalf("default backend: opened=%q err=%v", opened, err)
	}
	if _, err := OpenPWM(BackendGPIO, NoctuaFan(2)); err != nil || opened != BackendGPIO {
		t.Fatalf("gpio backend: opened=%q err=%v", opened, err)
	}
	if _, err := OpenPWM(BackendPeriph, NoctuaFan(2)); !errors.Is(err, faults.ErrHardware) {
		t.Fatalf("periph failure: err=%v want hardware error", err)
	}
	if _, err := OpenPWM("rpio", NoctuaFan(2)); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("unknown backend: err=%v want configuration error", err)
	}

	opened = ""
	if _, err := OpenPWM(BackendSysfs, NoctuaFan(5)); !errors.Is(err, faults.ErrConfiguration) || opened != "" {
		t.Fatalf("invalid channel must fail before touching hardware: opened=%q err=%v", opened, err)
	}
}
