//go:build linux

package fancontrol

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gobot.io/x/gobot/sysfs"
	"golang.org/x/sys/unix"

	"rp-fancontrol/internal/units"
)

// sysfsPWM drives a hardware PWM channel via /sys/class/pwm.
//
// On a Pi 5 the four RP1 channels live on one pwmchip. Older boards need
// `dtoverlay=pwm-2chan`, which only exposes channels 0 and 1.
type sysfsPWM struct {
	pin      *sysfs.PWMPin
	channel  int
	periodNS uint32
	enabled  bool
}

var (
	pwmSysfsBase = "/sys/class/pwm"
	isPi5Fn      = isRaspberryPi5
	sysfsRetry   = 2 * time.Second
)

func openSysfs(p Profile) (PWMSink, error) {
	chipPath, err := findPWMChip()
	if err != nil {
		return nil, err
	}

	channel := sysfsChannel(p.Channel, isPi5Fn())
	pin := sysfs.NewPWMPin(channel)
	pin.Path = chipPath

	if err := retrySysfs(pin.Export); err != nil {
		return nil, fmt.Errorf("export pwm%d on %s: %w", channel, chipPath, err)
	}
	if p.Polarity == PolarityInversed {
		if err := retrySysfs(func() error { return pin.InvertPolarity(true) }); err != nil {
			return nil, fmt.Errorf("set pwm%d polarity: %w", channel, err)
		}
	}
	return &sysfsPWM{pin: pin, channel: channel}, nil
}

// sysfsChannel maps a Pi 5 channel number onto the overlay channels of older
// boards, where PWM2/PWM3 share hardware with PWM0/PWM1.
func sysfsChannel(channel int, pi5 bool) int {
	if pi5 {
		return channel
	}
	return channel % 2
}

func findPWMChip() (string, error) {
	base := pwmSysfsBase
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", base, err)
	}

	// Prefer pwmchip0 if present (common on Pi).
	preferred := []string{"pwmchip0", "pwmchip1", "pwmchip2"}
	// pwmchipN entries are commonly symlinks, not directories.
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pwmchip") {
			seen[e.Name()] = true
		}
	}
	candidates := make([]string, 0, len(seen))
	for _, name := range preferred {
		if seen[name] {
			candidates = append(candidates, name)
			delete(seen, name)
		}
	}
	for _, e := range entries {
		if seen[e.Name()] {
			candidates = append(candidates, e.Name())
		}
	}

	for _, name := range candidates {
		chip := filepath.Join(base, name)
		n, rerr := readInt(filepath.Join(chip, "npwm"))
		if rerr != nil || n <= 0 {
			continue
		}
		return chip, nil
	}
	return "", fmt.Errorf("no sysfs pwmchip found (is the pwm overlay enabled?)")
}

func (d *sysfsPWM) SetFrequencyHz(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("fancontrol: invalid frequency %d", hz)
	}
	period := uint32(1_000_000_000 / hz)
	if period == 0 {
		period = 1
	}

	// The kernel rejects a period shorter than the current duty, and some
	// chips refuse period changes while enabled.
	_ = retrySysfs(func() error { return d.pin.Enable(false) })
	d.enabled = false
	if err := retrySysfs(func() error { return d.pin.SetDutyCycle(0) }); err != nil {
		return fmt.Errorf("fancontrol: reset pwm%d duty: %w", d.channel, err)
	}
	if err := retrySysfs(func() error { return d.pin.SetPeriod(period) }); err != nil {
		return fmt.Errorf("fancontrol: set pwm%d period: %w", d.channel, err)
	}
	d.periodNS = period

	if err := retrySysfs(func() error { return d.pin.Enable(true) }); err != nil {
		return fmt.Errorf("fancontrol: enable pwm%d: %w", d.channel, err)
	}
	d.enabled = true
	return nil
}

func (d *sysfsPWM) SetDuty(duty units.DutyCycle) error {
	if d.periodNS == 0 {
		return fmt.Errorf("fancontrol: pwm%d period not set", d.channel)
	}
	ns := uint32(math.Round(float64(d.periodNS) * duty.Fraction()))
	if ns > d.periodNS {
		ns = d.periodNS
	}
	if err := retrySysfs(func() error { return d.pin.SetDutyCycle(ns) }); err != nil {
		return fmt.Errorf("fancontrol: set pwm%d duty: %w", d.channel, err)
	}
	if !d.enabled {
		if err := retrySysfs(func() error { return d.pin.Enable(true) }); err != nil {
			return fmt.Errorf("fancontrol: enable pwm%d: %w", d.channel, err)
		}
		d.enabled = true
	}
	return nil
}

// Close leaves the channel exported and running at its last duty.
func (d *sysfsPWM) Close() error {
	return nil
}

// retrySysfs retries fn while the error looks transient. Right after a channel
// is exported udev may still be adjusting permissions, so open() briefly
// fails with EACCES or ENOENT even though the steady state is fine.
func retrySysfs(fn func() error) error {
	deadline := time.Now().Add(sysfsRetry)
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) || !isRetryableSysfsErr(err) {
			return err
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) ||
		errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) ||
		errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EAGAIN)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.Atoi(s)
}
