//go:build linux

package tacho

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// cdevSource requests the tacho line from the GPIO character device with
// falling edge detection. The kernel delivers edges to handle on a goroutine
// owned by gpiocdev; WaitForEdge drains what has accumulated.
type cdevSource struct {
	line    *gpiocdev.Line
	pending atomic.Int64
	notify  chan struct{}
}

func openCdev(chip string, offset int) (EdgeSource, error) {
	s := &cdevSource{notify: make(chan struct{}, 1)}
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithConsumer("rp-fancontrol-tacho"),
		gpiocdev.WithEventHandler(s.handle))
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}
	s.line = line
	return s, nil
}

func (s *cdevSource) handle(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	s.pending.Add(1)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *cdevSource) WaitForEdge(timeout time.Duration) (int, error) {
	if n := s.pending.Swap(0); n > 0 {
		select {
		case <-s.notify:
		default:
		}
		return int(n), nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.notify:
	case <-t.C:
	}
	return int(s.pending.Swap(0)), nil
}

func (s *cdevSource) Close() error {
	if s == nil || s.line == nil {
		return nil
	}
	err := s.line.Close()
	s.line = nil
	return err
}
