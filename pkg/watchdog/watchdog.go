// Package watchdog reboots the device when the main cycle stops
// feeding it within the deadline.
package watchdog

import (
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/metrics"
	"github.com/robotalks/prop.go/pkg/state"
)

// DefaultTimeout must exceed the broker keep-alive and the last-will
// detection delay, so a slow reconnect never trips it.
const DefaultTimeout = 60 * time.Second

// ErrNotArmed is returned when feeding a timer that is not armed.
var ErrNotArmed = errors.New("watchdog not armed")

// Timer is a watchdog implementation.
type Timer interface {
	Arm(timeout time.Duration) error
	Feed() error
	Close() error
}

// Software is a Timer backed by the Go runtime. It cannot catch a
// hung process, only a hung main cycle.
type Software struct {
	// Expire is called on the timer goroutine when the deadline passes.
	Expire func()

	timeout time.Duration
	timer   *time.Timer
	lock    sync.Mutex
}

// Arm implements Timer.
func (s *Software) Arm(timeout time.Duration) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timeout = timeout
	s.timer = time.AfterFunc(timeout, s.expire)
	return nil
}

// Feed implements Timer.
func (s *Software) Feed() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer == nil {
		return ErrNotArmed
	}
	s.timer.Reset(s.timeout)
	return nil
}

// Close implements Timer.
func (s *Software) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}

func (s *Software) expire() {
	glog.Errorf("watchdog expired, not fed for %v", s.timeout)
	if fn := s.Expire; fn != nil {
		fn()
		return
	}
	glog.Fatalf("watchdog expired")
}

// Liveness feeds a Timer from the main cycle and remembers when it
// was last fed.
type Liveness struct {
	Timer   Timer
	Timeout time.Duration
	Clock   fx.TimeSource
	Metrics *metrics.Metrics

	lastFed state.Stamp
	feedErr bool
}

// Arm arms the timer with Timeout.
func (l *Liveness) Arm() error {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := l.Timer.Arm(timeout); err != nil {
		return err
	}
	l.lastFed.Mark(l.now())
	glog.Infof("watchdog armed, timeout %v", timeout)
	return nil
}

// Feed postpones the deadline. Failures are logged once per streak.
func (l *Liveness) Feed() {
	if err := l.Timer.Feed(); err != nil {
		if !l.feedErr {
			glog.Errorf("watchdog feed: %v", err)
		}
		l.feedErr = true
		return
	}
	l.feedErr = false
	l.lastFed.Mark(l.now())
	l.Metrics.WatchdogFed()
}

// LastFed returns the time of the last successful feed.
func (l *Liveness) LastFed() time.Time {
	return l.lastFed.Time()
}

// Close releases the timer.
func (l *Liveness) Close() error {
	return l.Timer.Close()
}

func (l *Liveness) now() time.Time {
	if l.Clock != nil {
		return l.Clock.Now()
	}
	return time.Now()
}
