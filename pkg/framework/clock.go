package framework

import (
	"context"
	"sync"
	"time"
)

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ManualClock is a Clock which only moves when told to.
// Sleep advances the clock by the requested duration without blocking,
// so a loop driven by it replays its timeline instantly.
type ManualClock struct {
	now     time.Time
	lock    sync.Mutex
	onSleep func(time.Duration)
}

// NewManualClock creates a ManualClock starting at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now implements TimeSource.
func (c *ManualClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *ManualClock) Advance(d time.Duration) {
	c.lock.Lock()
	c.now = c.now.Add(d)
	c.lock.Unlock()
}

// OnSleep installs a hook called after every Sleep.
func (c *ManualClock) OnSleep(fn func(time.Duration)) {
	c.lock.Lock()
	c.onSleep = fn
	c.lock.Unlock()
}

// Sleep implements Clock.
func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.lock.Lock()
	c.now = c.now.Add(d)
	hook := c.onSleep
	c.lock.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

// Since returns the elapsed time from t according to clock.
func Since(clock TimeSource, t time.Time) time.Duration {
	return clock.Now().Sub(t)
}
