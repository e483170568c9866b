package framework

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the pace of a Loop without Interval set.
const DefaultInterval = 100 * time.Millisecond

// Loop calls Fn at a fixed pace until the context is done.
// Each call runs to completion before the next one is scheduled,
// so Fn never overlaps with itself.
type Loop struct {
	// LoopName identifies the loop in logs.
	LoopName string
	// Interval is the pause between two calls.
	Interval time.Duration
	// Fn is the body of one iteration.
	Fn func(context.Context)

	wakeUpCh chan struct{}
}

// NewLoop creates a Loop.
func NewLoop(name string, interval time.Duration, fn func(context.Context)) *Loop {
	return &Loop{
		LoopName: name,
		Interval: interval,
		Fn:       fn,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Name implements Named.
func (l *Loop) Name() string {
	return l.LoopName
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	glog.V(4).Infof("loop[%s] every %v", l.LoopName, interval)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-l.wakeUpCh:
		}
		l.Fn(ctx)
		timer.Reset(interval)
	}
}

// TriggerNext schedules the next iteration immediately after the
// current one. Safe to call from any goroutine, never blocks.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}
