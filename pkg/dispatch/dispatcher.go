// Package dispatch runs the main cycle on the application domain.
//
// One cycle, in order: feed the watchdog, service the pub/sub session,
// skip the rest while a firmware update is in progress, drain a
// pending reset, then tick the application components once.
package dispatch

import (
	"context"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/health"
	"github.com/robotalks/prop.go/pkg/metrics"
)

// Defaults
const (
	DefaultInterval        = 10 * time.Millisecond
	DefaultShutdownTimeout = 5 * time.Second
)

// Feeder is fed once per cycle.
type Feeder interface {
	Feed()
}

// Session is serviced once per cycle.
type Session interface {
	Tick()
}

// UpdateStatus reports an update in progress.
type UpdateStatus interface {
	IsUpdating() bool
}

// ResetSource hands out a pending reset request at most once.
type ResetSource interface {
	Take() bool
}

// HealthSetter receives the steady-state health.
type HealthSetter interface {
	SetState(health.State)
}

// Dispatcher owns the main cycle. Members which are not present are
// left nil and skipped.
type Dispatcher struct {
	Watchdog Feeder
	Session  Session
	Update   UpdateStatus
	Reset    ResetSource
	// OnReset handles a drained reset request.
	OnReset func(context.Context) error
	Health  HealthSetter
	// Components are ticked in order as the application hook.
	Components      []fx.Component
	Interval        time.Duration
	ShutdownTimeout time.Duration
	Metrics         *metrics.Metrics

	active []fx.Component
	loop   *fx.Loop
}

// New creates a Dispatcher ticking components.
func New(components ...fx.Component) *Dispatcher {
	d := &Dispatcher{Components: components, Interval: DefaultInterval}
	d.loop = fx.NewLoop(d.Name(), d.Interval, d.cycle)
	return d
}

// Name implements Named.
func (d *Dispatcher) Name() string {
	return "dispatcher"
}

// TriggerNext runs the next cycle without waiting for the interval.
// Safe from any goroutine.
func (d *Dispatcher) TriggerNext() {
	if d.loop != nil {
		d.loop.TriggerNext()
	}
}

// Init initializes components. A component failing Init is excluded
// from the cycle and the health turns Error; the device stays up so it
// can still be updated or reset.
func (d *Dispatcher) Init(ctx context.Context) {
	d.active = d.active[:0]
	for _, c := range d.Components {
		if err := c.Init(ctx); err != nil {
			glog.Errorf("init %s: %v", nameOf(c), err)
			d.setHealth(health.Error)
			continue
		}
		d.active = append(d.active, c)
	}
}

// Cycle runs one main cycle.
func (d *Dispatcher) Cycle(ctx context.Context) {
	if d.Watchdog != nil {
		d.Watchdog.Feed()
	}
	if d.Session != nil {
		d.Session.Tick()
	}
	if d.Update != nil && d.Update.IsUpdating() {
		d.Metrics.Cycle(true)
		return
	}
	d.Metrics.Cycle(false)
	if d.Reset != nil && d.Reset.Take() {
		d.Metrics.ResetHandled()
		glog.Info("handling reset")
		if fn := d.OnReset; fn != nil {
			if err := fn(ctx); err != nil {
				glog.Errorf("reset: %v", err)
			}
		}
	}
	for _, c := range d.active {
		if err := c.Tick(ctx); err != nil {
			glog.Errorf("tick %s: %v", nameOf(c), err)
		}
	}
}

// Run implements Runnable. It initializes components, enters steady
// state and cycles until ctx is done, then shuts the components down.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.Init(ctx)
	if len(d.active) == len(d.Components) {
		d.setHealth(health.Normal)
	}
	if d.loop == nil {
		d.loop = fx.NewLoop(d.Name(), d.Interval, d.cycle)
	}
	d.loop.Interval = d.Interval
	if d.loop.Interval <= 0 {
		d.loop.Interval = DefaultInterval
	}
	err := d.loop.Run(ctx)
	if serr := d.Shutdown(); serr != nil {
		return serr
	}
	return err
}

// Shutdown shuts active components down in reverse order.
func (d *Dispatcher) Shutdown() error {
	timeout := d.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var errs fx.AggregatedError
	for i := len(d.active) - 1; i >= 0; i-- {
		errs.Add(d.active[i].Shutdown(ctx))
	}
	d.active = nil
	return errs.Aggregate()
}

func (d *Dispatcher) cycle(ctx context.Context) {
	d.Cycle(ctx)
}

func (d *Dispatcher) setHealth(s health.State) {
	if d.Health != nil {
		d.Health.SetState(s)
	}
}

func nameOf(c fx.Component) string {
	if named, ok := c.(fx.Named); ok {
		return named.Name()
	}
	return "component"
}
