// Package health renders the device health state on a single LED,
// continuously and independently of the application domain.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/metrics"
)

// DefaultBrightness keeps the LED dim.
const DefaultBrightness = 10

const debugInterval = 5 * time.Second

// LED is the output the indicator renders on.
type LED interface {
	Set(on bool, c Color) error
	SetBrightness(level uint8) error
}

// Indicator plays the pattern of the current state in a loop. The
// state is read once per pattern, so a change takes effect at the
// next pattern boundary and a pattern is never mixed with another.
type Indicator struct {
	LED     LED
	Clock   fx.Clock
	Metrics *metrics.Metrics
	// Label identifies the LED in logs.
	Label string

	state      atomic.Int32
	brightness atomic.Uint32

	applied   int
	reported  State
	lastDebug time.Time
	ledErr    bool
}

// NewIndicator creates an Indicator in Booting state.
func NewIndicator(led LED) *Indicator {
	ind := &Indicator{LED: led, applied: -1, reported: -1}
	ind.brightness.Store(DefaultBrightness)
	return ind
}

// Name implements Named.
func (ind *Indicator) Name() string {
	return "health"
}

// SetState changes the state. Safe from any goroutine.
func (ind *Indicator) SetState(s State) {
	ind.state.Store(int32(s))
	ind.Metrics.SetHealthState(int(s))
}

// State returns the current state.
func (ind *Indicator) State() State {
	return State(ind.state.Load())
}

// SetBrightness changes the LED brightness from the next pattern on.
func (ind *Indicator) SetBrightness(level uint8) {
	ind.brightness.Store(uint32(level))
}

// Brightness returns the requested brightness.
func (ind *Indicator) Brightness() uint8 {
	return uint8(ind.brightness.Load())
}

// Run implements Runnable.
func (ind *Indicator) Run(ctx context.Context) error {
	for {
		if err := ind.Render(ctx); err != nil {
			ind.set(false, Off)
			return err
		}
	}
}

// Render plays one full pattern of the current state.
func (ind *Indicator) Render(ctx context.Context) error {
	s := ind.State()
	ind.report(s)
	if level := int(ind.Brightness()); level != ind.applied {
		if err := ind.LED.SetBrightness(uint8(level)); err != nil {
			glog.Warningf("health led %s brightness: %v", ind.Label, err)
		}
		ind.applied = level
	}
	p := PatternOf(s)
	for _, step := range p.Steps {
		ind.set(step.On, p.Color)
		if err := ind.clock().Sleep(ctx, step.Duration); err != nil {
			return err
		}
	}
	return nil
}

func (ind *Indicator) set(on bool, c Color) {
	err := ind.LED.Set(on, c)
	if err != nil && !ind.ledErr {
		glog.Warningf("health led %s: %v", ind.Label, err)
	}
	ind.ledErr = err != nil
}

func (ind *Indicator) report(s State) {
	now := ind.clock().Now()
	if s != ind.reported {
		glog.Infof("health state %s (led %s)", s, ind.Label)
		ind.reported = s
	}
	if now.Sub(ind.lastDebug) >= debugInterval {
		glog.V(2).Infof("health running, state %s, led %s", s, ind.Label)
		ind.lastDebug = now
	}
}

func (ind *Indicator) clock() fx.Clock {
	if ind.Clock != nil {
		return ind.Clock
	}
	return fx.SystemClock
}
