package reset

import (
	"context"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/prop.go/pkg/framework"
)

// Defaults
const (
	DefaultHold         = time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

// Input reads a digital line, e.g. a *gpiocdev.Line.
type Input interface {
	Value() (int, error)
}

// Button detects a continuous hold on an active-low input.
// A hold reaching Hold requests a reset once; the button must then be
// released before it can fire again. Releasing early cancels the hold.
type Button struct {
	Input        Input
	Requester    Requester
	Hold         time.Duration
	PollInterval time.Duration
	Clock        fx.TimeSource

	pressed    bool
	latched    bool
	pressStart time.Time
	readErr    bool
}

// NewButton creates a Button with defaults.
func NewButton(in Input, r Requester) *Button {
	return &Button{
		Input:        in,
		Requester:    r,
		Hold:         DefaultHold,
		PollInterval: DefaultPollInterval,
	}
}

// Name implements Named.
func (b *Button) Name() string {
	return "reset-button"
}

// Poll samples the input once.
func (b *Button) Poll() {
	if !b.isDown() {
		if b.pressed && !b.latched {
			glog.V(2).Info("reset button released before hold threshold")
		}
		b.pressed, b.latched = false, false
		return
	}
	now := b.now()
	if !b.pressed {
		b.pressed, b.pressStart = true, now
		return
	}
	if b.latched || now.Sub(b.pressStart) < b.hold() {
		return
	}
	b.latched = true
	b.Requester.Request(SourceButton)
}

// Run implements Runnable.
func (b *Button) Run(ctx context.Context) error {
	interval := b.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return fx.NewLoop(b.Name(), interval, func(context.Context) {
		b.Poll()
	}).Run(ctx)
}

func (b *Button) isDown() bool {
	v, err := b.Input.Value()
	if err != nil {
		if !b.readErr {
			glog.Warningf("reset button read: %v", err)
		}
		b.readErr = true
		return false
	}
	b.readErr = false
	return v == 0
}

func (b *Button) now() time.Time {
	if b.Clock != nil {
		return b.Clock.Now()
	}
	return time.Now()
}

func (b *Button) hold() time.Duration {
	if b.Hold > 0 {
		return b.Hold
	}
	return DefaultHold
}
