package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Spawner starts long-running Runnables on a scheduling domain.
type Spawner interface {
	Spawn(Runnable)
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Component is the lifecycle shared by optional parts of a prop.
// A component which is not present is simply not registered.
type Component interface {
	// Init is called once before the first Tick.
	Init(context.Context) error
	// Tick is called once per main cycle.
	Tick(context.Context) error
	// Shutdown is called once after the last Tick.
	Shutdown(context.Context) error
}

// TickFunc adapts a func into a Component with no-op Init and Shutdown.
type TickFunc func(context.Context) error

// Init implements Component.
func (f TickFunc) Init(context.Context) error { return nil }

// Tick implements Component.
func (f TickFunc) Tick(ctx context.Context) error { return f(ctx) }

// Shutdown implements Component.
func (f TickFunc) Shutdown(context.Context) error { return nil }

// TimeSource provides the time for supervisory logic.
type TimeSource interface {
	Now() time.Time
}

// Clock is a TimeSource which can also pause the caller.
type Clock interface {
	TimeSource
	// Sleep pauses for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}
