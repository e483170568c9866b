package prop

import (
	"context"
)

// Application is the prop logic driven by the main cycle. All calls
// happen on the application domain.
type Application interface {
	// Init is called once before the first Tick.
	Init(ctx context.Context, dev *Device) error
	// Tick is the per-cycle hook, skipped during firmware updates.
	Tick(ctx context.Context) error
	// Reset returns the prop to its initial state, on a button hold
	// or a remote reset command.
	Reset(ctx context.Context) error
	// Shutdown is called once after the last Tick.
	Shutdown(ctx context.Context) error
}

// MessageHandler is optionally implemented by an Application to
// receive messages on subscribed topics, the reserved reset excluded.
type MessageHandler interface {
	OnMessage(topic string, payload []byte)
}

type appComponent struct {
	app Application
	dev *Device
}

func (c *appComponent) Name() string {
	return "app"
}

func (c *appComponent) Init(ctx context.Context) error {
	return c.app.Init(ctx, c.dev)
}

func (c *appComponent) Tick(ctx context.Context) error {
	return c.app.Tick(ctx)
}

func (c *appComponent) Shutdown(ctx context.Context) error {
	return c.app.Shutdown(ctx)
}
