package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/health"
	"github.com/robotalks/prop.go/pkg/pubsub"
	"github.com/robotalks/prop.go/pkg/reset"
	"github.com/robotalks/prop.go/pkg/update"
)

type recorder struct {
	calls []string
}

func (r *recorder) add(call string) {
	r.calls = append(r.calls, call)
}

type recFeeder struct{ *recorder }

func (f recFeeder) Feed() { f.add("feed") }

type recSession struct{ *recorder }

func (s recSession) Tick() { s.add("session") }

type recComponent struct {
	*recorder
	name    string
	initErr error
	tickErr error
}

func (c *recComponent) Name() string { return c.name }

func (c *recComponent) Init(context.Context) error {
	c.add("init:" + c.name)
	return c.initErr
}

func (c *recComponent) Tick(context.Context) error {
	c.add("tick:" + c.name)
	return c.tickErr
}

func (c *recComponent) Shutdown(context.Context) error {
	c.add("shutdown:" + c.name)
	return nil
}

type recHealth struct{ states []health.State }

func (h *recHealth) SetState(s health.State) { h.states = append(h.states, s) }

type dispatchTestEnv struct {
	rec    *recorder
	guard  *update.Guard
	resets *reset.Coordinator
	health *recHealth
	app    *recComponent
	d      *Dispatcher
}

func newDispatchTestEnv() *dispatchTestEnv {
	env := &dispatchTestEnv{
		rec:    &recorder{},
		guard:  &update.Guard{},
		resets: &reset.Coordinator{},
		health: &recHealth{},
	}
	env.app = &recComponent{recorder: env.rec, name: "app"}
	env.d = New(env.app)
	env.d.Watchdog = recFeeder{env.rec}
	env.d.Session = recSession{env.rec}
	env.d.Update = env.guard
	env.d.Reset = env.resets
	env.d.Health = env.health
	env.d.OnReset = func(context.Context) error {
		env.rec.add("reset")
		return nil
	}
	return env
}

func (env *dispatchTestEnv) count(call string) (n int) {
	for _, c := range env.rec.calls {
		if c == call {
			n++
		}
	}
	return
}

func TestCycleOrder(t *testing.T) {
	env := newDispatchTestEnv()
	ctx := context.Background()
	env.d.Init(ctx)
	env.resets.Request(reset.SourceButton)
	env.rec.calls = nil
	env.d.Cycle(ctx)
	require.Equal(t, []string{"feed", "session", "reset", "tick:app"}, env.rec.calls)
}

func TestUpdateSkipsApplication(t *testing.T) {
	env := newDispatchTestEnv()
	ctx := context.Background()
	env.d.Init(ctx)
	env.rec.calls = nil

	env.guard.OnStart()
	env.resets.Request(reset.SourceRemote)
	for i := 0; i < 10; i++ {
		env.d.Cycle(ctx)
	}
	require.Equal(t, 10, env.count("feed"), "watchdog is fed while updating")
	require.Equal(t, 10, env.count("session"))
	require.Zero(t, env.count("tick:app"))
	require.Zero(t, env.count("reset"), "reset waits for the update to end")

	env.guard.OnError(errors.New("transfer aborted"))
	env.d.Cycle(ctx)
	env.d.Cycle(ctx)
	require.Equal(t, 2, env.count("tick:app"))
	require.Equal(t, 1, env.count("reset"))
}

func TestResetDrainedOnce(t *testing.T) {
	env := newDispatchTestEnv()
	ctx := context.Background()
	env.d.Init(ctx)

	// button and remote request within the same cycle.
	require.True(t, env.resets.Request(reset.SourceButton))
	require.False(t, env.resets.Request(reset.SourceRemote))
	for i := 0; i < 5; i++ {
		env.d.Cycle(ctx)
	}
	require.Equal(t, 1, env.count("reset"))
	require.Equal(t, 5, env.count("tick:app"))
}

func TestInitFailureKeepsCycling(t *testing.T) {
	env := newDispatchTestEnv()
	broken := &recComponent{recorder: env.rec, name: "broken", initErr: errors.New("no sensor")}
	env.d.Components = append(env.d.Components, broken)
	ctx := context.Background()
	env.d.Init(ctx)
	env.d.Cycle(ctx)
	require.Equal(t, []health.State{health.Error}, env.health.states)
	require.Equal(t, 1, env.count("tick:app"))
	require.Zero(t, env.count("tick:broken"))
}

func TestTickErrorIsContained(t *testing.T) {
	env := newDispatchTestEnv()
	env.app.tickErr = errors.New("puzzle state")
	ctx := context.Background()
	env.d.Init(ctx)
	env.d.Cycle(ctx)
	env.d.Cycle(ctx)
	require.Equal(t, 2, env.count("tick:app"))
}

func TestRunLifecycle(t *testing.T) {
	env := newDispatchTestEnv()
	env.d.Interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	var ticks int
	env.d.Components = []fx.Component{env.app, fx.TickFunc(func(context.Context) error {
		if ticks++; ticks == 3 {
			cancel()
		}
		return nil
	})}
	require.ErrorIs(t, env.d.Run(ctx), context.Canceled)
	require.Equal(t, []health.State{health.Normal}, env.health.states)
	require.Equal(t, "init:app", env.rec.calls[0])
	require.Equal(t, "shutdown:app", env.rec.calls[len(env.rec.calls)-1])
	require.GreaterOrEqual(t, env.count("tick:app"), 3)
}

// fakeSession is a broker session which delivers injected messages.
type fakeSession struct {
	connected bool
	subs      map[string]pubsub.MessageFunc
}

func (f *fakeSession) Connect(pubsub.Will) error {
	f.connected = true
	return nil
}
func (f *fakeSession) Connected() bool                    { return f.connected }
func (f *fakeSession) Publish(string, []byte, bool) error { return nil }
func (f *fakeSession) Disconnect()                        { f.connected = false }
func (f *fakeSession) Subscribe(topic string, fn pubsub.MessageFunc) error {
	f.subs[topic] = fn
	return nil
}

func TestRemoteResetThroughSession(t *testing.T) {
	env := newDispatchTestEnv()
	session := &fakeSession{subs: make(map[string]pubsub.MessageFunc)}
	sup := pubsub.New(session, pubsub.Options{DeviceID: "radio"})
	sup.Reset = env.resets
	var forwarded []string
	sup.Handler = pubsub.HandlerFunc(func(topic string, payload []byte) {
		forwarded = append(forwarded, string(payload))
	})
	require.True(t, sup.Begin())
	env.d.Session = sup
	ctx := context.Background()
	env.d.Init(ctx)

	session.subs["SP/radio/cmd"]("SP/radio/cmd", []byte("RESET"))
	session.subs["SP/radio/cmd"]("SP/radio/cmd", []byte("solve"))
	env.d.Cycle(ctx)
	env.d.Cycle(ctx)
	require.Equal(t, 1, env.count("reset"))
	require.Equal(t, []string{"solve"}, forwarded)
}
