package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// Runner is a scheduling domain: it runs multiple Runnables as
// independent goroutines and collects their errors.
type Runner struct {
	DomainName string
	Context    context.Context
	Runners    []Runnable

	errCh  chan error
	exitCh chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner(name string) *Runner {
	return NewRunnerWith(context.Background(), name)
}

// NewRunnerWith creates a runner with a specified context.
func NewRunnerWith(ctx context.Context, name string) *Runner {
	return &Runner{
		DomainName: name,
		Context:    ctx,
		errCh:      make(chan error, 1),
		exitCh:     make(chan struct{}),
	}
}

// HandleSignals handles CtrlC and SIGTERM from the system.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	r.Context = ctx
	go func() {
		<-sigCh
		glog.Info("stop requested")
		cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// Go spawns Runnables with default context.
func (r *Runner) Go(runners ...Runnable) *Runner {
	return r.GoWith(r.Context, runners...)
}

// GoWith spawns Runnables with a specified context.
func (r *Runner) GoWith(ctx context.Context, runners ...Runnable) *Runner {
	for _, runner := range runners {
		r.spawn(ctx, runner, false)
	}
	return r
}

// Spawn implements Spawner.
func (r *Runner) Spawn(runner Runnable) {
	r.spawn(r.Context, runner, false)
}

// GoLocked spawns a Runnable on a goroutine wired to its own OS thread
// for its whole lifetime.
func (r *Runner) GoLocked(runner Runnable) *Runner {
	r.spawn(r.Context, runner, true)
	return r
}

func (r *Runner) spawn(ctx context.Context, runner Runnable, locked bool) {
	name := r.nameOf(runner)
	r.Runners = append(r.Runners, runner)
	glog.V(4).Infof("%s: start %s", r.DomainName, name)
	go func() {
		if locked {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		glog.V(4).Infof("%s: %s started", r.DomainName, name)
		err := runner.Run(ctx)
		glog.V(4).Infof("%s: %s stopped: %v", r.DomainName, name, err)
		if err != nil && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%s/%s: %w", r.DomainName, name, err)
		}
		r.errCh <- err
	}()
}

func (r *Runner) nameOf(runner Runnable) string {
	if named, ok := runner.(Named); ok {
		return named.Name()
	}
	return strconv.Itoa(len(r.Runners))
}

// Wait waits until all Runnables stop and aggregates errors.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for range r.Runners {
		select {
		case <-r.exitCh:
			return errors.New("forced exit")
		case err := <-r.errCh:
			if !errors.Is(err, context.Canceled) {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs a func which doesn't accept a context.
// onCancel is called only when the context is canceled.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return context.Canceled
	case err := <-errCh:
		return err
	}
}

// RunWithContextCloser ensures closer.Close is called either on cancel
// or on exit of fn.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var closed bool
	err := RunWithContextCancel(ctx, func() {
		closer.Close()
		closed = true
	}, fn)
	if !closed {
		closer.Close()
	}
	return err
}
