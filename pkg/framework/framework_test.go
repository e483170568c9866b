package framework

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAggregatedError(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	testCases := []struct {
		name   string
		errs   []error
		expect string
	}{
		{"none", nil, ""},
		{"nil skipped", []error{nil, nil}, ""},
		{"single", []error{errA, nil}, "a"},
		{"multiple", []error{errA, errB}, "multiple errors:\na\nb"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var agg AggregatedError
			err := agg.Add(tc.errs...).Aggregate()
			if tc.expect == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.expect)
			require.ErrorIs(t, err, errA)
		})
	}
}

func TestManualClock(t *testing.T) {
	start := time.Unix(1000, 0)
	clock := NewManualClock(start)
	var slept []time.Duration
	clock.OnSleep(func(d time.Duration) { slept = append(slept, d) })

	require.NoError(t, clock.Sleep(context.Background(), 100*time.Millisecond))
	clock.Advance(time.Second)
	require.Equal(t, 1100*time.Millisecond, Since(clock, start))
	require.Equal(t, []time.Duration{100 * time.Millisecond}, slept)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, clock.Sleep(ctx, time.Second), context.Canceled)
	require.Equal(t, 1100*time.Millisecond, Since(clock, start))
}

func TestLoopTriggerNext(t *testing.T) {
	var count int32
	ranCh := make(chan struct{}, 16)
	loop := NewLoop("test", time.Hour, func(context.Context) {
		atomic.AddInt32(&count, 1)
		ranCh <- struct{}{}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	waitRan := func() {
		select {
		case <-ranCh:
		case <-time.After(time.Second):
			t.Fatal("loop iteration timeout")
		}
	}
	// first iteration runs immediately.
	waitRan()
	loop.TriggerNext()
	waitRan()
	require.EqualValues(t, 2, atomic.LoadInt32(&count))

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRunner(t *testing.T) {
	failure := errors.New("failure")
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx, "support")
	r.Go(
		NamedRun("idle", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		NamedRun("broken", RunFunc(func(context.Context) error {
			return failure
		})),
	)
	r.GoLocked(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))
	cancel()
	err := r.Wait()
	require.ErrorIs(t, err, failure)
	require.Contains(t, err.Error(), "support/broken")
}
