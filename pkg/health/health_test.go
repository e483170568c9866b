package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/prop.go/pkg/framework"
)

type ledEvent struct {
	on    bool
	color Color
}

type recordingLED struct {
	events     []ledEvent
	brightness []uint8
}

func (l *recordingLED) Set(on bool, c Color) error {
	l.events = append(l.events, ledEvent{on, c})
	return nil
}

func (l *recordingLED) SetBrightness(level uint8) error {
	l.brightness = append(l.brightness, level)
	return nil
}

func TestPatternPeriods(t *testing.T) {
	testCases := []struct {
		state  State
		color  Color
		pulses int
		period time.Duration
	}{
		{Booting, Blue, 1, 200 * time.Millisecond},
		{AwaitingConfig, Yellow, 2, 1900 * time.Millisecond},
		{Connecting, Cyan, 3, 2100 * time.Millisecond},
		{Normal, Green, 1, 2 * time.Second},
		{Error, Red, 9, 5 * time.Second},
	}
	for _, tc := range testCases {
		t.Run(tc.state.String(), func(t *testing.T) {
			p := PatternOf(tc.state)
			require.Equal(t, tc.color, p.Color)
			require.Equal(t, tc.period, p.Period())
			var on int
			for _, s := range p.Steps {
				if s.On {
					on++
				}
			}
			require.Equal(t, tc.pulses, on)
		})
	}
	require.Equal(t, PatternOf(Error), PatternOf(State(42)))
}

func TestSOSShape(t *testing.T) {
	var lit []time.Duration
	for _, s := range PatternOf(Error).Steps {
		if s.On {
			lit = append(lit, s.Duration)
		}
	}
	short, long := ShortBlink, LongBlink
	require.Equal(t, []time.Duration{short, short, short, long, long, long, short, short, short}, lit)
}

func TestStateChangeAtPatternBoundary(t *testing.T) {
	led := &recordingLED{}
	clock := fx.NewManualClock(time.Unix(0, 0))
	ind := NewIndicator(led)
	ind.Clock = clock
	ind.SetState(Normal)

	// switch state in the middle of the slow blink.
	var sleeps int
	clock.OnSleep(func(time.Duration) {
		if sleeps++; sleeps == 1 {
			ind.SetState(Error)
			ind.SetBrightness(200)
		}
	})
	ctx := context.Background()
	require.NoError(t, ind.Render(ctx))
	require.Equal(t, []ledEvent{{true, Green}, {false, Green}}, led.events)
	require.Equal(t, []uint8{DefaultBrightness}, led.brightness)
	require.Equal(t, 2*time.Second, fx.Since(clock, time.Unix(0, 0)))

	led.events = nil
	require.NoError(t, ind.Render(ctx))
	require.Len(t, led.events, len(PatternOf(Error).Steps))
	for _, ev := range led.events {
		require.Equal(t, Red, ev.color)
	}
	require.Equal(t, []uint8{DefaultBrightness, 200}, led.brightness)
}

func TestRunStopsOnCancel(t *testing.T) {
	led := &recordingLED{}
	clock := fx.NewManualClock(time.Unix(0, 0))
	ind := NewIndicator(led)
	ind.Clock = clock
	ctx, cancel := context.WithCancel(context.Background())
	var renders int
	clock.OnSleep(func(time.Duration) {
		if renders++; renders == 10 {
			cancel()
		}
	})
	require.ErrorIs(t, ind.Run(ctx), context.Canceled)
	require.Equal(t, Booting, ind.State())
	require.Equal(t, ledEvent{false, Off}, led.events[len(led.events)-1])
}

func TestSysfsLED(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "status:rgb")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "max_brightness"), []byte("255\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "multi_intensity"), []byte("0 0 0"), 0644))

	led, err := OpenSysfsLED(root, "status:rgb")
	require.NoError(t, err)
	read := func(attr string) string {
		content, err := os.ReadFile(filepath.Join(dir, attr))
		require.NoError(t, err)
		return string(content)
	}
	require.NoError(t, led.SetBrightness(128))
	require.NoError(t, led.Set(true, Cyan))
	require.Equal(t, "0 255 255", read("multi_intensity"))
	require.Equal(t, "128", read("brightness"))
	require.NoError(t, led.Set(false, Cyan))
	require.Equal(t, "0", read("brightness"))

	_, err = OpenSysfsLED(root, "missing")
	require.Error(t, err)
}

type fakeLine struct{ values []int }

func (l *fakeLine) SetValue(v int) error {
	l.values = append(l.values, v)
	return nil
}

func TestGPIOLED(t *testing.T) {
	line := &fakeLine{}
	led := &GPIOLED{Line: line}
	require.NoError(t, led.Set(true, Red))
	require.NoError(t, led.Set(false, Red))
	require.Equal(t, []int{1, 0}, line.values)
}
