package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/prop.go/pkg/config"
	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/prop"
)

type fakeLine struct {
	value  int
	closed bool
	setErr error
}

func (l *fakeLine) Value() (int, error) { return l.value, nil }

func (l *fakeLine) SetValue(value int) error {
	if l.setErr != nil {
		return l.setErr
	}
	l.value = value
	return nil
}

func (l *fakeLine) Close() error { l.closed = true; return nil }

func TestDiagnostic(t *testing.T) {
	conf := config.NewConfig()
	conf.DeviceID = "oer-template-diagnostic"
	conf.Modules = config.Modules{}
	conf.Admin.Addr = ""
	app := newDiagnostic()
	dev, err := prop.New(conf, app)
	require.NoError(t, err)
	clock := fx.NewManualClock(time.Unix(1000, 0))
	dev.Clock = clock

	outputLine = -1
	ctx := context.Background()
	require.NoError(t, app.Init(ctx, dev))
	require.Nil(t, app.output)

	require.NoError(t, app.Tick(ctx))
	first := app.lastSample
	clock.Advance(time.Second)
	require.NoError(t, app.Tick(ctx))
	require.Equal(t, first, app.lastSample)
	clock.Advance(sampleInterval)
	require.NoError(t, app.Tick(ctx))
	require.True(t, app.lastSample.After(first))

	line := &fakeLine{value: 1}
	app.output = line
	require.NoError(t, app.Reset(ctx))
	require.Equal(t, 0, line.value)
	require.NoError(t, app.Shutdown(ctx))
	require.True(t, line.closed)

	broken := &fakeLine{value: 1, setErr: errors.New("line busy")}
	app.output = broken
	require.EqualError(t, app.Shutdown(ctx), "line busy")
	require.True(t, broken.closed)
}
