package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.LinkAttempt()
		m.SetLinkConnected(true)
		m.ResetRequested(SourceButton)
		m.Cycle(true)
		m.UpdateReceived(10)
	})
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Cycle(false)
	m.Cycle(true)
	m.ResetRequested(SourceRemote)
	m.SetSessionConnected(true)
	m.UpdateReceived(512)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Cycles))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SkippedCycles))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ResetRequests.WithLabelValues(SourceRemote)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SessionConnected))
	require.Equal(t, 512.0, testutil.ToFloat64(m.UpdateBytes))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
