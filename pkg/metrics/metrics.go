// Package metrics exposes the supervisory core state as Prometheus
// collectors. All methods are safe on a nil *Metrics, so components
// work unchanged when metrics are not wired.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prop"

// Reset sources.
const (
	SourceButton = "button"
	SourceRemote = "remote"
)

// Update results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds all collectors.
type Metrics struct {
	LinkAttempts     prometheus.Counter
	LinkConnected    prometheus.Gauge
	SessionAttempts  prometheus.Counter
	SessionConnected prometheus.Gauge
	MessagesReceived prometheus.Counter
	MessagesDropped  prometheus.Counter
	ResetRequests    *prometheus.CounterVec
	ResetsHandled    prometheus.Counter
	Updates          *prometheus.CounterVec
	UpdateBytes      prometheus.Counter
	Cycles           prometheus.Counter
	SkippedCycles    prometheus.Counter
	HealthState      prometheus.Gauge
	WatchdogFeeds    prometheus.Counter
}

// New creates the collectors and registers them if reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LinkAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "link", Name: "connect_attempts_total",
			Help: "Network link connection attempts.",
		}),
		LinkConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "link", Name: "connected",
			Help: "1 when the network link is connected.",
		}),
		SessionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mqtt", Name: "connect_attempts_total",
			Help: "MQTT session connection attempts.",
		}),
		SessionConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "mqtt", Name: "connected",
			Help: "1 when the MQTT session is connected.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mqtt", Name: "messages_received_total",
			Help: "Inbound MQTT messages dispatched.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mqtt", Name: "messages_dropped_total",
			Help: "Inbound MQTT messages dropped because the buffer was full.",
		}),
		ResetRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reset", Name: "requests_total",
			Help: "Accepted reset requests by source.",
		}, []string{"source"}),
		ResetsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reset", Name: "handled_total",
			Help: "Reset requests drained by the main cycle.",
		}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "update", Name: "transfers_total",
			Help: "Firmware transfers by result.",
		}, []string{"result"}),
		UpdateBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "update", Name: "bytes_total",
			Help: "Firmware bytes received.",
		}),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "cycles_total",
			Help: "Main cycle iterations.",
		}),
		SkippedCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "skipped_cycles_total",
			Help: "Main cycle iterations which skipped the application hook during an update.",
		}),
		HealthState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "health", Name: "state",
			Help: "Current health indicator state.",
		}),
		WatchdogFeeds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "watchdog", Name: "feeds_total",
			Help: "Liveness watchdog feeds.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.LinkAttempts, m.LinkConnected,
			m.SessionAttempts, m.SessionConnected,
			m.MessagesReceived, m.MessagesDropped,
			m.ResetRequests, m.ResetsHandled,
			m.Updates, m.UpdateBytes,
			m.Cycles, m.SkippedCycles,
			m.HealthState, m.WatchdogFeeds,
		)
	}
	return m
}

func boolValue(on bool) float64 {
	if on {
		return 1
	}
	return 0
}

// LinkAttempt counts a link connection attempt.
func (m *Metrics) LinkAttempt() {
	if m != nil {
		m.LinkAttempts.Inc()
	}
}

// SetLinkConnected records link status.
func (m *Metrics) SetLinkConnected(on bool) {
	if m != nil {
		m.LinkConnected.Set(boolValue(on))
	}
}

// SessionAttempt counts a session connection attempt.
func (m *Metrics) SessionAttempt() {
	if m != nil {
		m.SessionAttempts.Inc()
	}
}

// SetSessionConnected records session status.
func (m *Metrics) SetSessionConnected(on bool) {
	if m != nil {
		m.SessionConnected.Set(boolValue(on))
	}
}

// MessageReceived counts a dispatched inbound message.
func (m *Metrics) MessageReceived() {
	if m != nil {
		m.MessagesReceived.Inc()
	}
}

// MessageDropped counts a dropped inbound message.
func (m *Metrics) MessageDropped() {
	if m != nil {
		m.MessagesDropped.Inc()
	}
}

// ResetRequested counts an accepted reset request.
func (m *Metrics) ResetRequested(source string) {
	if m != nil {
		m.ResetRequests.WithLabelValues(source).Inc()
	}
}

// ResetHandled counts a drained reset request.
func (m *Metrics) ResetHandled() {
	if m != nil {
		m.ResetsHandled.Inc()
	}
}

// UpdateFinished counts a finished transfer.
func (m *Metrics) UpdateFinished(result string) {
	if m != nil {
		m.Updates.WithLabelValues(result).Inc()
	}
}

// UpdateReceived counts received firmware bytes.
func (m *Metrics) UpdateReceived(n int) {
	if m != nil && n > 0 {
		m.UpdateBytes.Add(float64(n))
	}
}

// Cycle counts a main cycle, skipped or not.
func (m *Metrics) Cycle(skipped bool) {
	if m != nil {
		m.Cycles.Inc()
		if skipped {
			m.SkippedCycles.Inc()
		}
	}
}

// SetHealthState records the health indicator state.
func (m *Metrics) SetHealthState(v int) {
	if m != nil {
		m.HealthState.Set(float64(v))
	}
}

// WatchdogFed counts a watchdog feed.
func (m *Metrics) WatchdogFed() {
	if m != nil {
		m.WatchdogFeeds.Inc()
	}
}
