// Package link supervises the lifecycle of the one network connection
// every other network service depends on.
package link

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/metrics"
	"github.com/robotalks/prop.go/pkg/state"
)

// State is the observed state of the link.
type State int32

// Link states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Defaults
const (
	DefaultRetryInterval  = 5 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond

	connectPollInterval = 500 * time.Millisecond
)

// Credentials authenticate the device on the link.
type Credentials struct {
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase"`
}

// Driver operates the actual network interface.
type Driver interface {
	// Connect starts a connection attempt. It returns once the attempt
	// is issued, not when the link is up.
	Connect(ctx context.Context, creds Credentials) error
	// Disconnect drops any connection or pending attempt.
	Disconnect() error
	// Connected reports whether the link is usable right now.
	Connected() bool
}

// Supervisor keeps the link connected, retrying at a fixed interval
// forever. Tick is only called from the supervisor's own loop; the
// rest of the device reads IsConnected and State.
type Supervisor struct {
	Driver         Driver
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
	PollInterval   time.Duration
	Clock          fx.Clock
	Metrics        *metrics.Metrics
	// OnUp is called on the maintenance loop when the link comes up.
	OnUp func()
	// OnDown is called on the maintenance loop when the link is lost.
	OnDown func()

	ctx          context.Context
	creds        Credentials
	attempted    bool
	lastAttempt  time.Time
	wasConnected bool

	connected state.Flag
	state     atomic.Int32
}

// NewSupervisor creates a Supervisor with defaults.
func NewSupervisor(driver Driver) *Supervisor {
	return &Supervisor{
		Driver:         driver,
		RetryInterval:  DefaultRetryInterval,
		ConnectTimeout: DefaultConnectTimeout,
		PollInterval:   DefaultPollInterval,
	}
}

// Name implements Named.
func (s *Supervisor) Name() string {
	return "link"
}

// Begin makes the initial connection attempt, waiting at most
// ConnectTimeout, and then starts the maintenance loop on the domain
// regardless of the outcome. It reports whether the link came up.
func (s *Supervisor) Begin(ctx context.Context, domain fx.Spawner, creds Credentials) bool {
	s.ctx, s.creds = ctx, creds
	clock := s.clock()
	start := clock.Now()
	s.attempt(start)
	for !s.Driver.Connected() && fx.Since(clock, start) < s.connectTimeout() {
		if clock.Sleep(ctx, connectPollInterval) != nil {
			break
		}
	}
	up := s.Driver.Connected()
	if up {
		s.observeUp()
	} else {
		glog.Warningf("link not connected after %v, retrying every %v in background",
			s.connectTimeout(), s.retryInterval())
	}
	domain.Spawn(s)
	return up
}

// Tick evaluates the link once. When disconnected it issues at most one
// attempt per RetryInterval.
func (s *Supervisor) Tick() {
	if s.Driver.Connected() {
		if !s.wasConnected {
			s.observeUp()
		}
		return
	}
	if s.wasConnected {
		s.wasConnected = false
		s.connected.Set(false)
		s.state.Store(int32(Disconnected))
		s.Metrics.SetLinkConnected(false)
		glog.Warning("link lost")
		if fn := s.OnDown; fn != nil {
			fn()
		}
	}
	now := s.clock().Now()
	if s.attempted && now.Sub(s.lastAttempt) < s.retryInterval() {
		return
	}
	s.attempt(now)
}

// Run implements Runnable.
func (s *Supervisor) Run(ctx context.Context) error {
	return fx.NewLoop(s.Name(), s.PollInterval, func(context.Context) {
		s.Tick()
	}).Run(ctx)
}

// IsConnected returns the last observed status.
func (s *Supervisor) IsConnected() bool {
	return s.connected.IsSet()
}

// State returns the last observed state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) attempt(now time.Time) {
	s.attempted, s.lastAttempt = true, now
	s.state.Store(int32(Connecting))
	s.Metrics.LinkAttempt()
	if err := s.Driver.Disconnect(); err != nil {
		glog.V(2).Infof("link disconnect: %v", err)
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	glog.V(1).Infof("link connecting to %q", s.creds.SSID)
	if err := s.Driver.Connect(ctx, s.creds); err != nil {
		s.state.Store(int32(Disconnected))
		glog.Warningf("link connect: %v", err)
	}
}

func (s *Supervisor) observeUp() {
	s.wasConnected = true
	s.connected.Set(true)
	s.state.Store(int32(Connected))
	s.Metrics.SetLinkConnected(true)
	glog.Info("link connected")
	if fn := s.OnUp; fn != nil {
		fn()
	}
}

func (s *Supervisor) clock() fx.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return fx.SystemClock
}

func (s *Supervisor) retryInterval() time.Duration {
	if s.RetryInterval > 0 {
		return s.RetryInterval
	}
	return DefaultRetryInterval
}

func (s *Supervisor) connectTimeout() time.Duration {
	if s.ConnectTimeout > 0 {
		return s.ConnectTimeout
	}
	return DefaultConnectTimeout
}
