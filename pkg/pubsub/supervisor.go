// Package pubsub supervises the publish/subscribe session layered on
// top of the network link.
//
// Topic layout, with base = prefix + device identifier:
//
//	{base}/status  retained "online", last-will "offline"
//	{base}/cmd     subscribed; payload "reset" is reserved
//	{base}/log     mirror of log lines, published only while connected
package pubsub

import (
	"errors"
	"strings"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/metrics"
	"github.com/robotalks/prop.go/pkg/reset"
	"github.com/robotalks/prop.go/pkg/state"
)

// Sub-topics
const (
	StatusTopic  = "status"
	CommandTopic = "cmd"
	LogTopic     = "log"
)

// Status payloads
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ResetCommand is the reserved payload interpreted before any
// application handler, compared case-insensitively.
const ResetCommand = "reset"

// Defaults
const (
	DefaultTopicPrefix       = "SP/"
	DefaultReconnectInterval = 5 * time.Second
	DefaultBufferSize        = 32
)

// ErrNotConnected indicates the session is not established.
var ErrNotConnected = errors.New("not connected")

// LinkStatus reports whether the underlying link is usable.
type LinkStatus interface {
	IsConnected() bool
}

// Handler receives application messages.
type Handler interface {
	OnMessage(topic string, payload []byte)
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(topic string, payload []byte)

// OnMessage implements Handler.
func (f HandlerFunc) OnMessage(topic string, payload []byte) {
	f(topic, payload)
}

// Options configures a Supervisor.
type Options struct {
	DeviceID          string
	TopicPrefix       string
	ReconnectInterval time.Duration
	BufferSize        int
}

type message struct {
	topic   string
	payload []byte
}

// Supervisor maintains the session from the main cycle: Tick either
// attempts a reconnect at a fixed interval, or dispatches buffered
// inbound messages. Messages arrive on the client's own goroutine and
// are only handed to the Handler from Tick.
type Supervisor struct {
	Session Session
	Link    LinkStatus
	Reset   reset.Requester
	Handler Handler
	Clock   fx.TimeSource
	Metrics *metrics.Metrics
	// Wake is called whenever a message is buffered, from any goroutine.
	Wake func()

	deviceID  string
	clientID  string
	baseTopic string
	interval  time.Duration
	inbox     chan message
	subs      []string

	attempted   bool
	lastAttempt time.Time
	connected   state.Flag
}

// New creates a Supervisor.
func New(session Session, opts Options) *Supervisor {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &Supervisor{
		Session:   session,
		deviceID:  opts.DeviceID,
		clientID:  ClientID(opts.DeviceID),
		baseTopic: opts.TopicPrefix + opts.DeviceID,
		interval:  opts.ReconnectInterval,
		inbox:     make(chan message, opts.BufferSize),
		subs:      []string{CommandTopic},
	}
}

// ClientID derives the broker client identity from the device ID.
func ClientID(deviceID string) string {
	return "client_" + deviceID
}

// ClientID returns the broker client identity.
func (s *Supervisor) ClientID() string {
	return s.clientID
}

// BaseTopic returns prefix + device ID.
func (s *Supervisor) BaseTopic() string {
	return s.baseTopic
}

// Topic resolves a topic: relative topics are placed under the base
// topic, a leading "/" marks an absolute topic.
func (s *Supervisor) Topic(topic string) string {
	if strings.HasPrefix(topic, "/") {
		return topic[1:]
	}
	return s.baseTopic + "/" + topic
}

// Begin makes the initial connection attempt.
func (s *Supervisor) Begin() bool {
	s.attempted, s.lastAttempt = true, s.now()
	return s.Reconnect()
}

// Tick is called once per main cycle.
func (s *Supervisor) Tick() {
	if !s.Session.Connected() {
		if s.connected.IsSet() {
			s.connected.Set(false)
			s.Metrics.SetSessionConnected(false)
			glog.Warning("mqtt session lost")
		}
		now := s.now()
		if s.attempted && now.Sub(s.lastAttempt) < s.interval {
			return
		}
		s.attempted, s.lastAttempt = true, now
		s.Reconnect()
		return
	}
	if !s.connected.IsSet() {
		// an attempt given up on has completed since.
		s.onConnected()
	}
	s.drain()
}

// Reconnect connects the session if the link is up. On success it
// publishes the retained online status and (re)subscribes.
func (s *Supervisor) Reconnect() bool {
	if s.Session.Connected() {
		if !s.connected.IsSet() {
			s.onConnected()
		}
		return true
	}
	if s.Link != nil && !s.Link.IsConnected() {
		glog.V(2).Info("mqtt reconnect skipped, link down")
		return false
	}
	s.Metrics.SessionAttempt()
	statusTopic := s.Topic(StatusTopic)
	err := s.Session.Connect(Will{
		Topic:    statusTopic,
		Payload:  []byte(StatusOffline),
		Retained: true,
	})
	if err != nil {
		glog.Warningf("mqtt connect as %s: %v", s.clientID, err)
		return false
	}
	s.onConnected()
	return true
}

// onConnected announces the session and restores subscriptions.
func (s *Supervisor) onConnected() {
	if err := s.Session.Publish(s.Topic(StatusTopic), []byte(StatusOnline), true); err != nil {
		glog.Warningf("mqtt publish status: %v", err)
	}
	for _, topic := range s.subs {
		if err := s.Session.Subscribe(s.Topic(topic), s.enqueue); err != nil {
			glog.Warningf("mqtt subscribe %s: %v", topic, err)
		}
	}
	s.connected.Set(true)
	s.Metrics.SetSessionConnected(true)
	glog.Infof("mqtt connected as %s, base topic %s", s.clientID, s.baseTopic)
}

// IsConnected returns the last observed session status.
func (s *Supervisor) IsConnected() bool {
	return s.connected.IsSet()
}

// Publish publishes payload to topic, resolved with Topic.
func (s *Supervisor) Publish(topic string, payload []byte, retained bool) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return s.Session.Publish(s.Topic(topic), payload, retained)
}

// Subscribe adds a topic, resolved with Topic. It survives reconnects.
// Call it from the main cycle.
func (s *Supervisor) Subscribe(topic string) error {
	for _, t := range s.subs {
		if t == topic {
			return nil
		}
	}
	s.subs = append(s.subs, topic)
	if !s.IsConnected() {
		return nil
	}
	return s.Session.Subscribe(s.Topic(topic), s.enqueue)
}

// Log mirrors a log line to {base}/log. Dropped silently when offline.
func (s *Supervisor) Log(line string) {
	if s.IsConnected() {
		if err := s.Publish(LogTopic, []byte(line), false); err != nil {
			glog.V(1).Infof("mqtt log mirror: %v", err)
		}
	}
}

// Close publishes the offline status and disconnects gracefully, so
// the broker does not emit the last-will.
func (s *Supervisor) Close() error {
	if !s.IsConnected() {
		return nil
	}
	err := s.Session.Publish(s.Topic(StatusTopic), []byte(StatusOffline), true)
	s.Session.Disconnect()
	s.connected.Set(false)
	s.Metrics.SetSessionConnected(false)
	return err
}

// IsResetCommand reports whether payload is the reserved reset command.
func IsResetCommand(payload []byte) bool {
	return strings.EqualFold(strings.TrimSpace(string(payload)), ResetCommand)
}

func (s *Supervisor) enqueue(topic string, payload []byte) {
	select {
	case s.inbox <- message{topic: topic, payload: payload}:
		if fn := s.Wake; fn != nil {
			fn()
		}
	default:
		s.Metrics.MessageDropped()
		glog.Warningf("mqtt inbox full, dropped message on %s", topic)
	}
}

func (s *Supervisor) drain() {
	for n := cap(s.inbox); n > 0; n-- {
		select {
		case msg := <-s.inbox:
			s.dispatch(msg)
		default:
			return
		}
	}
}

func (s *Supervisor) dispatch(msg message) {
	s.Metrics.MessageReceived()
	glog.V(2).Infof("RCV %q", msg.topic)
	if IsResetCommand(msg.payload) {
		if s.Reset != nil {
			s.Reset.Request(reset.SourceRemote)
		}
		return
	}
	if h := s.Handler; h != nil {
		h.OnMessage(msg.topic, msg.payload)
	}
}

func (s *Supervisor) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now()
	}
	return time.Now()
}
