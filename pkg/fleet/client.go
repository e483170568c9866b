// Package fleet talks to the props attached to a broker from an
// operator's machine: discovery through retained status topics,
// remote reset and watching device logs.
package fleet

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robotalks/prop.go/pkg/pubsub"
)

// DefaultDiscoverTimeout is how long retained statuses are collected.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// PropInfo is a discovered prop.
type PropInfo struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

// Online reports whether the prop announced itself online.
func (p PropInfo) Online() bool {
	return p.Status == pubsub.StatusOnline
}

// Message is a message published by a prop.
type Message struct {
	DeviceID string `json:"device_id"`
	SubTopic string `json:"sub_topic"`
	Payload  string `json:"payload"`
}

// Client is an operator's broker connection.
type Client struct {
	Session         pubsub.Session
	Prefix          string
	DiscoverTimeout time.Duration

	lock sync.Mutex
}

// NewClient creates a Client from a broker URL whose path is the
// topic prefix, e.g. mqtt://host:1883/SP/.
func NewClient(brokerURL string) (*Client, error) {
	opts, prefix, err := pubsub.ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = pubsub.DefaultTopicPrefix
	}
	return &Client{
		Session:         pubsub.NewPahoSession(opts),
		Prefix:          prefix,
		DiscoverTimeout: DefaultDiscoverTimeout,
	}, nil
}

// Connect connects to the broker without a last-will.
func (c *Client) Connect() error {
	if c.Session.Connected() {
		return nil
	}
	return c.Session.Connect(pubsub.Will{})
}

// Close disconnects.
func (c *Client) Close() {
	c.Session.Disconnect()
}

// Topic returns the topic of sub under device.
func (c *Client) Topic(deviceID, sub string) string {
	return c.Prefix + deviceID + "/" + sub
}

// Parse splits a topic into device and sub-topic.
func (c *Client) Parse(topic string) (Message, bool) {
	rest, ok := strings.CutPrefix(topic, c.Prefix)
	if !ok {
		return Message{}, false
	}
	deviceID, sub, ok := strings.Cut(rest, "/")
	if !ok || deviceID == "" || strings.Contains(sub, "/") {
		return Message{}, false
	}
	return Message{DeviceID: deviceID, SubTopic: sub}, true
}

// Discover collects the retained status of every prop.
func (c *Client) Discover(ctx context.Context) ([]PropInfo, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}
	found := make(map[string]string)
	err := c.Session.Subscribe(c.Topic("+", pubsub.StatusTopic), func(topic string, payload []byte) {
		if msg, ok := c.Parse(topic); ok {
			c.lock.Lock()
			found[msg.DeviceID] = string(payload)
			c.lock.Unlock()
		}
	})
	if err != nil {
		return nil, err
	}
	timeout := c.DiscoverTimeout
	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	select {
	case <-time.After(timeout):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	props := make([]PropInfo, 0, len(found))
	for id, status := range found {
		props = append(props, PropInfo{DeviceID: id, Status: status})
	}
	sort.Slice(props, func(i, j int) bool { return props[i].DeviceID < props[j].DeviceID })
	return props, nil
}

// Send publishes a command payload to a prop.
func (c *Client) Send(deviceID, payload string) error {
	if err := c.Connect(); err != nil {
		return err
	}
	return c.Session.Publish(c.Topic(deviceID, pubsub.CommandTopic), []byte(payload), false)
}

// Reset sends the reserved reset command.
func (c *Client) Reset(deviceID string) error {
	return c.Send(deviceID, pubsub.ResetCommand)
}

// Watch delivers status and log messages of deviceID, "+" for all.
// fn is called on the client's goroutine.
func (c *Client) Watch(deviceID string, fn func(Message)) error {
	if err := c.Connect(); err != nil {
		return err
	}
	handler := func(topic string, payload []byte) {
		if msg, ok := c.Parse(topic); ok {
			msg.Payload = string(payload)
			fn(msg)
		}
	}
	for _, sub := range []string{pubsub.StatusTopic, pubsub.LogTopic} {
		if err := c.Session.Subscribe(c.Topic(deviceID, sub), handler); err != nil {
			return err
		}
	}
	return nil
}
