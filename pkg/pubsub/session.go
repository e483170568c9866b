package pubsub

import "strings"

// MessageFunc receives a message from a subscription.
type MessageFunc func(topic string, payload []byte)

// Will is the message the broker publishes on our behalf when the
// session ends without a graceful disconnect.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Session is one connection to a broker. Connect may block, but only
// for a bounded time.
type Session interface {
	Connect(will Will) error
	Connected() bool
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, fn MessageFunc) error
	Disconnect()
}

// MatchTopic matches topic with pattern.
func MatchTopic(topic, pattern string) bool {
	tokensT, tokensP := strings.Split(topic, "/"), strings.Split(pattern, "/")
	for i, token := range tokensP {
		if token == "#" && i+1 == len(tokensP) {
			return true
		}
		if i >= len(tokensT) {
			return false
		}
		if token != "+" && token != tokensT[i] {
			return false
		}
	}
	return len(tokensP) == len(tokensT)
}
