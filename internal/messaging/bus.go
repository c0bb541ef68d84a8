package messaging

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// Message is one inbound delivery.
type Message struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Handler consumes messages for a subscription. Handlers run on the bus's
// delivery goroutine and must return quickly.
type Handler func(Message)

// Bus is a topic based publish/subscribe transport.
type Bus interface {
	// Publish sends payload to topic. Transports may buffer while
	// disconnected.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers h for every topic matching filter. Filters use
	// MQTT wildcards ('+' for one level, '#' for the remainder).
	Subscribe(filter string, h Handler) error
	// OnConnect registers fn to run after every (re)connect.
	OnConnect(fn func())
	Connected() bool
	Close() error
}

// Match reports whether topic matches the MQTT filter.
func Match(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")

	for i, f := range fs {
		if f == "#" {
			return i == len(fs)-1
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}

// Wildcard returns the topic level matched by the first '+' in filter, or
// "" when the filter has none or does not match.
func Wildcard(filter, topic string) string {
	if !Match(filter, topic) {
		return ""
	}
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "+" {
			return ts[i]
		}
	}
	return ""
}
