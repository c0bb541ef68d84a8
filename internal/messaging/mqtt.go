package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
	// BufferSize bounds the outbox used while disconnected. The oldest
	// message is dropped when it is full.
	BufferSize int64
}

type outbound struct {
	topic   string
	payload []byte
}

// MQTTBus is a Bus backed by an MQTT broker. It reconnects on its own,
// restores subscriptions on every connect and flushes messages published
// while the link was down.
type MQTTBus struct {
	opts   MQTTOptions
	client mqtt.Client
	logger *zap.Logger
	outbox *queue.Queue

	mu    sync.Mutex
	subs  map[string]Handler
	hooks []func()
}

// NewMQTT creates a disconnected bus. Call Connect to dial the broker.
func NewMQTT(opts MQTTOptions, logger *zap.Logger) *MQTTBus {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &MQTTBus{
		opts:   opts,
		logger: logger.With(zap.String("broker", opts.Broker)),
		outbox: queue.New(opts.BufferSize),
		subs:   make(map[string]Handler),
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetMaxReconnectInterval(10 * time.Second).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOrderMatters(false).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onLost).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			b.logger.Debug("reconnecting to broker")
		})
	b.client = mqtt.NewClient(co)
	return b
}

// Connect dials the broker and waits for the first session. If ctx ends
// first the client keeps retrying in the background.
func (b *MQTTBus) Connect(ctx context.Context) error {
	tok := b.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends payload, or buffers it while the broker is unreachable.
func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.outbox.Disposed() {
		return ErrClosed
	}
	if !b.client.IsConnectionOpen() {
		return b.enqueue(outbound{topic: topic, payload: payload})
	}

	tok := b.client.Publish(topic, b.opts.QoS, false, payload)
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers h for filter. The subscription is restored after
// every reconnect.
func (b *MQTTBus) Subscribe(filter string, h Handler) error {
	if b.outbox.Disposed() {
		return ErrClosed
	}
	b.mu.Lock()
	b.subs[filter] = h
	b.mu.Unlock()

	if !b.client.IsConnectionOpen() {
		return nil
	}
	return b.subscribe(filter, h)
}

// OnConnect registers fn to run after every successful connect.
func (b *MQTTBus) OnConnect(fn func()) {
	b.mu.Lock()
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()

	if b.client.IsConnectionOpen() {
		fn()
	}
}

// Connected reports whether the broker link is up.
func (b *MQTTBus) Connected() bool {
	return b.client.IsConnectionOpen()
}

// Close disconnects from the broker and drops anything still buffered.
func (b *MQTTBus) Close() error {
	if b.outbox.Disposed() {
		return nil
	}
	if n := b.outbox.Len(); n > 0 {
		b.logger.Warn("dropping buffered messages on close", zap.Int64("count", n))
	}
	b.outbox.Dispose()
	b.client.Disconnect(250)
	return nil
}

func (b *MQTTBus) subscribe(filter string, h Handler) error {
	tok := b.client.Subscribe(filter, b.opts.QoS, func(_ mqtt.Client, m mqtt.Message) {
		h(Message{Topic: m.Topic(), Payload: m.Payload(), Received: time.Now()})
	})
	if !tok.WaitTimeout(b.opts.ConnectTimeout) {
		return fmt.Errorf("mqtt subscribe %s: timed out", filter)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", filter, err)
	}
	return nil
}

func (b *MQTTBus) enqueue(msg outbound) error {
	if b.outbox.Len() >= b.opts.BufferSize {
		taken := 0
		// drop the oldest
		_, _ = b.outbox.TakeUntil(func(interface{}) bool {
			taken++
			return taken == 1
		})
		b.logger.Warn("outbox full, dropped oldest message")
	}
	if err := b.outbox.Put(msg); err != nil {
		if errors.Is(err, queue.ErrDisposed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (b *MQTTBus) flush() {
	items, err := b.outbox.TakeUntil(func(interface{}) bool { return true })
	if err != nil || len(items) == 0 {
		return
	}
	b.logger.Info("flushing buffered messages", zap.Int("count", len(items)))
	for _, it := range items {
		msg := it.(outbound)
		tok := b.client.Publish(msg.topic, b.opts.QoS, false, msg.payload)
		if !tok.WaitTimeout(b.opts.ConnectTimeout) || tok.Error() != nil {
			b.logger.Warn("buffered publish failed", zap.String("topic", msg.topic), zap.Error(tok.Error()))
		}
	}
}

func (b *MQTTBus) onConnect(mqtt.Client) {
	b.logger.Info("connected to broker")

	b.mu.Lock()
	subs := make(map[string]Handler, len(b.subs))
	for f, h := range b.subs {
		subs[f] = h
	}
	hooks := append([]func(){}, b.hooks...)
	b.mu.Unlock()

	for f, h := range subs {
		if err := b.subscribe(f, h); err != nil {
			b.logger.Error("resubscribe failed", zap.String("filter", f), zap.Error(err))
		}
	}
	b.flush()
	for _, fn := range hooks {
		fn()
	}
}

func (b *MQTTBus) onLost(_ mqtt.Client, err error) {
	b.logger.Warn("broker connection lost", zap.Error(err))
}
