package messaging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const memoryBuffer = 256

type memorySub struct {
	filter string
	ch     chan Message
	done   chan struct{}
}

// MemoryBus is an in-process Bus. Each subscription has its own delivery
// goroutine, so per-subscription order follows publish order.
type MemoryBus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   []*memorySub
	closed bool
	wg     sync.WaitGroup
}

// NewMemoryBus creates a connected in-process bus.
func NewMemoryBus(logger *zap.Logger) *MemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBus{logger: logger}
}

// Publish delivers payload to every matching subscription. A subscriber
// whose buffer is full loses the message.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...), Received: time.Now()}
	for _, s := range b.subs {
		if !Match(s.filter, topic) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			b.logger.Warn("subscriber buffer full, dropping message",
				zap.String("filter", s.filter), zap.String("topic", topic))
		}
	}
	return nil
}

// Subscribe registers h for filter.
func (b *MemoryBus) Subscribe(filter string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	s := &memorySub{filter: filter, ch: make(chan Message, memoryBuffer), done: make(chan struct{})}
	b.subs = append(b.subs, s)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case msg := <-s.ch:
				h(msg)
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

// OnConnect runs fn immediately; the memory bus is always connected.
func (b *MemoryBus) OnConnect(fn func()) {
	fn()
}

// Connected reports whether the bus is open.
func (b *MemoryBus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close stops every delivery goroutine. Undelivered messages are dropped.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.done)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
