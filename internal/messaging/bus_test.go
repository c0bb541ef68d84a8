package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"robot/intent", "robot/intent", true},
		{"robot/intent", "robot/state", false},
		{"robot/+/heartbeat", "robot/asr/heartbeat", true},
		{"robot/+/heartbeat", "robot/asr/x/heartbeat", false},
		{"robot/service/+/heartbeat", "robot/service/tts/heartbeat", true},
		{"robot/#", "robot/telemetry/smoke", true},
		{"robot/#", "robot", true},
		{"robot/telemetry/#", "robot/state", false},
		{"robot/intent", "robot/intent/extra", false},
		{"robot/intent/extra", "robot/intent", false},
		{"+", "robot", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"|"+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.filter, tt.topic))
		})
	}
}

func TestWildcard(t *testing.T) {
	assert.Equal(t, "asr", Wildcard("robot/service/+/heartbeat", "robot/service/asr/heartbeat"))
	assert.Equal(t, "", Wildcard("robot/service/+/heartbeat", "robot/state"))
	assert.Equal(t, "", Wildcard("robot/state", "robot/state"))
}

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(m Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *collector) payloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = string(m.Payload)
	}
	return out
}

func TestMemoryBusFanOutInOrder(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var exact, wild, other collector
	require.NoError(t, bus.Subscribe("robot/state", exact.handle))
	require.NoError(t, bus.Subscribe("robot/#", wild.handle))
	require.NoError(t, bus.Subscribe("robot/intent", other.handle))

	ctx := context.Background()
	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, bus.Publish(ctx, "robot/state", []byte(p)))
	}

	assert.Eventually(t, func() bool { return len(exact.payloads()) == 3 && len(wild.payloads()) == 3 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3"}, exact.payloads())
	assert.Equal(t, []string{"1", "2", "3"}, wild.payloads())
	assert.Empty(t, other.payloads())
}

func TestMemoryBusCopiesPayload(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var c collector
	require.NoError(t, bus.Subscribe("t", c.handle))

	buf := []byte("abc")
	require.NoError(t, bus.Publish(context.Background(), "t", buf))
	buf[0] = 'x'

	assert.Eventually(t, func() bool { return len(c.payloads()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "abc", c.payloads()[0])
}

func TestMemoryBusClose(t *testing.T) {
	bus := NewMemoryBus(nil)
	assert.True(t, bus.Connected())

	require.NoError(t, bus.Subscribe("t", func(Message) {}))
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.False(t, bus.Connected())
	assert.ErrorIs(t, bus.Publish(context.Background(), "t", nil), ErrClosed)
	assert.ErrorIs(t, bus.Subscribe("t", func(Message) {}), ErrClosed)
}

func TestMemoryBusOnConnectRunsImmediately(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	called := false
	bus.OnConnect(func() { called = true })
	assert.True(t, called)
}

func TestMQTTBuffersWhileDisconnected(t *testing.T) {
	// never connected: every publish lands in the outbox
	bus := NewMQTT(MQTTOptions{Broker: "tcp://127.0.0.1:1", ClientID: "test", BufferSize: 2}, nil)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, "robot/state", []byte("1")))
	require.NoError(t, bus.Publish(ctx, "robot/state", []byte("2")))
	require.NoError(t, bus.Publish(ctx, "robot/state", []byte("3")))
	assert.False(t, bus.Connected())
	assert.Equal(t, int64(2), bus.outbox.Len())

	items, err := bus.outbox.TakeUntil(func(interface{}) bool { return true })
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2", string(items[0].(outbound).payload))
	assert.Equal(t, "3", string(items[1].(outbound).payload))

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(ctx, "robot/state", []byte("4")), ErrClosed)
}
