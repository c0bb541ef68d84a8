package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/arcade/internal/infrastructure/config"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/arcade/internal/shared/id"
	"github.com/GriffinCanCode/arcade/internal/shared/types"
)

type intentRecorder struct {
	mu      sync.Mutex
	intents []types.Intent
	beats   []string
}

func (r *intentRecorder) handlers() Handlers {
	return Handlers{
		Intent: func(in types.Intent) {
			r.mu.Lock()
			r.intents = append(r.intents, in)
			r.mu.Unlock()
		},
		Heartbeat: func(svc string) {
			r.mu.Lock()
			r.beats = append(r.beats, svc)
			r.mu.Unlock()
		},
	}
}

func (r *intentRecorder) snapshot() ([]types.Intent, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Intent(nil), r.intents...), append([]string(nil), r.beats...)
}

func newTestGateway(t *testing.T, rps int) (*Gateway, *MemoryBus, *monitoring.Metrics) {
	t.Helper()
	bus := NewMemoryBus(nil)
	t.Cleanup(func() { bus.Close() })
	metrics := monitoring.NewMetrics()
	g := NewGateway(bus, GatewayOptions{
		Topics:            config.Default().Topics,
		RequestsPerSecond: rps,
		Burst:             rps,
		Metrics:           metrics,
	}, nil)
	return g, bus, metrics
}

func TestDecodeIntent(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType types.IntentType
		wantName string
		wantConf float64
		wantErr  bool
	}{
		{"current", `{"type":"LAUNCH_GAME","game_name":"notepad","confidence":0.9}`, types.IntentLaunchGame, "notepad", 0.9, false},
		{"legacy game field", `{"type":"launch_game","game":"记事本"}`, types.IntentLaunchGame, "记事本", 1.0, false},
		{"text only", `{"type":"LAUNCH_GAME","text":"open tetris","confidence":0.4}`, types.IntentLaunchGame, "open tetris", 0.4, false},
		{"back home", `{"type":"back_home"}`, types.IntentBackHome, "", 1.0, false},
		{"confirm flag", `{"confirm":true}`, types.IntentConfirmYes, "", 1.0, false},
		{"decline flag", `{"confirm":false}`, types.IntentConfirmNo, "", 1.0, false},
		{"unknown type", `{"type":"DANCE"}`, "", "", 0, true},
		{"garbage", `not json`, "", "", 0, true},
		{"oversized", `{"type":"LAUNCH_GAME","text":"` + strings.Repeat("a", MaxPayloadBytes) + `"}`, "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := DecodeIntent([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, in.Type)
			assert.Equal(t, tt.wantName, in.Name())
			assert.InDelta(t, tt.wantConf, in.Confidence, 1e-9)
			assert.True(t, id.IsValid(in.ID))
			assert.False(t, in.ReceivedAt.IsZero())
		})
	}
}

func TestGatewayDeliversIntents(t *testing.T) {
	g, bus, metrics := newTestGateway(t, 0)
	var rec intentRecorder
	require.NoError(t, g.Start(rec.handlers()))

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, "robot/intent", []byte(`{"type":"LAUNCH_GAME","game_name":"notepad","source":"asr"}`)))
	require.NoError(t, bus.Publish(ctx, "robot/intent", []byte(`{"type":"BOGUS"}`)))
	require.NoError(t, bus.Publish(ctx, "robot/overlay/confirm", []byte(`{"confirm":true}`)))
	// launch intents are not accepted on the confirm topic
	require.NoError(t, bus.Publish(ctx, "robot/overlay/confirm", []byte(`{"type":"LAUNCH_GAME","game":"x"}`)))
	require.NoError(t, bus.Publish(ctx, "robot/service/asr/heartbeat", []byte(`{}`)))

	assert.Eventually(t, func() bool {
		intents, beats := rec.snapshot()
		return len(intents) == 2 && len(beats) == 1
	}, time.Second, 5*time.Millisecond)

	intents, beats := rec.snapshot()
	got := []types.IntentType{intents[0].Type, intents[1].Type}
	assert.ElementsMatch(t, []types.IntentType{types.IntentLaunchGame, types.IntentConfirmYes}, got)
	for _, in := range intents {
		if in.Type == types.IntentLaunchGame {
			assert.Equal(t, "asr", in.Source)
		} else {
			assert.Equal(t, "bus", in.Source)
		}
	}
	assert.Equal(t, []string{"asr"}, beats)

	assert.Eventually(t, func() bool { return metrics.Snapshot().RejectedIntents == 2 },
		time.Second, 5*time.Millisecond)
}

func TestGatewayRateLimit(t *testing.T) {
	g, bus, metrics := newTestGateway(t, 2)
	var rec intentRecorder
	require.NoError(t, g.Start(rec.handlers()))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), "robot/intent", []byte(`{"type":"QUIT"}`)))
	}

	assert.Eventually(t, func() bool {
		intents, _ := rec.snapshot()
		return len(intents) >= 2 && metrics.Snapshot().RejectedIntents >= 2
	}, time.Second, 5*time.Millisecond)

	intents, _ := rec.snapshot()
	assert.Less(t, len(intents), 5)
}

func TestGatewayPublishes(t *testing.T) {
	g, bus, _ := newTestGateway(t, 0)

	var states, overlays, telemetry collector
	require.NoError(t, bus.Subscribe("robot/state", states.handle))
	require.NoError(t, bus.Subscribe("robot/overlay", overlays.handle))
	require.NoError(t, bus.Subscribe("robot/telemetry/#", telemetry.handle))

	ctx := context.Background()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, g.PublishState(ctx, types.StateEvent{
		Seq: 7, State: types.StateRunning, Previous: types.StateLaunching, GameID: "notepad", Timestamp: ts,
	}))
	require.NoError(t, g.PublishOverlay(ctx, types.Toast("busy", "busy")))
	require.NoError(t, g.PublishTelemetry(ctx, "smoke", map[string]string{"hello": "world"}))

	assert.Eventually(t, func() bool {
		return len(states.payloads()) == 1 && len(overlays.payloads()) == 1 && len(telemetry.payloads()) == 1
	}, time.Second, 5*time.Millisecond)

	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(states.payloads()[0]), &ev))
	assert.Equal(t, "RUNNING", ev["state"])
	assert.Equal(t, "LAUNCHING", ev["previous"])
	assert.Equal(t, "notepad", ev["game_id"])
	assert.EqualValues(t, 7, ev["seq"])

	var ov map[string]any
	require.NoError(t, json.Unmarshal([]byte(overlays.payloads()[0]), &ov))
	assert.Equal(t, "toast", ov["kind"])

	assert.JSONEq(t, `{"hello":"world"}`, telemetry.payloads()[0])
	assert.True(t, g.Connected())
}
