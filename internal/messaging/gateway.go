package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/arcade/internal/infrastructure/config"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/arcade/internal/shared/id"
	"github.com/GriffinCanCode/arcade/internal/shared/types"
)

// Rejection reasons for inbound messages.
const (
	RejectRateLimited = "rate_limited"
	RejectMalformed   = "malformed"
	RejectUnsupported = "unsupported"
)

// MaxPayloadBytes bounds an inbound intent payload.
const MaxPayloadBytes = 16 << 10

var (
	// ErrUnsupportedIntent is returned for payloads with an unknown type.
	ErrUnsupportedIntent = errors.New("unsupported intent type")
	// ErrPayloadTooLarge is returned for payloads above MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("intent payload too large")
)

// Handlers receive decoded inbound traffic.
type Handlers struct {
	Intent    func(types.Intent)
	Heartbeat func(service string)
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	Topics config.TopicConfig
	// RequestsPerSecond limits inbound intents; zero disables limiting.
	RequestsPerSecond int
	Burst             int
	Metrics           *monitoring.Metrics
}

// Gateway translates between bus payloads and orchestrator types.
type Gateway struct {
	bus     Bus
	topics  config.TopicConfig
	limiter *rate.Limiter
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewGateway wraps bus.
func NewGateway(bus Bus, opts GatewayOptions, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		bus:     bus,
		topics:  opts.Topics,
		metrics: opts.Metrics,
		logger:  logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = opts.RequestsPerSecond
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return g
}

// Start subscribes to every inbound topic.
func (g *Gateway) Start(h Handlers) error {
	intentTopic := g.topics.Topic(g.topics.Intent)
	confirmTopic := g.topics.Topic(g.topics.OverlayConfirm)

	if err := g.bus.Subscribe(intentTopic, func(m Message) { g.receive(m, false, h) }); err != nil {
		return fmt.Errorf("subscribe %s: %w", intentTopic, err)
	}
	if err := g.bus.Subscribe(confirmTopic, func(m Message) { g.receive(m, true, h) }); err != nil {
		return fmt.Errorf("subscribe %s: %w", confirmTopic, err)
	}

	if h.Heartbeat != nil && g.topics.Heartbeat != "" {
		filter := g.topics.Topic(g.topics.Heartbeat)
		err := g.bus.Subscribe(filter, func(m Message) {
			g.metrics.RecordBusMessage("in", filter)
			if svc := Wildcard(filter, m.Topic); svc != "" {
				h.Heartbeat(svc)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", filter, err)
		}
	}

	g.logger.Info("gateway subscribed",
		zap.String("intent", intentTopic),
		zap.String("confirm", confirmTopic))
	return nil
}

func (g *Gateway) receive(m Message, confirm bool, h Handlers) {
	g.metrics.RecordBusMessage("in", m.Topic)

	if g.limiter != nil && !g.limiter.Allow() {
		g.metrics.RecordRejected(RejectRateLimited)
		g.logger.Warn("intent rate limited", zap.String("topic", m.Topic))
		return
	}

	in, err := DecodeIntent(m.Payload)
	if err != nil {
		reason := RejectMalformed
		if errors.Is(err, ErrUnsupportedIntent) {
			reason = RejectUnsupported
		}
		g.metrics.RecordRejected(reason)
		g.logger.Warn("dropping inbound intent", zap.String("topic", m.Topic), zap.Error(err))
		return
	}
	if confirm && in.Type != types.IntentConfirmYes && in.Type != types.IntentConfirmNo {
		g.metrics.RecordRejected(RejectUnsupported)
		g.logger.Warn("non-confirm intent on confirm topic", zap.String("type", string(in.Type)))
		return
	}

	if in.Source == "" {
		in.Source = "bus"
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = m.Received
	}
	g.metrics.RecordIntent(string(in.Type), in.Source)
	if h.Intent != nil {
		h.Intent(in)
	}
}

// DecodeIntent parses an inbound payload and stamps it with an id.
func DecodeIntent(payload []byte) (types.Intent, error) {
	if len(payload) > MaxPayloadBytes {
		return types.Intent{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	var in types.Intent
	if err := sonic.Unmarshal(payload, &in); err != nil {
		return types.Intent{}, fmt.Errorf("decode intent: %w", err)
	}
	if !in.Type.Valid() {
		return types.Intent{}, fmt.Errorf("%w: %q", ErrUnsupportedIntent, in.Type)
	}
	if in.ID == "" {
		in.ID = id.NewIntentID().String()
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = time.Now()
	}
	return in, nil
}

// PublishState publishes a state event.
func (g *Gateway) PublishState(ctx context.Context, ev types.StateEvent) error {
	return g.publish(ctx, g.topics.Topic(g.topics.State), ev)
}

// PublishOverlay publishes an overlay directive.
func (g *Gateway) PublishOverlay(ctx context.Context, d types.OverlayDirective) error {
	return g.publish(ctx, g.topics.Topic(g.topics.Overlay), d)
}

// PublishTelemetry publishes v under the telemetry prefix.
func (g *Gateway) PublishTelemetry(ctx context.Context, name string, v any) error {
	return g.publish(ctx, g.topics.Topic(g.topics.TelemetryPrefix+name), v)
}

// OnConnect runs fn after every bus (re)connect.
func (g *Gateway) OnConnect(fn func()) {
	g.bus.OnConnect(fn)
}

// Connected reports the transport's link state.
func (g *Gateway) Connected() bool {
	return g.bus.Connected()
}

func (g *Gateway) publish(ctx context.Context, topic string, v any) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	if err := g.bus.Publish(ctx, topic, payload); err != nil {
		return err
	}
	g.metrics.RecordBusMessage("out", topic)
	return nil
}
