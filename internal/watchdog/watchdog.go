package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/infrastructure/config"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/logging"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/arcade/internal/supervisor"
)

// Source exposes the supervised child.
type Source interface {
	Current() supervisor.Handle
}

// Sink receives watchdog findings. Implementations must not block.
type Sink interface {
	// NotifyExit reports a child that exited without being asked to.
	NotifyExit(h supervisor.Handle)
	// NotifyFatal reports an auxiliary service that could not be recovered.
	NotifyFatal(service string, err error)
}

// Options configures a Watchdog.
type Options struct {
	Tick            time.Duration
	ServiceInterval time.Duration
	MaxRestarts     int
	RestartDelay    time.Duration
	Services        []config.ServiceConfig
	Metrics         *monitoring.Metrics
}

// Watchdog ticks independently of the orchestrator. It never changes state
// itself; it only reports to the sink.
type Watchdog struct {
	src     Source
	sink    Sink
	opts    Options
	logger  *zap.Logger
	metrics *monitoring.Metrics

	services  []*auxService
	heartbeat cmap.ConcurrentMap[string, time.Time]
	checking  atomic.Bool

	mu       sync.Mutex
	reported string
}

// New creates a watchdog over src reporting to sink.
func New(src Source, sink Sink, opts Options, logger *zap.Logger) *Watchdog {
	if opts.Tick <= 0 {
		opts.Tick = 250 * time.Millisecond
	}
	if opts.ServiceInterval <= 0 {
		opts.ServiceInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watchdog{
		src:       src,
		sink:      sink,
		opts:      opts,
		logger:    logger,
		metrics:   opts.Metrics,
		heartbeat: cmap.New[time.Time](),
	}
	now := time.Now()
	for _, cfg := range opts.Services {
		w.services = append(w.services, newAuxService(cfg, opts, logger))
		// startup grace for heartbeat services
		w.heartbeat.Set(cfg.Name, now)
	}
	return w
}

// Run ticks until ctx is done.
func (w *Watchdog) Run(ctx context.Context) error {
	tick := time.NewTicker(w.opts.Tick)
	defer tick.Stop()

	var svc <-chan time.Time
	if len(w.services) > 0 {
		t := time.NewTicker(w.opts.ServiceInterval)
		defer t.Stop()
		svc = t.C
	}

	w.logger.Info("watchdog started",
		zap.Duration("tick", w.opts.Tick),
		zap.Int("services", len(w.services)))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog stopped")
			return ctx.Err()
		case <-tick.C:
			w.CheckChild()
		case <-svc:
			if w.checking.CompareAndSwap(false, true) {
				go func() {
					defer w.checking.Store(false)
					w.CheckServices(ctx)
				}()
			}
		}
	}
}

// CheckChild reports an unrequested exit of the current child once.
func (w *Watchdog) CheckChild() {
	h := w.src.Current()
	if h == nil || !h.Exited() || h.Expected() {
		return
	}

	w.mu.Lock()
	if w.reported == h.ID() {
		w.mu.Unlock()
		return
	}
	w.reported = h.ID()
	w.mu.Unlock()

	w.logger.Warn("child exited unexpectedly",
		logging.GameID(h.GameID()),
		logging.HandleID(h.ID()),
		zap.Int("pid", h.PID()),
		zap.Int("exit_code", h.ExitCode()))
	w.sink.NotifyExit(h)
}

// Heartbeat records liveness for a heartbeat-monitored service.
func (w *Watchdog) Heartbeat(service string) {
	w.heartbeat.Set(service, time.Now())
}

// LastSeen returns the last heartbeat of service.
func (w *Watchdog) LastSeen(service string) (time.Time, bool) {
	return w.heartbeat.Get(service)
}

// CheckServices runs one health round over every auxiliary service.
func (w *Watchdog) CheckServices(ctx context.Context) {
	for _, s := range w.services {
		healthy, err := s.check(ctx, w)
		if healthy {
			s.policy.Healthy()
			continue
		}
		w.handleUnhealthy(ctx, s, err)
	}
}
