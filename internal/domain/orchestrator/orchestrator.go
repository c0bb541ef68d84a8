package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/domain/intent"
	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/health"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/arcade/internal/shared/types"
	"github.com/GriffinCanCode/arcade/internal/supervisor"
)

var (
	// ErrStopped is returned once the actor has exited.
	ErrStopped = errors.New("orchestrator stopped")
	// ErrQueueFull is returned when an intent cannot be queued.
	ErrQueueFull = errors.New("command queue full")
)

// Supervisor spawns and tears down the game process.
type Supervisor interface {
	Launch(ctx context.Context, spec supervisor.Spec) (supervisor.Handle, error)
	GracefulQuit(ctx context.Context, h supervisor.Handle, timeout time.Duration) error
	ForceKill(ctx context.Context, h supervisor.Handle) error
	WaitExit(ctx context.Context, h supervisor.Handle) (int, error)
	Current() supervisor.Handle
}

// Prober waits for a launching game to become ready.
type Prober interface {
	Probe(ctx context.Context, entry manifest.Entry, timeout time.Duration, alive func() bool) health.Result
}

// Guard turns a catalog entry into a vetted launch spec.
type Guard interface {
	Prepare(entry manifest.Entry) (supervisor.Spec, error)
}

// Classifier routes intents.
type Classifier interface {
	Classify(in types.Intent) intent.Decision
}

// Catalog looks up entries by id.
type Catalog interface {
	Get(id string) (manifest.Entry, bool)
}

// Publisher emits events to the bus.
type Publisher interface {
	PublishState(ctx context.Context, ev types.StateEvent) error
	PublishOverlay(ctx context.Context, d types.OverlayDirective) error
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Supervisor Supervisor
	Prober     Prober
	Guard      Guard
	Router     Classifier
	Catalog    Catalog
	Publisher  Publisher
}

// Options holds timeouts and sizing.
type Options struct {
	LaunchTimeout  time.Duration
	QuitTimeout    time.Duration
	ConfirmTimeout time.Duration
	// CrashRecovery bounds CRASHED; the whole crash path stays under 5s.
	CrashRecovery time.Duration
	// QuitGrace is added to the quit timeout for the QUITTING timer so the
	// supervisor's own escalation normally wins.
	QuitGrace   time.Duration
	KillRetries int
	History     int
	Workers     int
	QueueSize   int
	Metrics     *monitoring.Metrics
}

// DefaultOptions returns the stock timeouts.
func DefaultOptions() Options {
	return Options{
		LaunchTimeout:  10 * time.Second,
		QuitTimeout:    3 * time.Second,
		ConfirmTimeout: 8 * time.Second,
		CrashRecovery:  4 * time.Second,
		QuitGrace:      500 * time.Millisecond,
		KillRetries:    3,
		History:        100,
		Workers:        8,
		QueueSize:      256,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.LaunchTimeout <= 0 {
		o.LaunchTimeout = def.LaunchTimeout
	}
	if o.QuitTimeout <= 0 {
		o.QuitTimeout = def.QuitTimeout
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = def.ConfirmTimeout
	}
	if o.CrashRecovery <= 0 {
		o.CrashRecovery = def.CrashRecovery
	}
	if o.QuitGrace <= 0 {
		o.QuitGrace = def.QuitGrace
	}
	if o.KillRetries <= 0 {
		o.KillRetries = def.KillRetries
	}
	if o.History <= 0 {
		o.History = def.History
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = def.QueueSize
	}
}

// Orchestrator is the session state machine.
type Orchestrator struct {
	deps    Deps
	opts    Options
	metrics *monitoring.Metrics
	logger  *zap.Logger

	pool   *ants.Pool
	cmds   chan command
	outbox chan any

	// runCtx parents every per-state context; set by Run.
	runCtx  context.Context
	stopped chan struct{}
	runOnce sync.Once

	mu       sync.Mutex
	state    types.State
	gameID   string
	reason   string
	since    time.Time
	seq      uint64
	epoch    uint64
	opCtx    context.Context
	opCancel context.CancelFunc
	timer    *time.Timer

	// session
	entry        *manifest.Entry
	handle       supervisor.Handle
	launchTimer  *monitoring.Timer
	killAttempts int

	// AWAITING_CONFIRM
	pending    *manifest.Entry
	candidates []manifest.Candidate

	draining bool
	drained  chan struct{}

	history *history
}

// New creates an orchestrator in IDLE. Call Run to start it.
func New(deps Deps, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Supervisor == nil || deps.Prober == nil || deps.Guard == nil ||
		deps.Router == nil || deps.Catalog == nil || deps.Publisher == nil {
		return nil, errors.New("orchestrator: missing dependency")
	}
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		deps:    deps,
		opts:    opts,
		metrics: opts.Metrics,
		logger:  logger,
		cmds:    make(chan command, opts.QueueSize),
		outbox:  make(chan any, opts.QueueSize),
		stopped: make(chan struct{}),
		state:   types.StateIdle,
		since:   time.Now(),
		drained: make(chan struct{}),
		history: newHistory(opts.History),
	}

	pool, err := ants.NewPool(opts.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			o.logger.Error("worker panic", zap.Any("panic", p))
		}),
		ants.WithLogger(poolLogger{logger.Sugar()}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	o.pool = pool
	o.metrics.SetState(string(types.StateIdle))
	return o, nil
}

// Run processes commands until ctx is done. It must be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	started := false
	o.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("orchestrator: Run called twice")
	}

	o.mu.Lock()
	o.runCtx = ctx
	o.opCtx, o.opCancel = context.WithCancel(ctx)
	o.mu.Unlock()

	pubDone := make(chan struct{})
	go func() {
		defer close(pubDone)
		o.publishLoop(ctx)
	}()

	o.logger.Info("orchestrator started", zap.Int("workers", o.opts.Workers))
	defer func() {
		o.mu.Lock()
		o.stopTimer()
		if o.opCancel != nil {
			o.opCancel()
		}
		o.mu.Unlock()
		close(o.stopped)
		o.pool.Release()
		<-pubDone
		o.logger.Info("orchestrator stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-o.cmds:
			o.dispatch(cmd)
		}
	}
}

// Submit queues an inbound intent without blocking.
func (o *Orchestrator) Submit(in types.Intent) error {
	select {
	case <-o.stopped:
		return ErrStopped
	default:
	}
	select {
	case o.cmds <- cmdIntent{intent: in}:
		return nil
	default:
		o.metrics.RecordRejected("queue_full")
		return ErrQueueFull
	}
}

// NotifyExit reports an unrequested child exit.
func (o *Orchestrator) NotifyExit(h supervisor.Handle) {
	o.post(cmdExit{handle: h})
}

// NotifyFatal reports an auxiliary service that could not be recovered.
func (o *Orchestrator) NotifyFatal(service string, err error) {
	o.post(cmdFatal{service: service, err: err})
}

// Current returns a snapshot of the present state.
func (o *Orchestrator) Current() types.StateEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// History returns published events, oldest first.
func (o *Orchestrator) History() []types.StateEvent {
	return o.history.list()
}

// Stream delivers every future StateEvent until cancel is called. Slow
// readers miss events rather than stall the actor.
func (o *Orchestrator) Stream(buffer int) (<-chan types.StateEvent, func()) {
	return o.history.subscribe(buffer)
}

// Republish sends the current state again, e.g. after a bus reconnect.
func (o *Orchestrator) Republish() {
	ev := o.Current()
	select {
	case o.outbox <- ev:
	default:
		o.logger.Warn("outbox full, state republish skipped")
	}
}

// Shutdown drives any live session to IDLE and waits for it. Intents are
// rejected from here on.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if !o.post(cmdShutdown{}) {
		return ErrStopped
	}
	select {
	case <-o.drained:
		return nil
	case <-o.stopped:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// post enqueues cmd unless the actor has stopped.
func (o *Orchestrator) post(cmd command) bool {
	select {
	case o.cmds <- cmd:
		return true
	case <-o.stopped:
		return false
	}
}

func (o *Orchestrator) snapshotLocked() types.StateEvent {
	return types.StateEvent{
		Seq:       o.seq,
		State:     o.state,
		GameID:    o.gameID,
		Reason:    o.reason,
		Timestamp: o.since,
	}
}

// publishLoop sends outbound messages in order.
func (o *Orchestrator) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-o.outbox:
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			var err error
			switch m := msg.(type) {
			case types.StateEvent:
				err = o.deps.Publisher.PublishState(pctx, m)
			case types.OverlayDirective:
				err = o.deps.Publisher.PublishOverlay(pctx, m)
			}
			cancel()
			if err != nil {
				o.logger.Warn("publish failed", zap.Error(err))
			}
		}
	}
}

type poolLogger struct {
	*zap.SugaredLogger
}

func (l poolLogger) Printf(format string, args ...interface{}) {
	l.Debugf(format, args...)
}
