package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/health"
	"github.com/GriffinCanCode/arcade/internal/shared/types"
	"github.com/GriffinCanCode/arcade/internal/supervisor"
	"github.com/GriffinCanCode/arcade/internal/watchdog"
)

var handleSeq atomic.Int64

type fakeHandle struct {
	id      string
	game    string
	started time.Time

	done     chan struct{}
	once     sync.Once
	code     atomic.Int64
	expected atomic.Bool
}

func newFakeHandle(game string) *fakeHandle {
	return &fakeHandle{
		id:      fmt.Sprintf("h-%d", handleSeq.Add(1)),
		game:    game,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

func (h *fakeHandle) exit(code int) {
	h.once.Do(func() {
		h.code.Store(int64(code))
		close(h.done)
	})
}

func (h *fakeHandle) ID() string            { return h.id }
func (h *fakeHandle) GameID() string        { return h.game }
func (h *fakeHandle) PID() int              { return 1000 }
func (h *fakeHandle) StartedAt() time.Time  { return h.started }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) Expected() bool        { return h.expected.Load() }

func (h *fakeHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *fakeHandle) State() supervisor.Lifecycle {
	if h.Exited() {
		return supervisor.LifecycleExited
	}
	return supervisor.LifecycleRunning
}

func (h *fakeHandle) ExitCode() int {
	if !h.Exited() {
		return -1
	}
	return int(h.code.Load())
}

// fakeSupervisor mimics the real supervisor without processes.
type fakeSupervisor struct {
	mu        sync.Mutex
	launchErr error
	// stubborn children ignore graceful quits
	stubborn bool
	// killFailures is how many ForceKill calls fail before one succeeds
	killFailures int
	// hangWait makes WaitExit block until its context ends
	hangWait bool
	// spawnGate, when set, holds Launch (and the lock) until it is closed
	spawnGate chan struct{}
	spawning  atomic.Bool

	current  *fakeHandle
	launches int
	quits    int
	kills    int
}

func (s *fakeSupervisor) Launch(ctx context.Context, spec supervisor.Spec) (supervisor.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.spawnGate != nil {
		s.spawning.Store(true)
		<-s.spawnGate
	}
	if s.launchErr != nil {
		return nil, s.launchErr
	}
	if s.current != nil && !s.current.Exited() {
		return nil, supervisor.ErrBusy
	}
	s.launches++
	s.current = newFakeHandle(spec.GameID)
	return s.current, nil
}

func (s *fakeSupervisor) GracefulQuit(ctx context.Context, h supervisor.Handle, timeout time.Duration) error {
	fh := h.(*fakeHandle)
	s.mu.Lock()
	s.quits++
	stubborn := s.stubborn
	s.mu.Unlock()

	fh.expected.Store(true)
	if !stubborn {
		fh.exit(0)
		return nil
	}
	select {
	case <-time.After(timeout):
		fh.exit(-1)
		return fmt.Errorf("%w after %s", supervisor.ErrQuitTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSupervisor) ForceKill(_ context.Context, h supervisor.Handle) error {
	fh := h.(*fakeHandle)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kills++
	if fh.Exited() {
		return nil
	}
	if s.killFailures > 0 {
		s.killFailures--
		return supervisor.ErrKillUnconfirmed
	}
	fh.expected.Store(true)
	fh.exit(-1)
	return nil
}

func (s *fakeSupervisor) WaitExit(ctx context.Context, h supervisor.Handle) (int, error) {
	s.mu.Lock()
	hang := s.hangWait
	s.mu.Unlock()
	if hang {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	select {
	case <-h.Done():
		return h.ExitCode(), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (s *fakeSupervisor) Current() supervisor.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current
}

func (s *fakeSupervisor) handle() *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *fakeSupervisor) counts() (launches, quits, kills int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches, s.quits, s.kills
}

// fakeProber reports ready immediately unless fn says otherwise.
type fakeProber struct {
	fn func(ctx context.Context, timeout time.Duration) health.Result
}

func (p *fakeProber) Probe(ctx context.Context, _ manifest.Entry, timeout time.Duration, alive func() bool) health.Result {
	if !alive() {
		return health.Result{Outcome: health.Exited}
	}
	if p.fn != nil {
		return p.fn(ctx, timeout)
	}
	return health.Result{Outcome: health.Ready, Attempts: 1}
}

// neverReady blocks like a game that never opens its port.
func neverReady(ctx context.Context, timeout time.Duration) health.Result {
	select {
	case <-ctx.Done():
		return health.Result{Outcome: health.Aborted}
	case <-time.After(timeout):
		return health.Result{Outcome: health.TimedOut}
	}
}

// fakeGuard refuses executables listed in denied.
type fakeGuard struct {
	denied map[string]bool
}

func (g *fakeGuard) Prepare(entry manifest.Entry) (supervisor.Spec, error) {
	if g.denied[entry.Exec] {
		return supervisor.Spec{}, fmt.Errorf("%w: %s", watchdog.ErrWhitelistViolation, entry.Exec)
	}
	return supervisor.Spec{GameID: entry.ID, Path: entry.Exec, Args: entry.Args, Quit: entry.Quit}, nil
}

// recorder captures everything published.
type recorder struct {
	mu       sync.Mutex
	events   []types.StateEvent
	overlays []types.OverlayDirective
}

func (r *recorder) PublishState(_ context.Context, ev types.StateEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) PublishOverlay(_ context.Context, d types.OverlayDirective) error {
	r.mu.Lock()
	r.overlays = append(r.overlays, d)
	r.mu.Unlock()
	return nil
}

func (r *recorder) stateEvents() []types.StateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.StateEvent(nil), r.events...)
}

func (r *recorder) overlayWith(reason string) (types.OverlayDirective, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.overlays {
		if d.Reason == reason {
			return d, true
		}
	}
	return types.OverlayDirective{}, false
}
