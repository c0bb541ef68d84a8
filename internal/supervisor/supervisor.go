package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/logging"
)

var (
	// ErrBusy is returned when a live child already exists.
	ErrBusy = errors.New("a game is already running")
	// ErrQuitTimeout is returned when a graceful quit had to be escalated.
	ErrQuitTimeout = errors.New("graceful quit timed out")
	// ErrKillUnconfirmed is returned when the child survived a force kill.
	ErrKillUnconfirmed = errors.New("process exit not confirmed after kill")
	// ErrForeignHandle is returned for handles issued by another supervisor.
	ErrForeignHandle = errors.New("handle not owned by this supervisor")
)

// Spec is a fully resolved launch request.
type Spec struct {
	GameID string
	Path   string
	Args   []string
	Dir    string
	Env    map[string]string
	// TTY runs the child on a pseudo-terminal for console games.
	TTY  bool
	Quit manifest.Quit
	// Command is the quoted command line shown in logs.
	Command string
}

// Options configures a Supervisor.
type Options struct {
	// KillWait bounds how long ForceKill waits for the reaper.
	KillWait time.Duration
	// PipeWait bounds how long output pipes may outlive the child.
	PipeWait time.Duration
	// HTTPTimeout bounds an HTTP quit request.
	HTTPTimeout time.Duration
}

// Supervisor spawns and tears down at most one game process.
type Supervisor struct {
	logger *zap.Logger
	opts   Options
	http   *resty.Client

	mu      sync.Mutex
	current *proc
}

// New creates a supervisor.
func New(logger *zap.Logger, opts Options) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.KillWait <= 0 {
		opts.KillWait = 2 * time.Second
	}
	if opts.PipeWait <= 0 {
		opts.PipeWait = 250 * time.Millisecond
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = time.Second
	}

	client := resty.New().
		SetTimeout(opts.HTTPTimeout).
		SetHeader("User-Agent", "arcade-orchestrator")

	return &Supervisor{
		logger: logger,
		opts:   opts,
		http:   client,
	}
}

// Launch spawns spec as a detached child and starts its reaper. The launch
// is refused when ctx is already done, so a cancelled launch never leaves a
// process behind.
func (s *Supervisor) Launch(ctx context.Context, spec Spec) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", spec.GameID, err)
	}
	if s.current != nil {
		if !s.current.Exited() {
			return nil, ErrBusy
		}
		s.logger.Debug("releasing reaped handle", logging.HandleID(s.current.ID()))
		s.current = nil
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for key, value := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}
	cmd.WaitDelay = s.opts.PipeWait

	out := &zapio.Writer{Log: s.logger.With(logging.GameID(spec.GameID)), Level: zap.DebugLevel}

	var tty *os.File
	if spec.TTY {
		f, err := pty.Start(cmd)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("failed to start %s on pty: %w", spec.Path, err)
		}
		tty = f
	} else {
		detach(cmd)
		cmd.Stdout = out
		cmd.Stderr = out
		if err := cmd.Start(); err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("failed to start %s: %w", spec.Path, err)
		}
	}

	p := newProc(s, spec.GameID, cmd)
	p.quit = spec.Quit
	s.current = p

	s.logger.Info("child started",
		logging.GameID(spec.GameID),
		logging.HandleID(p.ID()),
		zap.Int("pid", p.PID()),
		zap.String("path", spec.Path),
		zap.String("command", spec.Command),
		zap.Bool("tty", spec.TTY))

	var copied chan struct{}
	if tty != nil {
		copied = make(chan struct{})
		go func() {
			defer close(copied)
			_, _ = io.Copy(out, tty)
		}()
	}
	go s.reap(p, out, tty, copied)

	return p, nil
}

// reap waits for the child and records how it ended. The output writer is
// closed only once nothing can write to it any more.
func (s *Supervisor) reap(p *proc, out io.Closer, tty *os.File, copied <-chan struct{}) {
	err := p.cmd.Wait()
	if tty == nil {
		_ = out.Close()
	} else if s.drainTTY(tty, copied) {
		_ = out.Close()
	} else {
		s.logger.Warn("pty output still draining, writer left open",
			logging.GameID(p.gameID),
			logging.HandleID(p.ID()))
	}

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	p.markExited(code, err)

	s.logger.Info("child exited",
		logging.GameID(p.gameID),
		logging.HandleID(p.ID()),
		zap.Int("pid", p.PID()),
		zap.Int("exit_code", code),
		zap.Bool("expected", p.Expected()),
		zap.Duration("uptime", time.Since(p.startedAt)))
}

// drainTTY lets the copy goroutine finish reading what the child wrote,
// then closes the terminal. Descendants may keep the terminal open, so each
// wait is bounded by PipeWait.
func (s *Supervisor) drainTTY(tty *os.File, copied <-chan struct{}) bool {
	wait := func() bool {
		select {
		case <-copied:
			return true
		case <-time.After(s.opts.PipeWait):
			return false
		}
	}
	done := wait()
	_ = tty.Close()
	if !done {
		done = wait()
	}
	return done
}

// Current returns the live or not yet released handle, or nil.
func (s *Supervisor) Current() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current
}

// WaitExit blocks until h has been reaped or ctx ends, then releases it.
// It returns immediately for already-exited handles.
func (s *Supervisor) WaitExit(ctx context.Context, h Handle) (int, error) {
	p, err := s.own(h)
	if err != nil {
		return -1, err
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return -1, ctx.Err()
	}

	s.release(p)
	return p.ExitCode(), nil
}

// ForceKill kills h and all its descendants, then waits for the reaper up
// to KillWait. It is a no-op for exited handles.
func (s *Supervisor) ForceKill(ctx context.Context, h Handle) error {
	p, err := s.own(h)
	if err != nil {
		return err
	}
	if p.Exited() {
		return nil
	}

	p.expected.Store(true)
	p.advance(LifecycleKilling)

	pid := p.PID()
	killed := killTree(pid)
	if err := killGroup(pid); err != nil {
		s.logger.Debug("process group kill failed", zap.Int("pid", pid), zap.Error(err))
	}
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	s.logger.Warn("force killing child",
		logging.GameID(p.gameID),
		zap.Int("pid", pid),
		zap.Int("descendants", killed))

	wait, cancel := context.WithTimeout(ctx, s.opts.KillWait)
	defer cancel()
	select {
	case <-p.done:
		return nil
	case <-wait.Done():
		return fmt.Errorf("%w: pid %d", ErrKillUnconfirmed, pid)
	}
}

// GracefulQuit asks h to exit with its quit operation and waits up to
// timeout. On timeout it force kills and returns ErrQuitTimeout. It is a
// no-op for exited handles.
func (s *Supervisor) GracefulQuit(ctx context.Context, h Handle, timeout time.Duration) error {
	p, err := s.own(h)
	if err != nil {
		return err
	}
	if p.Exited() {
		return nil
	}

	p.expected.Store(true)
	p.advance(LifecycleQuitting)

	if err := s.sendQuit(ctx, p); err != nil {
		s.logger.Warn("quit operation failed",
			logging.GameID(p.gameID),
			zap.String("type", p.quit.QuitType()),
			zap.Error(err))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if err := s.ForceKill(ctx, p); err != nil {
		return errors.Join(fmt.Errorf("%w after %s", ErrQuitTimeout, timeout), err)
	}
	return fmt.Errorf("%w after %s", ErrQuitTimeout, timeout)
}

// Shutdown tears down whatever is running within timeout.
func (s *Supervisor) Shutdown(ctx context.Context, timeout time.Duration) error {
	h := s.Current()
	if h == nil {
		return nil
	}
	err := s.GracefulQuit(ctx, h, timeout)
	if errors.Is(err, ErrQuitTimeout) && h.Exited() {
		err = nil
	}
	if h.Exited() {
		s.release(h.(*proc))
	}
	return err
}

func (s *Supervisor) own(h Handle) (*proc, error) {
	p, ok := h.(*proc)
	if !ok || p == nil || p.owner != s {
		return nil, ErrForeignHandle
	}
	return p, nil
}

func (s *Supervisor) release(p *proc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == p {
		s.current = nil
	}
}
