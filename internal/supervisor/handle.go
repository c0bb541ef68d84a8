package supervisor

import (
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/shared/id"
)

// Lifecycle is the supervisor's view of a child process.
type Lifecycle string

const (
	LifecycleRunning  Lifecycle = "running"
	LifecycleQuitting Lifecycle = "quitting"
	LifecycleKilling  Lifecycle = "killing"
	LifecycleExited   Lifecycle = "exited"
)

// Handle is a read-only view of a supervised child. Only the Supervisor
// that issued it can act on it.
type Handle interface {
	ID() string
	GameID() string
	PID() int
	StartedAt() time.Time
	State() Lifecycle
	// Exited reports whether the exit has been observed.
	Exited() bool
	// ExitCode is -1 until exit, and for signal deaths.
	ExitCode() int
	// Done is closed once the child has been reaped.
	Done() <-chan struct{}
	// Expected reports whether a quit or kill was requested before exit.
	Expected() bool
}

type proc struct {
	id        id.HandleID
	gameID    string
	startedAt time.Time
	cmd       *exec.Cmd
	owner     *Supervisor
	quit      manifest.Quit

	expected atomic.Bool
	done     chan struct{}

	mu       sync.RWMutex
	state    Lifecycle
	exitCode int
	exitErr  error
	exitedAt time.Time
}

func newProc(owner *Supervisor, gameID string, cmd *exec.Cmd) *proc {
	return &proc{
		id:        id.NewHandleID(),
		gameID:    gameID,
		startedAt: time.Now(),
		cmd:       cmd,
		owner:     owner,
		done:      make(chan struct{}),
		state:     LifecycleRunning,
		exitCode:  -1,
	}
}

func (p *proc) ID() string            { return p.id.String() }
func (p *proc) GameID() string        { return p.gameID }
func (p *proc) StartedAt() time.Time  { return p.startedAt }
func (p *proc) Done() <-chan struct{} { return p.done }
func (p *proc) Expected() bool        { return p.expected.Load() }

func (p *proc) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *proc) State() Lifecycle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *proc) ExitCode() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode
}

func (p *proc) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// advance moves the lifecycle forward; exited is final.
func (p *proc) advance(to Lifecycle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == LifecycleExited {
		return
	}
	p.state = to
}

// markExited records the reaped status and releases waiters.
func (p *proc) markExited(code int, err error) {
	p.mu.Lock()
	p.state = LifecycleExited
	p.exitCode = code
	p.exitErr = err
	p.exitedAt = time.Now()
	p.mu.Unlock()
	close(p.done)
}
