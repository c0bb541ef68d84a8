package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRestartsExhausted is returned once a policy has given up.
var ErrRestartsExhausted = errors.New("restart budget exhausted")

// State represents the supervised service state
type State int

const (
	StateHealthy State = iota
	StateRestarting
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Action tells the caller what to do after reporting a failed check.
type Action int

const (
	// ActionNone means the service is fine or already given up on.
	ActionNone Action = iota
	// ActionWait means a restart is due but the backoff has not elapsed.
	ActionWait
	// ActionRestart means the caller should restart the service now.
	ActionRestart
	// ActionGiveUp is returned exactly once, when the budget runs out.
	ActionGiveUp
)

// Settings configures the restart policy behavior
type Settings struct {
	// MaxRestarts is the number of restarts allowed before giving up
	MaxRestarts uint32
	// InitialInterval is the wait before the second restart
	InitialInterval time.Duration
	// MaxInterval caps the exponential wait between restarts
	MaxInterval time.Duration
	// ResetAfter clears the restart count after this long healthy
	ResetAfter time.Duration
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
	// Now overrides the clock in tests
	Now func() time.Time
}

// Counts holds the statistics for the policy
type Counts struct {
	Checks              uint32
	Restarts            uint32
	ConsecutiveFailures uint32
}

// Policy decides when an unresponsive service is restarted and when the
// orchestrator stops trying.
type Policy struct {
	name     string
	settings Settings

	mu           sync.Mutex
	state        State
	counts       Counts
	backoff      *backoff.ExponentialBackOff
	next         time.Time
	healthySince time.Time
}

// NewPolicy creates a restart policy with the given settings
func NewPolicy(name string, settings Settings) *Policy {
	if settings.MaxRestarts == 0 {
		settings.MaxRestarts = 3
	}
	if settings.InitialInterval == 0 {
		settings.InitialInterval = time.Second
	}
	if settings.MaxInterval == 0 {
		settings.MaxInterval = 30 * time.Second
	}
	if settings.ResetAfter == 0 {
		settings.ResetAfter = time.Minute
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = settings.InitialInterval
	b.MaxInterval = settings.MaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &Policy{
		name:         name,
		settings:     settings,
		state:        StateHealthy,
		backoff:      b,
		healthySince: settings.Now(),
	}
}

// Name returns the name of the supervised service
func (p *Policy) Name() string {
	return p.name
}

// State returns the current state
func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Counts returns a copy of the internal counts
func (p *Policy) Counts() Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts
}

// Healthy records a passing check.
func (p *Policy) Healthy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.settings.Now()
	p.counts.Checks++
	p.counts.ConsecutiveFailures = 0

	switch p.state {
	case StateFailed:
		return
	case StateRestarting:
		p.healthySince = now
		p.setState(StateHealthy)
	case StateHealthy:
		if p.counts.Restarts > 0 && now.Sub(p.healthySince) >= p.settings.ResetAfter {
			p.counts.Restarts = 0
			p.backoff.Reset()
			p.next = time.Time{}
		}
	}
}

// Unhealthy records a failing check and returns what the caller should do.
func (p *Policy) Unhealthy() Action {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.settings.Now()
	p.counts.Checks++
	p.counts.ConsecutiveFailures++

	if p.state == StateFailed {
		return ActionNone
	}
	if p.counts.Restarts >= p.settings.MaxRestarts {
		p.setState(StateFailed)
		return ActionGiveUp
	}
	if now.Before(p.next) {
		return ActionWait
	}

	p.counts.Restarts++
	p.next = now.Add(p.backoff.NextBackOff())
	p.setState(StateRestarting)
	return ActionRestart
}

// Reset returns the policy to healthy with a fresh budget.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts = Counts{}
	p.backoff.Reset()
	p.next = time.Time{}
	p.healthySince = p.settings.Now()
	p.setState(StateHealthy)
}

// setState changes the state and notifies the observer
func (p *Policy) setState(state State) {
	if p.state == state {
		return
	}
	prev := p.state
	p.state = state

	if p.settings.OnStateChange != nil {
		p.settings.OnStateChange(p.name, prev, state)
	}
}
