package watchdog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/arcade/internal/infrastructure/config"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/arcade/internal/supervisor"
)

type fakeHandle struct {
	id       string
	exited   bool
	expected bool
	done     chan struct{}
}

func (h *fakeHandle) ID() string                  { return h.id }
func (h *fakeHandle) GameID() string              { return "notepad" }
func (h *fakeHandle) PID() int                    { return 4242 }
func (h *fakeHandle) StartedAt() time.Time        { return time.Time{} }
func (h *fakeHandle) State() supervisor.Lifecycle { return supervisor.LifecycleRunning }
func (h *fakeHandle) Exited() bool                { return h.exited }
func (h *fakeHandle) ExitCode() int               { return 1 }
func (h *fakeHandle) Done() <-chan struct{}       { return h.done }
func (h *fakeHandle) Expected() bool              { return h.expected }

type fakeSource struct {
	mu sync.Mutex
	h  supervisor.Handle
}

func (s *fakeSource) Current() supervisor.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h
}

func (s *fakeSource) set(h supervisor.Handle) {
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	exits  []string
	fatals []error
}

func (s *recordingSink) NotifyExit(h supervisor.Handle) {
	s.mu.Lock()
	s.exits = append(s.exits, h.ID())
	s.mu.Unlock()
}

func (s *recordingSink) NotifyFatal(service string, err error) {
	s.mu.Lock()
	s.fatals = append(s.fatals, err)
	s.mu.Unlock()
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exits), len(s.fatals)
}

func TestCheckChild(t *testing.T) {
	src := &fakeSource{}
	sink := &recordingSink{}
	w := New(src, sink, Options{}, nil)

	// nothing running
	w.CheckChild()

	// running child
	src.set(&fakeHandle{id: "run-1"})
	w.CheckChild()

	// requested exit is not a crash
	src.set(&fakeHandle{id: "run-2", exited: true, expected: true})
	w.CheckChild()

	exits, _ := sink.counts()
	assert.Zero(t, exits)

	// unrequested exit is reported exactly once
	src.set(&fakeHandle{id: "run-3", exited: true})
	w.CheckChild()
	w.CheckChild()
	exits, _ = sink.counts()
	assert.Equal(t, 1, exits)

	src.set(&fakeHandle{id: "run-4", exited: true})
	w.CheckChild()
	assert.Equal(t, []string{"run-3", "run-4"}, sink.exits)
}

func TestRunDetectsCrashWithinTicks(t *testing.T) {
	src := &fakeSource{}
	sink := &recordingSink{}
	w := New(src, sink, Options{Tick: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	src.set(&fakeHandle{id: "run-1", exited: true})
	assert.Eventually(t, func() bool {
		exits, _ := sink.counts()
		return exits == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// restartCommand exits immediately without side effects.
func restartCommand() []string {
	return []string{os.Args[0], "-test.run=^$"}
}

func TestHeartbeatServiceRestartsThenFails(t *testing.T) {
	sink := &recordingSink{}
	metrics := monitoring.NewMetrics()
	w := New(&fakeSource{}, sink, Options{
		ServiceInterval: 10 * time.Millisecond,
		MaxRestarts:     2,
		RestartDelay:    time.Millisecond,
		Metrics:         metrics,
		Services: []config.ServiceConfig{{
			Name:    "asr",
			Stale:   20 * time.Millisecond,
			Restart: restartCommand(),
		}},
	}, nil)

	// fresh heartbeats keep it healthy
	w.Heartbeat("asr")
	w.CheckServices(context.Background())
	assert.Equal(t, resilience.StateHealthy, w.services[0].policy.State())

	// silence: restart twice, then give up once
	for i := 0; i < 20; i++ {
		time.Sleep(25 * time.Millisecond)
		w.CheckServices(context.Background())
	}

	_, fatals := sink.counts()
	require.Equal(t, 1, fatals)
	assert.True(t, errors.Is(sink.fatals[0], resilience.ErrRestartsExhausted))
	assert.Equal(t, uint32(2), w.services[0].policy.Counts().Restarts)
	assert.Equal(t, resilience.StateFailed, w.services[0].policy.State())
	assert.Equal(t, int64(2), metrics.Snapshot().AuxRestarts)
}

func TestHTTPServiceHealth(t *testing.T) {
	var mu sync.Mutex
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	w := New(&fakeSource{}, sink, Options{
		ServiceInterval: 200 * time.Millisecond,
		MaxRestarts:     1,
		RestartDelay:    time.Millisecond,
		Services: []config.ServiceConfig{{
			Name:      "tts",
			HealthURL: srv.URL + "/health",
			Restart:   restartCommand(),
		}},
	}, nil)
	svc := w.services[0]

	w.CheckServices(context.Background())
	assert.Equal(t, resilience.StateHealthy, svc.policy.State())

	mu.Lock()
	status = http.StatusServiceUnavailable
	mu.Unlock()

	w.CheckServices(context.Background())
	assert.Equal(t, resilience.StateRestarting, svc.policy.State())

	mu.Lock()
	status = http.StatusOK
	mu.Unlock()

	w.CheckServices(context.Background())
	assert.Equal(t, resilience.StateHealthy, svc.policy.State())

	_, fatals := sink.counts()
	assert.Zero(t, fatals)
}

func TestLastSeen(t *testing.T) {
	w := New(&fakeSource{}, &recordingSink{}, Options{}, nil)

	_, ok := w.LastSeen("asr")
	assert.False(t, ok)

	w.Heartbeat("asr")
	seen, ok := w.LastSeen("asr")
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), seen, time.Second)
}
