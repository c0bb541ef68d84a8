package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
)

func alwaysAlive() bool { return true }

func hostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func httpEntry(t *testing.T, srv *httptest.Server) manifest.Entry {
	t.Helper()
	host, port := hostPort(t, srv.Listener.Addr().String())
	return manifest.Entry{
		ID:     "tetris",
		Health: manifest.Probe{Type: manifest.ProbeHTTP, Host: host, Port: port, Path: "/health"},
	}
}

// closedPort returns a local port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port := hostPort(t, l.Addr().String())
	require.NoError(t, l.Close())
	return port
}

func newTestProber(threshold int) *Prober {
	return NewProber(Options{
		Interval:         20 * time.Millisecond,
		FailureThreshold: threshold,
		RequestTimeout:   200 * time.Millisecond,
		Metrics:          monitoring.NewMetrics(),
	}, nil)
}

func TestProbeHTTPBecomesReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := newTestProber(5).Probe(context.Background(), httpEntry(t, srv), 2*time.Second, alwaysAlive)

	assert.Equal(t, Ready, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 2, res.Failures)
	assert.NoError(t, res.Err)
}

func TestProbeFailureThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := newTestProber(2).Probe(context.Background(), httpEntry(t, srv), 2*time.Second, alwaysAlive)

	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, 2, res.Failures)
	assert.Error(t, res.Err)
}

func TestProbeEntryThresholdOverrides(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	entry := httpEntry(t, srv)
	entry.Health.FailureThreshold = 1

	res := newTestProber(10).Probe(context.Background(), entry, 2*time.Second, alwaysAlive)
	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
}

func TestProbeConnectionRefusedIsRetryable(t *testing.T) {
	entry := manifest.Entry{
		ID:     "tetris",
		Health: manifest.Probe{Type: manifest.ProbeHTTP, Host: "127.0.0.1", Port: closedPort(t)},
	}

	start := time.Now()
	res := newTestProber(1).Probe(context.Background(), entry, 300*time.Millisecond, alwaysAlive)

	assert.Equal(t, TimedOut, res.Outcome, "refused never trips the threshold")
	assert.Zero(t, res.Failures)
	assert.Greater(t, res.Attempts, 1)
	assert.True(t, Retryable(res.Err))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestProbeTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	host, port := hostPort(t, l.Addr().String())
	entry := manifest.Entry{ID: "mud", Health: manifest.Probe{Type: manifest.ProbeTCP, Host: host, Port: port}}

	res := newTestProber(3).Probe(context.Background(), entry, time.Second, alwaysAlive)
	assert.Equal(t, Ready, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
}

func TestProbeLivenessOnly(t *testing.T) {
	for _, probe := range []string{"", manifest.ProbeNone, manifest.ProbeProcess} {
		t.Run("type="+probe, func(t *testing.T) {
			entry := manifest.Entry{ID: "notepad", Health: manifest.Probe{Type: probe}}

			res := newTestProber(3).Probe(context.Background(), entry, time.Second, alwaysAlive)
			assert.Equal(t, Ready, res.Outcome)
			assert.GreaterOrEqual(t, res.Elapsed, 20*time.Millisecond)
		})
	}
}

func TestProbeChildExited(t *testing.T) {
	entry := manifest.Entry{ID: "notepad", Health: manifest.Probe{Type: manifest.ProbeProcess}}

	res := newTestProber(3).Probe(context.Background(), entry, time.Second, func() bool { return false })
	assert.Equal(t, Exited, res.Outcome)
}

func TestProbeAborted(t *testing.T) {
	entry := manifest.Entry{
		ID:     "tetris",
		Health: manifest.Probe{Type: manifest.ProbeTCP, Host: "127.0.0.1", Port: closedPort(t)},
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res := newTestProber(3).Probe(ctx, entry, 5*time.Second, alwaysAlive)
	assert.Equal(t, Aborted, res.Outcome)
	assert.Less(t, res.Elapsed, time.Second)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "exited", Exited.String())
	assert.Equal(t, "aborted", Aborted.String())
}
