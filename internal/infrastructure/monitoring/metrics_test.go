package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancesDoNotCollide(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordCrash("notepad")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Crashes.WithLabelValues("notepad")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Crashes.WithLabelValues("notepad")))
}

func TestRecordTransitionMovesGauge(t *testing.T) {
	m := NewMetrics()

	m.RecordTransition("", "IDLE", "")
	m.RecordTransition("IDLE", "LAUNCHING", "")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.CurrentState.WithLabelValues("IDLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CurrentState.WithLabelValues("LAUNCHING")))
	assert.Equal(t, int64(2), m.Snapshot().Transitions)
}

func TestTimer(t *testing.T) {
	m := NewMetrics()
	timer := NewTimer(m, "notepad")
	time.Sleep(5 * time.Millisecond)

	d := timer.Stop("ready")
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Launches.WithLabelValues("notepad", "ready")))
	assert.Equal(t, int64(1), m.Snapshot().Launches)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTransition("IDLE", "LAUNCHING", "")
		m.RecordRejected("busy")
		m.RecordAuxRestart("asr")
		NewTimer(m, "x").Stop("ready")
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordRejected("busy")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `orchestrator_intents_rejected_total{reason="busy"} 1`)
	assert.Contains(t, rec.Body.String(), "orchestrator_uptime_seconds")
}
