package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orchestrator"

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// State machine metrics
	Transitions  *prometheus.CounterVec
	CurrentState *prometheus.GaugeVec
	Launches     *prometheus.CounterVec
	LaunchTime   *prometheus.HistogramVec
	Crashes      *prometheus.CounterVec

	// Intent metrics
	Intents         *prometheus.CounterVec
	IntentsRejected *prometheus.CounterVec

	// Collaborator metrics
	ProbeAttempts   *prometheus.CounterVec
	AuxRestarts     *prometheus.CounterVec
	BusMessages     *prometheus.CounterVec
	ManifestGames   prometheus.Gauge
	ManifestReloads *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	Transitions     int64   `json:"transitions"`
	Launches        int64   `json:"launches"`
	Crashes         int64   `json:"crashes"`
	RejectedIntents int64   `json:"rejected_intents"`
	AuxRestarts     int64   `json:"aux_restarts"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector on its own registry, so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "State transitions by source, target and reason",
			},
			[]string{"from", "to", "reason"},
		),
		CurrentState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "1 for the current orchestrator state, 0 otherwise",
			},
			[]string{"state"},
		),
		Launches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "launches_total",
				Help:      "Launch attempts by game and outcome",
			},
			[]string{"game", "outcome"},
		),
		LaunchTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "launch_duration_seconds",
				Help:      "Time from spawn to readiness verdict",
				Buckets:   []float64{.1, .25, .5, 1, 2, 3, 5, 10, 20, 30},
			},
			[]string{"game", "outcome"},
		),
		Crashes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "crashes_total",
				Help:      "Unexpected child exits by game",
			},
			[]string{"game"},
		),

		Intents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intents_total",
				Help:      "Intents received by type and source",
			},
			[]string{"type", "source"},
		),
		IntentsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intents_rejected_total",
				Help:      "Intents that did not cause a transition, by reason",
			},
			[]string{"reason"},
		),

		ProbeAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_attempts_total",
				Help:      "Readiness probe attempts by game and result",
			},
			[]string{"game", "result"},
		),
		AuxRestarts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aux_restarts_total",
				Help:      "Auxiliary service restarts",
			},
			[]string{"service"},
		),
		BusMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_messages_total",
				Help:      "Messages exchanged with the bus",
			},
			[]string{"direction", "topic"},
		),
		ManifestGames: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "manifest_games",
				Help:      "Number of valid games in the active catalog",
			},
		),
		ManifestReloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manifest_reloads_total",
				Help:      "Catalog reload attempts by result",
			},
			[]string{"result"},
		),

		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
	}

	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Orchestrator uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format for this instance.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTransition counts a transition and moves the current-state gauge.
func (m *Metrics) RecordTransition(from, to, reason string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to, reason).Inc()
	if from != "" {
		m.CurrentState.WithLabelValues(from).Set(0)
	}
	m.CurrentState.WithLabelValues(to).Set(1)

	m.mu.Lock()
	m.snapshot.Transitions++
	m.mu.Unlock()
}

// SetState marks state as current without counting a transition.
func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	m.CurrentState.WithLabelValues(state).Set(1)
}

// RecordLaunch records the verdict of one launch attempt.
func (m *Metrics) RecordLaunch(game, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Launches.WithLabelValues(game, outcome).Inc()
	m.LaunchTime.WithLabelValues(game, outcome).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Launches++
	m.mu.Unlock()
}

// RecordCrash records an unexpected exit
func (m *Metrics) RecordCrash(game string) {
	if m == nil {
		return
	}
	m.Crashes.WithLabelValues(game).Inc()

	m.mu.Lock()
	m.snapshot.Crashes++
	m.mu.Unlock()
}

// RecordIntent records a received intent
func (m *Metrics) RecordIntent(intentType, source string) {
	if m == nil {
		return
	}
	m.Intents.WithLabelValues(intentType, source).Inc()
}

// RecordRejected records an intent that caused no transition
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.IntentsRejected.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.snapshot.RejectedIntents++
	m.mu.Unlock()
}

// RecordProbe records one readiness probe attempt
func (m *Metrics) RecordProbe(game, result string) {
	if m == nil {
		return
	}
	m.ProbeAttempts.WithLabelValues(game, result).Inc()
}

// RecordAuxRestart records an auxiliary service restart
func (m *Metrics) RecordAuxRestart(service string) {
	if m == nil {
		return
	}
	m.AuxRestarts.WithLabelValues(service).Inc()

	m.mu.Lock()
	m.snapshot.AuxRestarts++
	m.mu.Unlock()
}

// RecordBusMessage records a message in the given direction ("in" or "out")
func (m *Metrics) RecordBusMessage(direction, topic string) {
	if m == nil {
		return
	}
	m.BusMessages.WithLabelValues(direction, topic).Inc()
}

// RecordManifest records a catalog (re)load
func (m *Metrics) RecordManifest(result string, games int) {
	if m == nil {
		return
	}
	m.ManifestReloads.WithLabelValues(result).Inc()
	if result == "ok" {
		m.ManifestGames.Set(float64(games))
	}
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns the current counters for the JSON API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.snapshot
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
