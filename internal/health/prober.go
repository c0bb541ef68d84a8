package health

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/logging"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
)

// Outcome is the verdict of one readiness probe run.
type Outcome int

const (
	Ready Outcome = iota
	TimedOut
	Failed
	Exited
	Aborted
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	case Exited:
		return "exited"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result summarises a probe run.
type Result struct {
	Outcome  Outcome
	Attempts int
	Failures int
	Elapsed  time.Duration
	// Err is the last check error, if any.
	Err error
}

// Options configures a Prober. Per-entry probe settings override them.
type Options struct {
	Interval         time.Duration
	FailureThreshold int
	RequestTimeout   time.Duration
	Host             string
	Metrics          *monitoring.Metrics
}

// Prober polls a launching game until it is ready.
type Prober struct {
	opts   Options
	logger *zap.Logger
}

// NewProber creates a prober.
func NewProber(opts Options, logger *zap.Logger) *Prober {
	if opts.Interval <= 0 {
		opts.Interval = 200 * time.Millisecond
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = time.Second
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{opts: opts, logger: logger}
}

// Retryable reports whether err means the game is not listening yet.
// Such errors never count towards the failure threshold.
func Retryable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// Check builds the check function for an entry, or nil for probes that
// only need the process to stay alive.
func (p *Prober) Check(entry manifest.Entry) (healthcheck.Check, error) {
	timeout := p.opts.RequestTimeout
	switch entry.Health.ProbeType() {
	case manifest.ProbeNone, manifest.ProbeProcess:
		return nil, nil
	case manifest.ProbeHTTP:
		return healthcheck.Timeout(healthcheck.HTTPGetCheck(entry.Health.URL(p.opts.Host), timeout), timeout), nil
	case manifest.ProbeTCP:
		return healthcheck.TCPDialCheck(entry.Health.Address(p.opts.Host), timeout), nil
	default:
		return nil, fmt.Errorf("unknown probe type %q", entry.Health.Type)
	}
}

// Probe polls entry's readiness check every interval until it passes, the
// failure threshold is reached, timeout elapses, the child dies (alive
// returns false) or ctx is cancelled.
func (p *Prober) Probe(ctx context.Context, entry manifest.Entry, timeout time.Duration, alive func() bool) Result {
	start := time.Now()
	interval := entry.Health.Interval(p.opts.Interval)
	threshold := entry.Health.Threshold(p.opts.FailureThreshold)
	log := p.logger.With(logging.GameID(entry.ID), zap.String("probe", entry.Health.ProbeType()))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := Result{}
	finish := func(o Outcome) Result {
		res.Outcome = o
		res.Elapsed = time.Since(start)
		log.Info("probe finished",
			zap.Stringer("outcome", o),
			zap.Int("attempts", res.Attempts),
			zap.Int("failures", res.Failures),
			zap.Duration("elapsed", res.Elapsed),
			zap.Error(res.Err))
		return res
	}
	stopped := func() Result {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return finish(TimedOut)
		}
		return finish(Aborted)
	}

	check, err := p.Check(entry)
	if err != nil {
		res.Err = err
		return finish(Failed)
	}

	// liveness-only probes are ready once the child survived one interval
	first := time.Duration(0)
	if check == nil {
		first = interval
	}
	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return stopped()
		case <-timer.C:
		}

		if !alive() {
			return finish(Exited)
		}
		res.Attempts++

		if check == nil {
			p.opts.Metrics.RecordProbe(entry.ID, "ok")
			return finish(Ready)
		}

		err := check()
		switch {
		case err == nil:
			p.opts.Metrics.RecordProbe(entry.ID, "ok")
			if !alive() {
				return finish(Exited)
			}
			res.Err = nil
			return finish(Ready)
		case Retryable(err):
			p.opts.Metrics.RecordProbe(entry.ID, "refused")
			res.Err = err
			log.Debug("probe target not listening yet", zap.Int("attempt", res.Attempts))
		default:
			p.opts.Metrics.RecordProbe(entry.ID, "failed")
			res.Err = err
			res.Failures++
			log.Debug("probe failed", zap.Int("attempt", res.Attempts), zap.Error(err))
			if res.Failures >= threshold {
				return finish(Failed)
			}
		}
		timer.Reset(interval)
	}
}
