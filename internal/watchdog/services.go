package watchdog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/infrastructure/config"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/resilience"
)

// ErrStale is reported for services whose heartbeat stopped.
var ErrStale = errors.New("heartbeat stale")

type auxService struct {
	cfg    config.ServiceConfig
	policy *resilience.Policy
	client *retryablehttp.Client
	logger *zap.Logger
}

func newAuxService(cfg config.ServiceConfig, opts Options, logger *zap.Logger) *auxService {
	log := logger.With(zap.String("service", cfg.Name))
	if cfg.Stale <= 0 {
		cfg.Stale = 5 * opts.ServiceInterval
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = 50 * time.Millisecond
	client.RetryWaitMax = 200 * time.Millisecond
	client.HTTPClient.Timeout = opts.ServiceInterval
	client.Logger = leveled{log.Sugar()}

	policy := resilience.NewPolicy(cfg.Name, resilience.Settings{
		MaxRestarts:     uint32(max(opts.MaxRestarts, 0)),
		InitialInterval: opts.RestartDelay,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Info("aux service state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	return &auxService{cfg: cfg, policy: policy, client: client, logger: log}
}

// check reports whether the service currently looks alive.
func (s *auxService) check(ctx context.Context, w *Watchdog) (bool, error) {
	if s.cfg.HealthURL == "" {
		seen, ok := w.LastSeen(s.cfg.Name)
		if !ok || time.Since(seen) > s.cfg.Stale {
			return false, fmt.Errorf("%w: last seen %s ago", ErrStale, time.Since(seen).Round(time.Millisecond))
		}
		return true, nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.cfg.HealthURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("health status %d", resp.StatusCode)
	}
	return true, nil
}

func (w *Watchdog) handleUnhealthy(ctx context.Context, s *auxService, cause error) {
	switch s.policy.Unhealthy() {
	case resilience.ActionRestart:
		attempt := s.policy.Counts().Restarts
		s.logger.Warn("aux service unresponsive, restarting",
			zap.Uint32("attempt", attempt), zap.Error(cause))
		w.metrics.RecordAuxRestart(s.cfg.Name)
		if err := s.restart(ctx); err != nil {
			s.logger.Error("aux service restart failed", zap.Error(err))
		}
		// a restarted heartbeat service gets a fresh grace window
		w.heartbeat.Set(s.cfg.Name, time.Now())

	case resilience.ActionGiveUp:
		err := fmt.Errorf("%w: %s after %d restarts: %v",
			resilience.ErrRestartsExhausted, s.cfg.Name, s.policy.Counts().Restarts, cause)
		s.logger.Error("aux service failed permanently", zap.Error(err))
		w.sink.NotifyFatal(s.cfg.Name, err)

	case resilience.ActionWait:
		s.logger.Debug("aux service unresponsive, waiting for backoff", zap.Error(cause))
	}
}

// restart spawns the configured restart command detached and reaps it in
// the background. Transient spawn failures are retried briefly.
func (s *auxService) restart(ctx context.Context) error {
	if len(s.cfg.Restart) == 0 {
		return errors.New("no restart command configured")
	}
	return resilience.Retry(ctx, 2, 100*time.Millisecond, func() error {
		cmd := exec.Command(s.cfg.Restart[0], s.cfg.Restart[1:]...)
		cmd.Env = os.Environ()
		if err := cmd.Start(); err != nil {
			if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				return resilience.Permanent(err)
			}
			return err
		}
		go func() {
			err := cmd.Wait()
			s.logger.Debug("aux restart command finished", zap.Error(err))
		}()
		return nil
	}, func(err error, next time.Duration) {
		s.logger.Warn("aux restart spawn failed, retrying", zap.Duration("in", next), zap.Error(err))
	})
}

// leveled adapts zap to retryablehttp.LeveledLogger.
type leveled struct {
	*zap.SugaredLogger
}

func (l leveled) Error(msg string, kv ...interface{}) { l.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.Warnw(msg, kv...) }
