package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/domain/intent"
	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/health"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/logging"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/arcade/internal/shared/types"
	"github.com/GriffinCanCode/arcade/internal/supervisor"
	"github.com/GriffinCanCode/arcade/internal/watchdog"
)

// Rejection reasons for intents that cause no transition.
const (
	RejectBusy         = "busy"
	RejectWhitelist    = "whitelist_violation"
	RejectUnsafeArgs   = "unsafe_argument"
	RejectUnlaunchable = "launch_rejected"
	RejectShutdown     = "shutting_down"
)

// ReasonAuxFailure marks overlay directives for dead auxiliary services.
const ReasonAuxFailure = "aux_service_failed"

func (o *Orchestrator) dispatch(cmd command) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch c := cmd.(type) {
	case cmdIntent:
		o.onIntent(c.intent)
	case cmdTimeout:
		if o.stale("timer "+c.kind.String(), c.epoch) {
			return
		}
		o.onTimeout(c.kind)
	case cmdLaunched:
		o.onLaunched(c)
	case cmdProbed:
		if o.stale("probe", c.epoch) {
			return
		}
		o.onProbed(c.result)
	case cmdQuitDone:
		if o.stale("quit", c.epoch) {
			return
		}
		o.onQuitDone(c.err)
	case cmdKillDone:
		if o.stale("kill", c.epoch) {
			return
		}
		o.onKillDone(c.err)
	case cmdCleanupDone:
		if o.stale("cleanup", c.epoch) {
			return
		}
		o.onCleanupDone(c.err)
	case cmdExit:
		o.onExit(c.handle)
	case cmdFatal:
		o.onFatal(c.service, c.err)
	case cmdShutdown:
		o.onShutdown()
	}
}

// stale reports (and logs) results that belong to an earlier state.
func (o *Orchestrator) stale(what string, epoch uint64) bool {
	if epoch == o.epoch {
		return false
	}
	o.logger.Debug("dropping stale result",
		zap.String("source", what),
		zap.Uint64("epoch", epoch),
		zap.Uint64("current", o.epoch),
		zap.String("state", string(o.state)))
	return true
}

// enter is the only place state changes. It cancels the previous state's
// timer and work and publishes exactly one event.
func (o *Orchestrator) enter(to types.State, gameID, reason string) {
	from := o.state

	o.stopTimer()
	if o.opCancel != nil {
		o.opCancel()
	}
	parent := o.runCtx
	if parent == nil {
		parent = context.Background()
	}
	o.opCtx, o.opCancel = context.WithCancel(parent)
	o.epoch++
	o.seq++

	o.state = to
	o.gameID = gameID
	o.reason = reason
	o.since = time.Now()
	o.pending = nil
	o.candidates = nil

	ev := o.snapshotLocked()
	ev.Previous = from
	o.history.add(ev)
	o.metrics.RecordTransition(string(from), string(to), reason)
	o.logger.Info("state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		logging.GameID(gameID),
		zap.String("reason", reason),
		zap.Uint64("seq", ev.Seq))
	o.emit(ev)

	if to == types.StateIdle {
		o.entry = nil
		o.handle = nil
		o.launchTimer = nil
		o.killAttempts = 0
		if o.draining {
			o.markDrained()
		}
	}
}

func (o *Orchestrator) emit(msg any) {
	var done <-chan struct{}
	if o.runCtx != nil {
		done = o.runCtx.Done()
	}
	select {
	case o.outbox <- msg:
	case <-done:
	}
}

func (o *Orchestrator) toast(msg, reason string) {
	o.emit(types.Toast(msg, reason))
}

func (o *Orchestrator) alert(msg, reason string, fatal bool) {
	o.emit(types.OverlayDirective{
		Kind:      types.OverlayError,
		Message:   msg,
		GameID:    o.gameID,
		Reason:    reason,
		Fatal:     fatal,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) after(d time.Duration, kind timerKind) {
	epoch := o.epoch
	o.timer = time.AfterFunc(d, func() {
		o.post(cmdTimeout{epoch: epoch, kind: kind})
	})
}

func (o *Orchestrator) stopTimer() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) markDrained() {
	select {
	case <-o.drained:
	default:
		close(o.drained)
	}
}

func (o *Orchestrator) onIntent(in types.Intent) {
	if o.draining {
		o.metrics.RecordRejected(RejectShutdown)
		o.logger.Debug("intent ignored during shutdown", zap.String("type", string(in.Type)))
		return
	}

	d := o.deps.Router.Classify(in)
	o.logger.Debug("intent classified",
		zap.String("intent_id", in.ID),
		zap.String("type", string(in.Type)),
		zap.String("name", in.Name()),
		zap.Stringer("action", d.Action),
		zap.String("reason", d.Reason),
		zap.String("state", string(o.state)))

	switch d.Action {
	case intent.ActionIgnore:
		o.onIgnored(d)
	case intent.ActionLaunch, intent.ActionNeedsConfirm:
		if !o.state.AcceptsLaunch() {
			o.rejectBusy(d)
			return
		}
		if d.Action == intent.ActionLaunch {
			o.startLaunch(*d.Entry)
			return
		}
		o.askConfirm(d)
	case intent.ActionBackHome, intent.ActionQuit:
		o.onStop()
	case intent.ActionConfirmYes:
		o.onConfirm(true)
	case intent.ActionConfirmNo:
		o.onConfirm(false)
	}
}

func (o *Orchestrator) onIgnored(d intent.Decision) {
	o.metrics.RecordRejected(d.Reason)
	switch d.Reason {
	case intent.ReasonUnknownGame:
		o.toast(fmt.Sprintf("I don't know a game called %q", d.Intent.Name()), d.Reason)
	case intent.ReasonEmptyName:
		o.toast("Which game should I start?", d.Reason)
	}
}

func (o *Orchestrator) rejectBusy(d intent.Decision) {
	o.metrics.RecordRejected(RejectBusy)
	o.logger.Warn("launch rejected, session busy",
		zap.String("state", string(o.state)),
		logging.GameID(o.gameID),
		zap.String("requested", d.Intent.Name()))
	o.toast(fmt.Sprintf("%s is %s, try again in a moment", o.gameID, strings.ToLower(string(o.state))), RejectBusy)
}

// startLaunch vets entry and enters LAUNCHING. A rejected entry causes no
// transition.
func (o *Orchestrator) startLaunch(entry manifest.Entry) {
	spec, err := o.deps.Guard.Prepare(entry)
	if err != nil {
		reason := RejectUnlaunchable
		switch {
		case errors.Is(err, watchdog.ErrWhitelistViolation):
			reason = RejectWhitelist
		case errors.Is(err, watchdog.ErrUnsafeArgument):
			reason = RejectUnsafeArgs
		}
		o.metrics.RecordRejected(reason)
		o.logger.Warn("launch rejected before spawn", logging.GameID(entry.ID), zap.Error(err))
		o.emit(types.OverlayDirective{
			Kind:      types.OverlayError,
			Message:   fmt.Sprintf("%s cannot be started", entry.Name),
			GameID:    entry.ID,
			Reason:    reason,
			Timestamp: time.Now(),
		})
		return
	}

	e := entry.Clone()
	o.enter(types.StateLaunching, e.ID, "")
	o.entry = &e
	o.launchTimer = monitoring.NewTimer(o.metrics, e.ID)
	o.toast(fmt.Sprintf("Starting %s", e.Name), "")

	o.after(e.LaunchTimeout(o.opts.LaunchTimeout), timerLaunch)

	epoch, ctx := o.epoch, o.opCtx
	o.submit("launch", func() command {
		h, err := o.deps.Supervisor.Launch(ctx, spec)
		return cmdLaunched{epoch: epoch, handle: h, err: err}
	}, func(err error) command {
		return cmdLaunched{epoch: epoch, err: err}
	})
}

func (o *Orchestrator) askConfirm(d intent.Decision) {
	entry := d.Entry
	if entry == nil && len(d.Candidates) > 0 {
		if e, ok := o.deps.Catalog.Get(d.Candidates[0].ID); ok {
			entry = &e
		}
	}
	if entry == nil {
		o.onIgnored(intent.Decision{Intent: d.Intent, Reason: intent.ReasonUnknownGame})
		return
	}

	e := entry.Clone()
	o.enter(types.StateAwaitingConfirm, e.ID, d.Reason)
	o.pending = &e
	o.candidates = d.Candidates
	o.after(o.opts.ConfirmTimeout, timerConfirm)

	names := make([]string, 0, len(d.Candidates))
	for _, c := range d.Candidates {
		names = append(names, c.Name)
	}
	o.emit(types.OverlayDirective{
		Kind:       types.OverlayConfirm,
		Message:    fmt.Sprintf("Did you mean %s?", e.Name),
		GameID:     e.ID,
		Candidates: names,
		TimeoutMS:  o.opts.ConfirmTimeout.Milliseconds(),
		Reason:     d.Reason,
		Timestamp:  time.Now(),
	})
}

func (o *Orchestrator) onConfirm(yes bool) {
	if o.state != types.StateAwaitingConfirm {
		o.logger.Debug("confirmation without pending question", zap.String("state", string(o.state)))
		return
	}
	if !yes {
		o.enter(types.StateIdle, "", types.ReasonConfirmDeclined)
		return
	}
	if o.pending == nil {
		o.enter(types.StateIdle, "", types.ReasonConfirmCancelled)
		return
	}
	o.startLaunch(*o.pending)
}

// onStop handles BACK_HOME and QUIT. Both are idempotent.
func (o *Orchestrator) onStop() {
	switch o.state {
	case types.StateAwaitingConfirm:
		o.enter(types.StateIdle, "", types.ReasonConfirmCancelled)
	case types.StateLaunching:
		o.finishLaunch("cancelled")
		o.enterKilling(types.ReasonLaunchCancelled)
	case types.StateRunning:
		o.startQuit(types.ReasonUserRequest)
	default:
		o.logger.Debug("stop ignored", zap.String("state", string(o.state)))
	}
}

func (o *Orchestrator) onTimeout(kind timerKind) {
	switch {
	case kind == timerLaunch && o.state == types.StateLaunching:
		o.finishLaunch("timeout")
		o.logger.Warn("launch timed out", logging.GameID(o.gameID))
		o.alert(fmt.Sprintf("%s did not start in time", o.gameID), types.ReasonLaunchTimeout, false)
		o.enterKilling(types.ReasonLaunchTimeout)
	case kind == timerConfirm && o.state == types.StateAwaitingConfirm:
		o.enter(types.StateIdle, "", types.ReasonConfirmTimeout)
	case kind == timerQuit && o.state == types.StateQuitting:
		o.logger.Warn("graceful quit timed out", logging.GameID(o.gameID))
		o.enterKilling(types.ReasonQuitTimeout)
	case kind == timerCrash && o.state == types.StateCrashed:
		o.logger.Warn("crash cleanup exceeded its budget", logging.GameID(o.gameID))
		o.enter(types.StateIdle, o.gameID, types.ReasonCrashRecoveryTimeout)
	}
}

func (o *Orchestrator) onLaunched(c cmdLaunched) {
	if c.epoch != o.epoch || o.state != types.StateLaunching {
		if c.handle != nil && (o.handle == nil || o.handle.ID() != c.handle.ID()) {
			o.reapOrphan(c.handle)
		}
		o.stale("launch", c.epoch)
		return
	}

	if c.err != nil {
		o.logger.Error("spawn failed", logging.GameID(o.gameID), zap.Error(c.err))
		o.finishLaunch("spawn_failed")
		o.alert(fmt.Sprintf("Could not start %s", o.gameID), types.ReasonSpawnFailed, false)
		o.enterKilling(types.ReasonSpawnFailed)
		return
	}

	o.handle = c.handle
	entry := o.entry.Clone()
	h := c.handle
	timeout := entry.LaunchTimeout(o.opts.LaunchTimeout)
	epoch, ctx := o.epoch, o.opCtx
	o.submit("probe", func() command {
		res := o.deps.Prober.Probe(ctx, entry, timeout, func() bool { return !h.Exited() })
		return cmdProbed{epoch: epoch, result: res}
	}, func(err error) command {
		return cmdProbed{epoch: epoch, result: health.Result{Outcome: health.Failed, Err: err}}
	})
}

func (o *Orchestrator) onProbed(res health.Result) {
	if o.state != types.StateLaunching {
		return
	}
	switch res.Outcome {
	case health.Ready:
		d := o.finishLaunch("ready")
		o.logger.Info("game ready",
			logging.GameID(o.gameID),
			zap.Int("attempts", res.Attempts),
			zap.Duration("elapsed", d))
		o.enter(types.StateRunning, o.gameID, "")
	case health.TimedOut:
		o.finishLaunch("timeout")
		o.alert(fmt.Sprintf("%s did not start in time", o.gameID), types.ReasonLaunchTimeout, false)
		o.enterKilling(types.ReasonLaunchTimeout)
	case health.Failed:
		o.finishLaunch("probe_failed")
		o.logger.Warn("readiness probe failed", logging.GameID(o.gameID), zap.Error(res.Err))
		o.alert(fmt.Sprintf("%s is not responding", o.gameID), types.ReasonProbeFailed, false)
		o.enterKilling(types.ReasonProbeFailed)
	case health.Exited:
		o.finishLaunch("exited")
		o.alert(fmt.Sprintf("%s closed while starting", o.gameID), types.ReasonExitedDuringLaunch, false)
		o.enterKilling(types.ReasonExitedDuringLaunch)
	}
}

func (o *Orchestrator) finishLaunch(outcome string) time.Duration {
	if o.launchTimer == nil {
		return 0
	}
	d := o.launchTimer.Stop(outcome)
	o.launchTimer = nil
	return d
}

func (o *Orchestrator) startQuit(reason string) {
	h := o.handle
	if h == nil {
		o.enter(types.StateIdle, o.gameID, reason)
		return
	}
	timeout := o.entry.QuitTimeout(o.opts.QuitTimeout)

	o.enter(types.StateQuitting, o.gameID, reason)
	o.after(timeout+o.opts.QuitGrace, timerQuit)

	sup := o.deps.Supervisor
	epoch, ctx := o.epoch, o.opCtx
	o.submit("quit", func() command {
		err := sup.GracefulQuit(ctx, h, timeout)
		if err == nil {
			_, err = sup.WaitExit(ctx, h)
		}
		return cmdQuitDone{epoch: epoch, err: err}
	}, func(err error) command {
		return cmdQuitDone{epoch: epoch, err: err}
	})
}

func (o *Orchestrator) onQuitDone(err error) {
	if o.state != types.StateQuitting {
		return
	}
	if err == nil {
		o.enter(types.StateIdle, o.gameID, o.reason)
		return
	}
	if !errors.Is(err, supervisor.ErrQuitTimeout) {
		o.logger.Warn("graceful quit failed", logging.GameID(o.gameID), zap.Error(err))
	}
	o.enterKilling(types.ReasonQuitTimeout)
}

func (o *Orchestrator) enterKilling(reason string) {
	o.enter(types.StateKilling, o.gameID, reason)
	o.killAttempts = 0
	o.startKill()
}

func (o *Orchestrator) startKill() {
	h := o.handle
	sup := o.deps.Supervisor
	o.killAttempts++

	epoch, ctx := o.epoch, o.opCtx
	o.submit("kill", func() command {
		if h == nil {
			// the spawn may have succeeded after the launch was abandoned;
			// Current blocks while a spawn holds the supervisor
			h = sup.Current()
		}
		if h == nil {
			return cmdKillDone{epoch: epoch}
		}
		if err := sup.ForceKill(ctx, h); err != nil {
			return cmdKillDone{epoch: epoch, err: err}
		}
		_, err := sup.WaitExit(ctx, h)
		return cmdKillDone{epoch: epoch, err: err}
	}, func(err error) command {
		return cmdKillDone{epoch: epoch, err: err}
	})
}

func (o *Orchestrator) onKillDone(err error) {
	if o.state != types.StateKilling {
		return
	}
	if err == nil {
		o.enter(types.StateIdle, o.gameID, o.reason)
		return
	}
	if o.killAttempts < o.opts.KillRetries {
		o.logger.Warn("kill not confirmed, retrying",
			logging.GameID(o.gameID),
			zap.Int("attempt", o.killAttempts),
			zap.Error(err))
		o.startKill()
		return
	}

	o.logger.Error("giving up on killing child",
		logging.GameID(o.gameID),
		zap.Int("attempts", o.killAttempts),
		zap.Error(err))
	o.enter(types.StateIdle, o.gameID, types.ReasonKillUnconfirmed)
	o.alert(fmt.Sprintf("%s could not be stopped", o.gameID), types.ReasonKillUnconfirmed, true)
}

func (o *Orchestrator) onExit(h supervisor.Handle) {
	if h == nil || o.handle == nil || o.handle.ID() != h.ID() {
		o.logger.Debug("exit of untracked handle ignored", zap.String("state", string(o.state)))
		return
	}

	switch o.state {
	case types.StateRunning:
		o.logger.Error("game exited unexpectedly",
			logging.GameID(o.gameID),
			zap.String("prior_state", string(o.state)),
			zap.Int("pid", h.PID()),
			zap.Int("exit_code", h.ExitCode()),
			zap.Duration("uptime", time.Since(h.StartedAt())))
		o.metrics.RecordCrash(o.gameID)
		o.enter(types.StateCrashed, o.gameID, types.ReasonUnexpectedExit)
		o.alert(fmt.Sprintf("%s stopped unexpectedly", o.gameID), types.ReasonUnexpectedExit, false)
		o.after(o.opts.CrashRecovery, timerCrash)

		sup := o.deps.Supervisor
		epoch, ctx := o.epoch, o.opCtx
		o.submit("cleanup", func() command {
			if err := sup.ForceKill(ctx, h); err != nil {
				return cmdCleanupDone{epoch: epoch, err: err}
			}
			_, err := sup.WaitExit(ctx, h)
			return cmdCleanupDone{epoch: epoch, err: err}
		}, func(err error) command {
			return cmdCleanupDone{epoch: epoch, err: err}
		})
	case types.StateLaunching:
		o.logger.Warn("game exited during launch",
			logging.GameID(o.gameID),
			zap.Int("exit_code", h.ExitCode()))
		o.finishLaunch("exited")
		o.enterKilling(types.ReasonExitedDuringLaunch)
	default:
		o.logger.Debug("exit during teardown", zap.String("state", string(o.state)))
	}
}

func (o *Orchestrator) onCleanupDone(err error) {
	if o.state != types.StateCrashed {
		return
	}
	if err != nil {
		o.logger.Warn("crash cleanup incomplete", logging.GameID(o.gameID), zap.Error(err))
	}
	o.enter(types.StateIdle, o.gameID, types.ReasonUnexpectedExit)
}

func (o *Orchestrator) onFatal(service string, err error) {
	o.logger.Error("auxiliary service failed", zap.String("service", service), zap.Error(err))
	o.emit(types.OverlayDirective{
		Kind:      types.OverlayError,
		Message:   fmt.Sprintf("%s is not responding", service),
		Reason:    ReasonAuxFailure,
		Fatal:     true,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) onShutdown() {
	if o.draining {
		return
	}
	o.draining = true
	o.logger.Info("draining session", zap.String("state", string(o.state)))

	switch o.state {
	case types.StateIdle:
		o.markDrained()
	case types.StateAwaitingConfirm:
		o.enter(types.StateIdle, "", types.ReasonShutdown)
	case types.StateLaunching:
		o.finishLaunch("cancelled")
		o.enterKilling(types.ReasonShutdown)
	case types.StateRunning:
		o.startQuit(types.ReasonShutdown)
	}
}
