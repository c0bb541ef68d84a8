package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/infrastructure/logging"
	"github.com/GriffinCanCode/arcade/internal/supervisor"
)

// submit runs fn on the worker pool and feeds its result back to the
// actor. A panic or a refused submission becomes fail's result instead.
func (o *Orchestrator) submit(name string, fn func() command, fail func(error) command) {
	task := func() {
		var result command
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("job panicked", zap.String("job", name), zap.Any("panic", r))
					result = fail(fmt.Errorf("%s: panic: %v", name, r))
				}
			}()
			result = fn()
		}()
		if result != nil {
			o.post(result)
		}
	}

	if err := o.pool.Submit(task); err != nil {
		o.logger.Error("job not scheduled", zap.String("job", name), zap.Error(err))
		// the actor cannot block on its own queue
		go o.post(fail(fmt.Errorf("schedule %s: %w", name, err)))
	}
}

// reapOrphan kills a child whose launch result arrived after the launch
// was abandoned.
func (o *Orchestrator) reapOrphan(h supervisor.Handle) {
	o.logger.Warn("killing orphaned child", logging.GameID(h.GameID()), zap.Int("pid", h.PID()))
	ctx := o.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	sup := o.deps.Supervisor
	o.submit("orphan", func() command {
		if err := sup.ForceKill(ctx, h); err == nil {
			_, _ = sup.WaitExit(ctx, h)
		}
		return nil
	}, func(error) command { return nil })
}
