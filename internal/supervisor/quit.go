package supervisor

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/logging"
)

// sendQuit performs the entry's graceful quit operation.
func (s *Supervisor) sendQuit(ctx context.Context, p *proc) error {
	switch p.quit.QuitType() {
	case manifest.QuitHTTP:
		resp, err := s.http.R().SetContext(ctx).Post(p.quit.URL)
		if err != nil {
			return fmt.Errorf("quit request: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("quit request: status %d", resp.StatusCode())
		}
		s.logger.Debug("quit request accepted", logging.GameID(p.gameID), zap.Int("status", resp.StatusCode()))
		return nil

	default:
		sig, err := signalFor(p.quit.SignalName())
		if err != nil {
			return err
		}
		pr, err := process.NewProcessWithContext(ctx, int32(p.PID()))
		if err != nil {
			// already gone
			return nil
		}
		if err := pr.SendSignalWithContext(ctx, sig); err != nil {
			return fmt.Errorf("send %s: %w", p.quit.SignalName(), err)
		}
		return nil
	}
}
