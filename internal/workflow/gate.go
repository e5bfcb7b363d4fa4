package workflow

import (
	"context"

	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/staging"
)

// checkTrialCount requires exactly one staged video per trial. When scratch
// is short but final storage already holds the full set, the videos are
// copied back into scratch and counted again.
func (m *Manager) checkTrialCount(ctx context.Context, s *session.Session) error {
	logger := logging.WithContext(ctx, m.logger)
	actual, err := staging.CountTrialMedia(s.ScratchDir)
	if err != nil {
		return services.Wrap(services.ErrTransient, "gate", "count staged videos", s.ScratchDir, err)
	}
	if actual > 0 && actual == s.TrialCount {
		return nil
	}

	published, err := staging.CountTrialMedia(s.OutputDir)
	if err == nil && published > 0 && published == s.TrialCount {
		copied, restageErr := staging.Restage(ctx, s.OutputDir, s.ScratchDir, m.restageOpts)
		if restageErr != nil {
			logging.WarnWithContext(logger, "restage from final storage failed", "restage_failed",
				logging.String("source", s.OutputDir),
				logging.Error(restageErr),
				logging.String(logging.FieldImpact, "session held at its current stage"),
			)
		} else {
			logger.Info("restaged trial videos from final storage",
				logging.Int("copied", copied),
				logging.String("source", s.OutputDir),
				logging.String(logging.FieldEventType, "restaged"),
			)
		}
		actual, err = staging.CountTrialMedia(s.ScratchDir)
		if err == nil && actual == s.TrialCount {
			return nil
		}
	}

	return services.Wrap(services.ErrValidation, "gate", "trial count", "",
		&CountMismatchError{Expected: s.TrialCount, Actual: actual, Dir: s.ScratchDir})
}
