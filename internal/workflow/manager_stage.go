package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"

	"behaviorpipe/internal/history"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/manifest"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/session"
)

// StepResult describes a single Step. Stop is set when no stage ran.
type StepResult struct {
	From session.Stage
	To   session.Stage
	Stop StopReason
}

// Step executes exactly the next stage of s. The manifest is advanced only
// after the stage handler has fully succeeded; on any error s keeps its
// current stage and the work-unit is eligible for retry on the next run.
func (m *Manager) Step(ctx context.Context, s *session.Session) (StepResult, error) {
	result := StepResult{From: s.Stage, To: s.Stage}
	next, ok := session.Next(s.Stage)
	if !ok {
		result.Stop = StopTerminal
		return result, nil
	}
	if !m.task.Allows(next) {
		result.Stop = StopTaskLimit
		return result, nil
	}
	stg, ok := m.stageFor(next)
	if !ok || stg.handler == nil {
		result.Stop = StopNotConfigured
		return result, nil
	}

	stageCtx := services.WithStage(ctx, string(next))
	logger := logging.WithContext(stageCtx, m.logger)

	if next == session.StageMoviesBuilt {
		if err := m.requireInputRoot(); err != nil {
			return result, err
		}
	}
	if stg.gated {
		if err := m.checkTrialCount(stageCtx, s); err != nil {
			m.handleStageFailure(stageCtx, stg, s, history.OutcomeBlocked, err)
			return result, err
		}
	}

	start := m.now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("from_stage", string(s.Stage)),
		logging.String("label", next.Label()),
		logging.Int("trials", s.TrialCount),
	)

	m.restageInputs(stageCtx, stg, s)
	if err := stg.handler.Prepare(stageCtx, s); err != nil {
		m.handleStageFailure(stageCtx, stg, s, history.OutcomeFailed, err)
		return result, err
	}
	if err := stg.handler.Execute(stageCtx, s); err != nil {
		m.handleStageFailure(stageCtx, stg, s, history.OutcomeFailed, err)
		return result, err
	}
	// Copies of retained artifacts reach final storage before the manifest
	// records the stage, so a resumed run can restage them.
	m.publish(stageCtx, s, m.retainedClasses(stg), "checkpoint", true)
	if err := m.manifests.Advance(manifest.Path(s.InputDir), next); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		m.handleStageFailure(stageCtx, stg, s, history.OutcomeFailed, wrapped)
		return result, wrapped
	}

	s.Stage = next
	result.To = next
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", m.now().Sub(start)),
	)
	m.recordTransition(stageCtx, s, result.From, next, history.OutcomeAdvanced, nil)
	m.publish(stageCtx, s, m.immediateClasses(stg), "stage_complete", false)
	return result, nil
}

func (m *Manager) requireInputRoot() error {
	info, err := os.Stat(m.run.Locations.InputRoot)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "movies", "check input root", "input root unavailable: "+m.run.Locations.InputRoot, err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "movies", "check input root", m.run.Locations.InputRoot+" is not a directory", nil)
	}
	return nil
}

func (m *Manager) handleStageFailure(ctx context.Context, stg pipelineStage, s *session.Session, outcome history.Outcome, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)
	if errors.Is(stageErr, context.Canceled) {
		logger.Debug("stage interrupted by shutdown")
		return
	}

	attrs := []logging.Attr{
		logging.String("stage_handler", stg.name),
		logging.String("current_stage", string(s.Stage)),
		logging.String("outcome", string(outcome)),
		logging.Alert("stage_failure"),
	}
	attrs = append(attrs, services.Details(stageErr)...)
	var mismatch *CountMismatchError
	if errors.As(stageErr, &mismatch) {
		attrs = append(attrs,
			logging.Int("expected", mismatch.Expected),
			logging.Int("actual", mismatch.Actual),
			logging.String(logging.FieldErrorHint, "check that every trial produced a video; the session is retried next run"),
		)
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)
	m.recordTransition(ctx, s, s.Stage, stg.target, outcome, stageErr)
}

func (m *Manager) recordTransition(ctx context.Context, s *session.Session, from, to session.Stage, outcome history.Outcome, stageErr error) {
	if m.ledger == nil {
		return
	}
	tr := history.Transition{
		RunID:   m.run.ID,
		Group:   s.Group,
		Session: s.Name,
		From:    from,
		To:      to,
		Outcome: outcome,
		At:      m.now(),
	}
	if stageErr != nil {
		tr.Error = stageErr.Error()
	}
	if err := m.ledger.RecordTransition(ctx, tr); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "failed to record stage transition", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history is incomplete; pipeline state is unaffected"),
		)
	}
}
