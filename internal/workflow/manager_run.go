package workflow

import (
	"context"
	"path/filepath"
	"sort"

	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/reconcile"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/staging"
	"behaviorpipe/internal/statusindex"
)

// Drive steps s forward until it reaches the terminal stage, the run's task
// limit, an unconfigured stage, or an error. A terminal work-unit publishes
// every artifact still held in scratch and is marked processed in its group
// status file. An early stop leaves retained artifacts in scratch; their
// copies already reached final storage after each stage.
func (m *Manager) Drive(ctx context.Context, s *session.Session) UnitResult {
	ctx = services.WithSession(services.WithGroup(ctx, s.Group), s.Name)
	logger := logging.WithContext(ctx, m.logger)
	start := m.now()
	result := UnitResult{Key: s.Key(), From: s.Stage, To: s.Stage}

	if err := m.layout.Prepare(s); err != nil {
		result.Err = services.Wrap(services.ErrTransient, "workflow", "prepare scratch", "", err)
		result.Duration = m.now().Sub(start)
		return result
	}

	for {
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}
		step, err := m.Step(ctx, s)
		result.To = s.Stage
		if err != nil {
			result.Err = err
			break
		}
		if step.Stop != "" {
			result.Stop = step.Stop
			break
		}
	}

	if result.Err == nil {
		m.finish(ctx, s, result.Stop)
	}
	result.Duration = m.now().Sub(start)
	logger.Info("session finished",
		logging.String("from_stage", string(result.From)),
		logging.String("to_stage", string(result.To)),
		logging.String("stop", string(result.Stop)),
		logging.Bool("failed", result.Err != nil),
		logging.Duration("elapsed", result.Duration),
		logging.String(logging.FieldEventType, "session_finished"),
	)
	return result
}

func (m *Manager) finish(ctx context.Context, s *session.Session, stop StopReason) {
	logger := logging.WithContext(ctx, m.logger)
	if stop == StopNotConfigured {
		next, _ := session.Next(s.Stage)
		logger.Info("no handler configured for next stage; stopping",
			logging.String("next_stage", string(next)),
			logging.String("perspective", m.run.Locations.Perspective),
		)
	}

	if stop != StopTerminal {
		return
	}
	published := m.publish(ctx, s, m.deferredClasses(s.Stage), string(stop), false)

	statusPath := statusindex.Path(filepath.Join(m.run.Locations.InputRoot, s.Group))
	if m.status != nil {
		if err := m.status.MarkProcessed(statusPath, s.Name); err != nil {
			logging.WarnWithContext(logger, "failed to mark session processed", "status_update_failed",
				logging.String("status_file", statusPath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the next reconciliation marks it instead"),
			)
		}
	}

	if !m.cleanupScratch || !published {
		return
	}
	unitDir := m.layout.UnitDir(s.Group, s.Name)
	retired, done, err := staging.RetireDir(unitDir, m.now())
	if err != nil {
		logging.WarnWithContext(logger, "failed to retire scratch directory", "scratch_retire_failed",
			logging.String("path", unitDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "scratch space not reclaimed"),
		)
		return
	}
	m.cleanup.Add(1)
	go func() {
		defer m.cleanup.Done()
		if err := <-done; err != nil {
			logger.Debug("background scratch removal incomplete", logging.String("path", retired), logging.Error(err))
		}
	}()
}

// WaitForCleanup blocks until background scratch removals have finished.
func (m *Manager) WaitForCleanup() {
	m.cleanup.Wait()
}

// Process drives every pending work-unit in group/unit order. A failing
// work-unit never stops its siblings; only a fatal configuration error or
// cancellation ends the batch early, and is returned alongside the partial
// summary.
func (m *Manager) Process(ctx context.Context, pending []reconcile.Pending) (Summary, error) {
	ordered := make([]reconcile.Pending, len(pending))
	copy(ordered, pending)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Group != ordered[j].Group {
			return ordered[i].Group < ordered[j].Group
		}
		return ordered[i].Unit < ordered[j].Unit
	})

	var summary Summary
	for _, p := range ordered {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		s := session.New(m.run.Locations.InputRoot, m.run.Locations.OutputRoot, p.Group, p.Unit)
		s.TrialCount = p.TrialCount
		s.Stage = p.Stage
		if !s.Stage.Valid() {
			s.Stage = session.InitialStage
		}

		result := m.Drive(ctx, s)
		summary.Results = append(summary.Results, result)
		if result.Err != nil && services.IsFatal(result.Err) {
			return summary, result.Err
		}
	}
	return summary, nil
}
