package workflow

import (
	"context"

	"behaviorpipe/internal/session"
	"behaviorpipe/internal/stage"
)

// StageHealth runs every configured handler's health check in pipeline
// order. Stages the run's task never enters are skipped.
func (m *Manager) StageHealth(ctx context.Context) []stage.Readiness {
	var out []stage.Readiness
	for _, stg := range m.stages {
		if stg.handler == nil || !m.task.Allows(stg.target) {
			continue
		}
		out = append(out, stg.handler.HealthCheck(ctx))
	}
	return out
}

// Stages lists the stages with a configured handler.
func (m *Manager) Stages() []session.Stage {
	var out []session.Stage
	for _, stg := range m.stages {
		if stg.handler != nil {
			out = append(out, stg.target)
		}
	}
	return out
}
