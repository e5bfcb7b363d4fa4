package workflow

import (
	"context"
	"slices"

	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/staging"
)

// immediateClasses returns what stg produces that no later configured stage
// consumes; those artifacts can leave scratch as soon as stg completes.
func (m *Manager) immediateClasses(stg pipelineStage) []staging.Class {
	needed := m.consumedAfter(stg.target)
	var out []staging.Class
	for _, class := range stg.produces() {
		if !slices.Contains(needed, class) {
			out = append(out, class)
		}
	}
	return out
}

// retainedClasses returns what stg produces that a later configured stage
// reads from scratch. They are copied to final storage so a resumed run can
// restage them, and stay in scratch until the work-unit finishes.
func (m *Manager) retainedClasses(stg pipelineStage) []staging.Class {
	needed := m.consumedAfter(stg.target)
	var out []staging.Class
	for _, class := range stg.produces() {
		if slices.Contains(needed, class) {
			out = append(out, class)
		}
	}
	return out
}

// deferredClasses returns what stages up to and including current produced
// but held back in scratch for a later stage.
func (m *Manager) deferredClasses(current session.Stage) []staging.Class {
	var out []staging.Class
	for _, stg := range m.stages {
		if stg.handler == nil || session.Compare(stg.target, current) > 0 {
			continue
		}
		needed := m.consumedAfter(stg.target)
		for _, class := range stg.produces() {
			if slices.Contains(needed, class) && !slices.Contains(out, class) {
				out = append(out, class)
			}
		}
	}
	return out
}

func (m *Manager) consumedAfter(target session.Stage) []staging.Class {
	var out []staging.Class
	for _, stg := range m.stages {
		if stg.handler == nil || session.Compare(stg.target, target) <= 0 {
			continue
		}
		out = append(out, stg.consumes()...)
	}
	return out
}

// publish transfers classes from the work-unit's scratch dir to its output
// dir, copying when keepSource is set and otherwise using the configured
// mode. Failures are warnings: the stage already completed and the manifest
// has advanced. It reports whether every artifact reached final storage.
func (m *Manager) publish(ctx context.Context, s *session.Session, classes []staging.Class, reason string, keepSource bool) bool {
	if len(classes) == 0 || m.publisher == nil {
		return true
	}
	logger := logging.WithContext(ctx, m.logger)
	transfer := m.publisher.PublishClasses
	if keepSource {
		transfer = m.publisher.CopyClasses
	}
	results, err := transfer(ctx, s.ScratchDir, s.OutputDir, staging.SortClasses(classes))
	complete := err == nil
	for _, res := range results {
		if res.Skipped {
			complete = false
		}
	}
	if err != nil {
		logging.WarnWithContext(logger, "artifact publication incomplete", "publish_failed",
			logging.String("reason", reason),
			logging.String("destination", s.OutputDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "rerun the pipeline or transfer the remaining files manually"),
			logging.String(logging.FieldImpact, "some artifacts remain only in scratch"),
		)
	}
	return complete
}

// restageInputs copies back from final storage any published artifact of a
// class stg reads that is missing from scratch, such as after scratch was
// wiped between runs. Failures are warnings; the handler's Prepare reports
// what is still missing.
func (m *Manager) restageInputs(ctx context.Context, stg pipelineStage, s *session.Session) {
	classes := stg.consumes()
	if len(classes) == 0 {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	copied, err := staging.RestageClasses(ctx, s.OutputDir, s.ScratchDir, classes, m.restageOpts)
	if err != nil {
		logging.WarnWithContext(logger, "restage of stage inputs failed", "restage_failed",
			logging.String("source", s.OutputDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stage may fail for missing inputs"),
		)
		return
	}
	if copied > 0 {
		logger.Info("restaged stage inputs from final storage",
			logging.Int("copied", copied),
			logging.String("source", s.OutputDir),
			logging.String(logging.FieldEventType, "restaged"),
		)
	}
}
