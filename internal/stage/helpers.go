package stage

import (
	"context"
	"errors"
	"path/filepath"

	"behaviorpipe/internal/runner"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/staging"
)

// RequireScratch fails when a handler runs before its scratch dir is known.
func RequireScratch(stageName string, s *session.Session) error {
	if s == nil || s.ScratchDir == "" {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "scratch directory not prepared", nil)
	}
	return nil
}

// TrialVideos lists the per-trial videos staged for s.
func TrialVideos(stageName string, s *session.Session) ([]string, error) {
	names, err := staging.ListTrialMedia(s.ScratchDir)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stageName, "list trial videos", s.ScratchDir, err)
	}
	if len(names) == 0 {
		return nil, services.Wrap(services.ErrValidation, stageName, "list trial videos", "no trial videos staged in "+s.ScratchDir, nil)
	}
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(s.ScratchDir, name)
	}
	return paths, nil
}

// RunBatch runs fn once per key through the concurrency runner and wraps a
// partial failure as an external tool error naming the failed keys. Context
// cancellation is returned unwrapped.
func RunBatch(ctx context.Context, stageName, operation string, keys []string, opts runner.Options, fn func(context.Context, string) error) error {
	report := runner.Run(ctx, keys, opts, fn)
	err := report.Err()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	return services.Wrap(services.ErrExternalTool, stageName, operation, "", err)
}
