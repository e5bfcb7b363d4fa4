package pipelinerun

import (
	"fmt"
	"log/slog"
	"time"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/workflow"
)

func reportSettings(logger *slog.Logger, run config.Run, logPath string) {
	logger.Info("running with the following settings",
		logging.String(logging.FieldEventType, "run_settings"),
		logging.String("run_id", run.ID),
		logging.String("user", run.User),
		logging.String("source_host", run.SourceHost),
		logging.String("compute_host", run.ComputeHost),
		logging.String("task", run.Task),
		logging.Bool("debug", run.Debug),
		logging.Int("workers", run.Workers),
		logging.String("perspective", run.Locations.Perspective),
		logging.String("input_root", run.Locations.InputRoot),
		logging.String("output_root", run.Locations.OutputRoot),
		logging.String("scratch_root", run.Locations.ScratchRoot),
		logging.String("log_file", logPath),
	)
	if !run.Locations.KnownHost {
		logging.WarnWithContext(logger, "source host not configured; using user-level roots", "unknown_host",
			logging.String("source_host", run.SourceHost),
			logging.String(logging.FieldErrorHint, "add a [hosts] entry with cam_location and perspective"),
			logging.String(logging.FieldImpact, "recordings are read from the user's base directory as top view"),
		)
	}
}

func reportSummary(logger *slog.Logger, summary workflow.Summary, elapsed time.Duration) {
	for _, failure := range summary.Failures() {
		attrs := []logging.Attr{
			logging.String("session", failure.Key),
			logging.String("stage", string(failure.To)),
			logging.String("error_kind", services.Kind(failure.Err)),
			logging.Error(failure.Err),
		}
		logging.WarnWithContext(logger, "session did not complete", "session_failed", attrs...)
	}
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.Int("sessions", len(summary.Results)),
		logging.Int("completed", len(summary.Completed())),
		logging.Int("stopped", len(summary.Stopped())),
		logging.Int("failed", len(summary.Failures())),
		logging.String("elapsed", FormatElapsed(elapsed)),
	)
}

// FormatElapsed renders a run duration for the end-of-run report: whole
// seconds below a minute, hours and minutes otherwise. Partial units are
// truncated.
func FormatElapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("took %d seconds", int(d/time.Second))
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("took %d hour(s) and %d minute(s)", hours, minutes)
}
