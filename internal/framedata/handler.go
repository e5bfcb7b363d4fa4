package framedata

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/runner"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/services/pose"
	"behaviorpipe/internal/services/transform"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/stage"
	"behaviorpipe/internal/staging"
)

const stageName = "framedata"

// Handler writes per-trial frame-data spreadsheets.
type Handler struct {
	binary string
	writer transform.FrameDataWriter
	opts   runner.Options
	logger *slog.Logger
}

// NewHandler constructs the frame-data handler.
func NewHandler(cfg *config.Config, writer transform.FrameDataWriter, opts runner.Options, logger *slog.Logger) *Handler {
	binary, _ := services.SplitCommand(cfg.Transform.FrameDataCommand)
	return &Handler{
		binary: binary,
		writer: writer,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Produces lists the spreadsheets.
func (h *Handler) Produces() []staging.Class {
	return []staging.Class{staging.ClassXLSX}
}

// Consumes lists the coordinates read.
func (h *Handler) Consumes() []staging.Class {
	return []staging.Class{staging.ClassCSV}
}

// Prepare checks the trial videos are staged.
func (h *Handler) Prepare(_ context.Context, s *session.Session) error {
	if err := stage.RequireScratch(stageName, s); err != nil {
		return err
	}
	_, err := stage.TrialVideos(stageName, s)
	return err
}

// Execute writes a spreadsheet for every trial that lacks one.
func (h *Handler) Execute(ctx context.Context, s *session.Session) error {
	logger := logging.WithContext(ctx, h.logger)
	videos, err := stage.TrialVideos(stageName, s)
	if err != nil {
		return err
	}

	var pending []string
	for _, video := range videos {
		trial := pose.Stem(video)
		if _, err := os.Stat(filepath.Join(s.ScratchDir, transform.FrameDataName(trial))); err == nil {
			continue
		}
		pending = append(pending, trial)
	}
	if len(pending) == 0 {
		logger.Info("frame data already written", logging.Int("trials", len(videos)))
		return nil
	}

	start := time.Now()
	err = stage.RunBatch(ctx, stageName, "write frame data", pending, h.opts, func(ctx context.Context, trial string) error {
		coords, err := pose.FilteredCoordinates(s.ScratchDir, trial)
		if err != nil {
			return err
		}
		_, err = h.writer.WriteFrameData(ctx, trial, coords, s.ScratchDir)
		return err
	})
	logger.Info("frame data finished",
		logging.Int("trials", len(videos)),
		logging.Int("written", len(pending)),
		logging.Bool("failed", err != nil),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "frame_data_written"),
	)
	return err
}

// HealthCheck verifies the frame-data binary is installed.
func (h *Handler) HealthCheck(context.Context) stage.Readiness {
	return stage.ToolsReady(stageName, h.binary)
}
