package viewsplit

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

const stageName = "viewsplit"

// Handler splits every trial video into left and right views.
type Handler struct {
	binary   string
	splitter transform.Splitter
	opts     runner.Options
	logger   *slog.Logger
}

// NewHandler constructs the view-split handler.
func NewHandler(cfg *config.Config, splitter transform.Splitter, opts runner.Options, logger *slog.Logger) *Handler {
	binary, _ := services.SplitCommand(cfg.Transform.Command)
	return &Handler{
		binary:   binary,
		splitter: splitter,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, stageName),
	}
}

// Produces lists the derived videos.
func (h *Handler) Produces() []staging.Class {
	return []staging.Class{staging.ClassAVI}
}

// Consumes lists the trial videos and their coordinates.
func (h *Handler) Consumes() []staging.Class {
	return []staging.Class{staging.ClassAVI, staging.ClassCSV}
}

// Prepare checks every trial video has filtered coordinates.
func (h *Handler) Prepare(_ context.Context, s *session.Session) error {
	if err := stage.RequireScratch(stageName, s); err != nil {
		return err
	}
	videos, err := stage.TrialVideos(stageName, s)
	if err != nil {
		return err
	}
	for _, video := range videos {
		if _, err := pose.FilteredCoordinates(s.ScratchDir, pose.Stem(video)); err != nil {
			return services.Wrap(services.ErrValidation, stageName, "prepare", filepath.Base(video), err)
		}
	}
	return nil
}

// Execute renders the views for every trial not already split.
func (h *Handler) Execute(ctx context.Context, s *session.Session) error {
	logger := logging.WithContext(ctx, h.logger)
	videos, err := stage.TrialVideos(stageName, s)
	if err != nil {
		return err
	}

	var pending []string
	for _, video := range videos {
		if split(s.ScratchDir, pose.Stem(video)) {
			continue
		}
		pending = append(pending, video)
	}
	if len(pending) == 0 {
		logger.Info("views already split", logging.Int("trials", len(videos)))
		return nil
	}

	start := time.Now()
	err = stage.RunBatch(ctx, stageName, "split", pending, h.opts, func(ctx context.Context, video string) error {
		coords, err := pose.FilteredCoordinates(s.ScratchDir, pose.Stem(video))
		if err != nil {
			return err
		}
		trialStart := time.Now()
		if _, _, err := h.splitter.Split(ctx, video, coords); err != nil {
			return err
		}
		logger.Debug("trial split",
			logging.String("video", filepath.Base(video)),
			logging.Duration("elapsed", time.Since(trialStart)),
		)
		return nil
	})
	logger.Info("view split finished",
		logging.Int("trials", len(videos)),
		logging.Int("split", len(pending)),
		logging.Bool("failed", err != nil),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "left_right_split"),
	)
	return err
}

// HealthCheck verifies the transform binary is installed.
func (h *Handler) HealthCheck(context.Context) stage.Readiness {
	return stage.ToolsReady(stageName, h.binary)
}

func split(dir, trial string) bool {
	for _, name := range []string{transform.LeftVideoName(trial), transform.RightVideoName(trial)} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}
