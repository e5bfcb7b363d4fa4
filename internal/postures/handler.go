package postures

import (
	"context"
	"errors"
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

// View selects which video of each trial a handler analyzes.
type View string

const (
	ViewTop   View = "top"
	ViewLeft  View = "left"
	ViewRight View = "right"
)

// Handler runs the pose analyzer over one view of every trial.
type Handler struct {
	view     View
	binary   string
	model    string
	shuffle  int
	analyzer pose.Analyzer
	opts     runner.Options
	logger   *slog.Logger
}

// NewTop analyzes the trial videos with the top-view model.
func NewTop(cfg *config.Config, analyzer pose.Analyzer, opts runner.Options, logger *slog.Logger) *Handler {
	return newHandler(ViewTop, cfg, cfg.Pose.TopViewConfig, cfg.Pose.TopShuffle, analyzer, opts, logger)
}

// NewLeft analyzes the masked left views with the whisker model.
func NewLeft(cfg *config.Config, analyzer pose.Analyzer, opts runner.Options, logger *slog.Logger) *Handler {
	return newHandler(ViewLeft, cfg, cfg.Pose.WhiskerConfig, cfg.Pose.LeftShuffle, analyzer, opts, logger)
}

// NewRight analyzes the mirrored right views with the whisker model.
func NewRight(cfg *config.Config, analyzer pose.Analyzer, opts runner.Options, logger *slog.Logger) *Handler {
	return newHandler(ViewRight, cfg, cfg.Pose.WhiskerConfig, cfg.Pose.RightShuffle, analyzer, opts, logger)
}

func newHandler(view View, cfg *config.Config, model string, shuffle int, analyzer pose.Analyzer, opts runner.Options, logger *slog.Logger) *Handler {
	binary, _ := services.SplitCommand(cfg.Pose.Command)
	return &Handler{
		view:     view,
		binary:   binary,
		model:    pose.ModelPath(cfg.Pose, model),
		shuffle:  shuffle,
		analyzer: analyzer,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, componentName(view)),
	}
}

func componentName(view View) string { return "postures_" + string(view) }

// Produces lists the analyzer outputs: coordinates and serialized model
// results.
func (h *Handler) Produces() []staging.Class {
	return []staging.Class{staging.ClassCSV, staging.ClassPickle, staging.ClassH5}
}

// Consumes lists the videos analyzed.
func (h *Handler) Consumes() []staging.Class {
	return []staging.Class{staging.ClassAVI}
}

// Prepare checks that the videos for this view are staged.
func (h *Handler) Prepare(_ context.Context, s *session.Session) error {
	if err := stage.RequireScratch(h.name(), s); err != nil {
		return err
	}
	_, err := h.videos(s)
	return err
}

// Execute analyzes each video that has no filtered coordinates yet.
func (h *Handler) Execute(ctx context.Context, s *session.Session) error {
	logger := logging.WithContext(ctx, h.logger)
	videos, err := h.videos(s)
	if err != nil {
		return err
	}

	var pending []string
	for _, video := range videos {
		if _, err := pose.FilteredCoordinates(s.ScratchDir, pose.Stem(video)); err == nil {
			continue
		}
		pending = append(pending, video)
	}
	logger.Info("pose analysis started",
		logging.String("model", h.model),
		logging.Int("shuffle", h.shuffle),
		logging.Int("videos", len(videos)),
		logging.Int("pending", len(pending)),
	)
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()
	err = stage.RunBatch(ctx, h.name(), "analyze", pending, h.opts, func(ctx context.Context, video string) error {
		csv, err := h.analyzer.Analyze(ctx, video, h.model, h.shuffle)
		if err != nil {
			return err
		}
		logger.Debug("video analyzed",
			logging.String("video", filepath.Base(video)),
			logging.String("coordinates", filepath.Base(csv)),
		)
		return nil
	})
	logger.Info("pose analysis finished",
		logging.Int("analyzed", len(pending)),
		logging.Bool("failed", err != nil),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "postures_analyzed"),
	)
	return err
}

// HealthCheck verifies the analyzer binary and model config are present.
func (h *Handler) HealthCheck(context.Context) stage.Readiness {
	return stage.ToolsReady(h.name(), h.binary).RequireFile("model config", h.model)
}

func (h *Handler) name() string { return componentName(h.view) }

// videos resolves the inputs for this view from the staged trial videos.
func (h *Handler) videos(s *session.Session) ([]string, error) {
	trials, err := stage.TrialVideos(h.name(), s)
	if err != nil {
		return nil, err
	}
	if h.view == ViewTop {
		return trials, nil
	}

	out := make([]string, 0, len(trials))
	for _, trial := range trials {
		stem := pose.Stem(trial)
		name := transform.LeftVideoName(stem)
		if h.view == ViewRight {
			name = transform.RightVideoName(stem)
		}
		path := filepath.Join(s.ScratchDir, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, services.Wrap(services.ErrValidation, h.name(), "resolve videos", "derived view missing: "+name, err)
			}
			return nil, services.Wrap(services.ErrTransient, h.name(), "resolve videos", name, err)
		}
		out = append(out, path)
	}
	return out, nil
}
