package moviebuild

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/manifest"
	"behaviorpipe/internal/runner"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/services/ffmpeg"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/stage"
	"behaviorpipe/internal/staging"
)

const stageName = "movies"

// Handler builds per-trial videos from frame images.
type Handler struct {
	binary  string
	encoder ffmpeg.Encoder
	opts    runner.Options
	logger  *slog.Logger
}

// NewHandler constructs the movie-building handler.
func NewHandler(cfg *config.Config, encoder ffmpeg.Encoder, opts runner.Options, logger *slog.Logger) *Handler {
	return &Handler{
		binary:  cfg.Encoder.Binary,
		encoder: encoder,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, stageName),
	}
}

// Produces lists the video containers written per trial.
func (h *Handler) Produces() []staging.Class {
	return []staging.Class{staging.ClassAVI, staging.ClassMP4}
}

// Consumes is empty; frames are read from the input tree, not scratch.
func (h *Handler) Consumes() []staging.Class { return nil }

// Prepare verifies the trial folders exist under the input root.
func (h *Handler) Prepare(_ context.Context, s *session.Session) error {
	if err := stage.RequireScratch(stageName, s); err != nil {
		return err
	}
	trials, err := manifest.ListTrialFolders(s.InputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, stageName, "prepare", "session directory missing: "+s.InputDir, err)
		}
		return services.Wrap(services.ErrTransient, stageName, "prepare", "list trial folders", err)
	}
	if len(trials) == 0 {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "no trial folders in "+s.InputDir, nil)
	}
	return nil
}

// Execute encodes every trial missing either container in scratch.
func (h *Handler) Execute(ctx context.Context, s *session.Session) error {
	logger := logging.WithContext(ctx, h.logger)
	trials, err := manifest.ListTrialFolders(s.InputDir)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "list trial folders", s.InputDir, err)
	}

	start := time.Now()
	var skipped int
	var pending []string
	for _, trial := range trials {
		if exists(aviPath(s, trial)) && exists(mp4Path(s, trial)) {
			skipped++
			continue
		}
		pending = append(pending, trial)
	}
	if len(pending) == 0 {
		logger.Info("movies already built", logging.Int("trials", len(trials)))
		return nil
	}

	err = stage.RunBatch(ctx, stageName, "encode", pending, h.opts, func(ctx context.Context, trial string) error {
		frameDir := filepath.Join(s.InputDir, trial)
		if err := h.encoder.Encode(ctx, frameDir, aviPath(s, trial), mp4Path(s, trial)); err != nil {
			if errors.Is(err, ffmpeg.ErrNoFrames) {
				return services.Wrap(services.ErrValidation, stageName, "encode", "trial "+trial, err)
			}
			return err
		}
		logger.Debug("trial encoded", logging.String("trial", trial))
		return nil
	})
	logger.Info("movie build finished",
		logging.Int("trials", len(trials)),
		logging.Int("encoded", len(pending)),
		logging.Int("skipped", skipped),
		logging.Bool("failed", err != nil),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "movies_built"),
	)
	return err
}

// HealthCheck verifies the encoder binary is installed.
func (h *Handler) HealthCheck(context.Context) stage.Readiness {
	return stage.ToolsReady(stageName, h.binary)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func aviPath(s *session.Session, trial string) string {
	return filepath.Join(s.ScratchDir, trial+string(staging.ClassAVI))
}

func mp4Path(s *session.Session, trial string) string {
	return filepath.Join(s.ScratchDir, trial+string(staging.ClassMP4))
}
