package pipelinerun

import (
	"log/slog"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/framedata"
	"behaviorpipe/internal/moviebuild"
	"behaviorpipe/internal/postures"
	"behaviorpipe/internal/runner"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/services/ffmpeg"
	"behaviorpipe/internal/services/pose"
	"behaviorpipe/internal/services/transform"
	"behaviorpipe/internal/viewsplit"
	"behaviorpipe/internal/workflow"
)

// buildStages wires the stage handlers for the run's perspective. Side
// recordings only get movies; every analysis stage is left unconfigured.
func buildStages(cfg *config.Config, run config.Run, exec services.Executor, logger *slog.Logger) (workflow.StageSet, error) {
	opts := runner.Options{Workers: run.Workers, Sequential: run.Debug}

	encoder, err := ffmpeg.New(cfg.Encoder, ffmpeg.WithExecutor(exec))
	if err != nil {
		return workflow.StageSet{}, services.Wrap(services.ErrConfiguration, "", "configure encoder", "", err)
	}
	set := workflow.StageSet{
		MovieBuilder: moviebuild.NewHandler(cfg, encoder, opts, logger),
	}
	if run.Locations.Perspective == config.PerspectiveSide {
		return set, nil
	}

	analyzer, err := pose.New(cfg.Pose, pose.WithExecutor(exec))
	if err != nil {
		return workflow.StageSet{}, services.Wrap(services.ErrConfiguration, "", "configure pose analyzer", "", err)
	}
	transformer, err := transform.New(cfg.Transform, transform.WithExecutor(exec))
	if err != nil {
		return workflow.StageSet{}, services.Wrap(services.ErrConfiguration, "", "configure transforms", "", err)
	}

	set.TopPostures = postures.NewTop(cfg, analyzer, opts, logger)
	set.ViewSplitter = viewsplit.NewHandler(cfg, transformer, opts, logger)
	set.LeftPostures = postures.NewLeft(cfg, analyzer, opts, logger)
	set.RightPostures = postures.NewRight(cfg, analyzer, opts, logger)
	set.FrameData = framedata.NewHandler(cfg, transformer, opts, logger)
	return set, nil
}
