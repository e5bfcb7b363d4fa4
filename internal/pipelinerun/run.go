package pipelinerun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/history"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/manifest"
	"behaviorpipe/internal/preflight"
	"behaviorpipe/internal/reconcile"
	"behaviorpipe/internal/runner"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/staging"
	"behaviorpipe/internal/statusindex"
	"behaviorpipe/internal/workflow"
)

// LockFileName is the single-orchestrator lock kept in the log directory.
const LockFileName = "behaviorpipe.lock"

// Result describes a finished run.
type Result struct {
	Run       config.Run
	LogPath   string
	Reconcile reconcile.Result
	Summary   workflow.Summary
	Elapsed   time.Duration
}

// Run executes one pipeline invocation. The returned error is non-nil only
// for failures that stop the whole run; per-session failures are reported
// in Result.Summary.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) (Result, error) {
	started := time.Now()
	run, err := Resolve(cfg, opts)
	if err != nil {
		return Result{}, err
	}
	result := Result{Run: run}

	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = services.WithRunID(ctx, run.ID)

	if err := cfg.EnsureDirectories(); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "", "prepare directories", "", err)
	}

	result.LogPath = opts.LogPath
	if result.LogPath == "" {
		result.LogPath = logging.RunLogPath(cfg.Paths.LogDir, run.ID)
	}
	logger, closeLog, err := logging.NewForRun(cfg, logging.RunOptions{LogPath: result.LogPath, Console: opts.Console})
	if err != nil {
		return result, services.Wrap(services.ErrConfiguration, "", "init logger", result.LogPath, err)
	}
	defer closeLog()

	lockPath := filepath.Join(cfg.Paths.LogDir, LockFileName)
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return result, services.Wrap(services.ErrConfiguration, "", "acquire lock", lockPath, err)
	}
	if !locked {
		return result, services.Wrap(services.ErrConfiguration, "", "acquire lock",
			fmt.Sprintf("another behaviorpipe run holds %s", lockPath), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	reportSettings(logger, run, result.LogPath)

	if err := requireInputRoot(run.Locations.InputRoot); err != nil {
		logging.ErrorWithContext(logger, "input folder does not exist; exiting", "input_root_missing",
			logging.String("input_root", run.Locations.InputRoot),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the capture share is mounted and the host/user are correct"),
		)
		return result, err
	}
	if err := os.MkdirAll(run.Locations.OutputRoot, 0o755); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "", "create output root", run.Locations.OutputRoot, err)
	}

	housekeeping(ctx, cfg, run, result.LogPath, logger)
	logPreflight(cfg, run, logger)

	ledger := openLedger(ctx, cfg, run, logger)
	if ledger != nil {
		defer ledger.Close()
	}

	manifests := manifest.NewStore(logger)
	status := statusindex.NewStore(logger)
	reconciled, err := reconcile.New(manifests, status, logger).Reconcile(ctx, run.Locations.InputRoot)
	if err != nil {
		return result, err
	}
	result.Reconcile = reconciled
	logger.Info(fmt.Sprintf("there are %d outstanding job(s) to process", reconciled.Outstanding()),
		logging.String(logging.FieldEventType, "reconcile_complete"),
		logging.Int("groups", reconciled.Groups),
		logging.Int("rebuilt", len(reconciled.Rebuilt)),
		logging.Int("errors", len(reconciled.Errors)),
	)

	set, err := buildStages(cfg, run, opts.Executor, logger)
	if err != nil {
		return result, err
	}
	publisher := staging.NewPublisher(cfg, runner.Options{Workers: run.Workers, Sequential: run.Debug}, logger,
		staging.WithExecutor(opts.Executor))
	managerOpts := []workflow.ManagerOption{workflow.WithScratchCleanup(cfg.Workflow.CleanupScratch)}
	if ledger != nil {
		managerOpts = append(managerOpts, workflow.WithLedger(ledger))
	}
	mgr := workflow.NewManager(run, manifests, status, publisher, logger, managerOpts...)
	mgr.ConfigureStages(set)
	for _, health := range mgr.StageHealth(ctx) {
		if !health.Ready() {
			logging.WarnWithContext(logger, "stage not ready", "stage_unhealthy",
				logging.String("stage", health.Stage),
				logging.String("detail", health.Detail()),
				logging.String(logging.FieldImpact, "sessions fail when they reach this stage"),
			)
		}
	}

	summary, processErr := mgr.Process(ctx, reconciled.Pending)
	mgr.WaitForCleanup()
	result.Summary = summary
	result.Elapsed = time.Since(started)

	if ledger != nil {
		if err := ledger.FinishRun(context.WithoutCancel(ctx), run.ID, reconciled.Outstanding(),
			len(summary.Completed()), len(summary.Failures()), time.Now()); err != nil {
			logger.Warn("failed to record run completion", logging.Error(err))
		}
	}
	reportSummary(logger, summary, result.Elapsed)
	if processErr != nil {
		return result, processErr
	}
	return result, nil
}

func requireInputRoot(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", "check input root", path, err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "", "check input root", path+" is not a directory", nil)
	}
	return nil
}

func housekeeping(ctx context.Context, cfg *config.Config, run config.Run, logPath string, logger *slog.Logger) {
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath)
	if days := cfg.Workflow.ScratchRetentionDays; days > 0 {
		layout := staging.Layout{ScratchRoot: run.Locations.ScratchRoot}
		cleaned := staging.CleanStale(ctx, layout, time.Duration(days)*24*time.Hour, logger)
		if len(cleaned.Removed) > 0 || len(cleaned.Errors) > 0 {
			logger.Info("stale scratch directories pruned",
				logging.Int("removed", len(cleaned.Removed)),
				logging.Int("errors", len(cleaned.Errors)),
				logging.String(logging.FieldEventType, "scratch_pruned"),
			)
		}
	}
}

func logPreflight(cfg *config.Config, run config.Run, logger *slog.Logger) {
	for _, r := range preflight.Failed(preflight.RunAll(cfg, run.Locations)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "sessions that need this fail at the affected stage"),
		)
	}
}

// openLedger opens the history database and records the run start. Ledger
// problems are logged and the run continues without history.
func openLedger(ctx context.Context, cfg *config.Config, run config.Run, logger *slog.Logger) *history.Store {
	store, err := history.Open(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "history ledger unavailable", "history_open_failed",
			logging.String("path", history.Path(cfg)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the history database if its schema is outdated"),
			logging.String(logging.FieldImpact, "this run is not recorded in history"),
		)
		return nil
	}
	err = store.StartRun(ctx, history.Run{
		ID:          run.ID,
		StartedAt:   time.Now(),
		Task:        run.Task,
		Host:        run.SourceHost,
		User:        run.User,
		ComputeHost: run.ComputeHost,
	})
	if err != nil {
		logging.WarnWithContext(logger, "failed to record run start", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run is not recorded in history"),
		)
		_ = store.Close()
		return nil
	}
	return store
}
