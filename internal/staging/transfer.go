package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"time"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/runner"
	"behaviorpipe/internal/services"
)

// ErrToolUnavailable marks a publication skipped because the transfer tool
// is not installed.
var ErrToolUnavailable = errors.New("transfer tool unavailable")

// TransferResult describes the publication of one artifact class.
type TransferResult struct {
	Class       Class
	Transferred []string
	Failed      []runner.Result
	// Skipped is set when the transfer tool is missing; nothing was moved.
	Skipped bool
}

// Publisher moves or copies artifacts from scratch to final storage with an
// external bulk-transfer tool. The mode is fixed for the run.
type Publisher struct {
	binary   string
	mode     string
	exec     services.Executor
	lookPath func(string) (string, error)
	opts     runner.Options
	logger   *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) PublisherOption {
	return func(p *Publisher) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// WithLookPath replaces the binary lookup (primarily for tests).
func WithLookPath(fn func(string) (string, error)) PublisherOption {
	return func(p *Publisher) {
		if fn != nil {
			p.lookPath = fn
		}
	}
}

// NewPublisher builds a publisher from the transfer configuration.
func NewPublisher(cfg *config.Config, opts runner.Options, logger *slog.Logger, options ...PublisherOption) *Publisher {
	p := &Publisher{
		binary:   cfg.Transfer.Binary,
		mode:     cfg.Transfer.Mode,
		exec:     services.CommandExecutor{},
		lookPath: exec.LookPath,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "transfer"),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Mode returns the configured transfer mode.
func (p *Publisher) Mode() string { return p.mode }

// Publish transfers every file of one class from srcDir into destDir, one
// tool invocation per file. Individual file failures are reported in the
// result and the returned error; other files still transfer.
func (p *Publisher) Publish(ctx context.Context, srcDir, destDir string, class Class) (TransferResult, error) {
	return p.publish(ctx, srcDir, destDir, class, p.mode)
}

func (p *Publisher) publish(ctx context.Context, srcDir, destDir string, class Class, mode string) (TransferResult, error) {
	result := TransferResult{Class: class}
	logger := logging.WithContext(ctx, p.logger)

	files, err := Match(srcDir, class)
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "", "publish", fmt.Sprintf("list %s in %s", class, srcDir), err)
	}
	if len(files) == 0 {
		logger.Debug("no artifacts to publish",
			logging.String("class", string(class)),
			logging.String("source", srcDir),
		)
		return result, nil
	}

	if _, err := p.lookPath(p.binary); err != nil {
		result.Skipped = true
		logging.WarnWithContext(logger, "transfer tool unavailable; publication skipped", "transfer_skipped",
			logging.String("binary", p.binary),
			logging.String("class", string(class)),
			logging.Int("files", len(files)),
			logging.String(logging.FieldErrorHint, "install "+p.binary+" or set transfer.binary"),
			logging.String(logging.FieldImpact, "artifacts remain in scratch and are not in final storage"),
		)
		return result, nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrTransient, "", "publish", "create destination "+destDir, err)
	}

	start := time.Now()
	report := runner.Run(ctx, files, p.opts, func(ctx context.Context, file string) error {
		if _, err := os.Stat(file); err != nil {
			return err
		}
		return p.exec.Run(ctx, p.binary, []string{mode, file, destDir}, nil)
	})
	for _, name := range report.Succeeded() {
		result.Transferred = append(result.Transferred, filepath.Base(name))
	}
	result.Failed = report.Failed()

	logger.Info("artifacts published",
		logging.String("class", string(class)),
		logging.String("mode", mode),
		logging.String("destination", destDir),
		logging.Int("transferred", len(result.Transferred)),
		logging.Int("failed", len(result.Failed)),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "artifacts_published"),
	)
	if err := report.Err(); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "", "publish", string(class), err)
	}
	return result, nil
}

// PublishClasses publishes several classes as independent operations that
// may finish in any order. Results are returned in the order of classes.
func (p *Publisher) PublishClasses(ctx context.Context, srcDir, destDir string, classes []Class) ([]TransferResult, error) {
	return p.publishClasses(ctx, srcDir, destDir, classes, p.mode)
}

// CopyClasses is PublishClasses in copy mode whatever the configured mode,
// for artifacts a later stage still reads from scratch.
func (p *Publisher) CopyClasses(ctx context.Context, srcDir, destDir string, classes []Class) ([]TransferResult, error) {
	return p.publishClasses(ctx, srcDir, destDir, classes, config.TransferCopy)
}

func (p *Publisher) publishClasses(ctx context.Context, srcDir, destDir string, classes []Class, mode string) ([]TransferResult, error) {
	keys := make([]string, 0, len(classes))
	for _, c := range classes {
		keys = append(keys, string(c))
	}
	results := make(map[Class]TransferResult, len(classes))
	resultsCh := make(chan TransferResult, len(classes))

	report := runner.Run(ctx, keys, runner.Options{Workers: len(keys)}, func(ctx context.Context, key string) error {
		res, err := p.publish(ctx, srcDir, destDir, Class(key), mode)
		resultsCh <- res
		return err
	})
	close(resultsCh)
	for res := range resultsCh {
		results[res.Class] = res
	}

	ordered := make([]TransferResult, 0, len(classes))
	seen := make(map[Class]bool, len(classes))
	for _, c := range classes {
		if seen[c] {
			continue
		}
		seen[c] = true
		res := results[c]
		res.Class = c
		ordered = append(ordered, res)
	}
	return ordered, report.Err()
}

// SortClasses orders classes by their position in AllClasses.
func SortClasses(classes []Class) []Class {
	order := AllClasses()
	out := slices.Clone(classes)
	slices.SortFunc(out, func(a, b Class) int {
		return slices.Index(order, a) - slices.Index(order, b)
	})
	return slices.Compact(out)
}
