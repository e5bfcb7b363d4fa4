package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"behaviorpipe/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	writer, err := openWriters(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	handler, err := newHandler(writer, opts.Format, opts.Level, opts.Development)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// RunOptions describes the sinks for one pipeline run.
type RunOptions struct {
	// LogPath is the durable per-run log file. It is always written.
	LogPath string
	// Console mirrors log output to stderr as console lines.
	Console bool
}

// NewForRun builds the run logger: every record lands in the durable log file
// using the configured format, and console output is added only when the
// operator asked for it. The returned func closes the log file.
func NewForRun(cfg *config.Config, opts RunOptions) (*slog.Logger, func() error, error) {
	level, format := defaultLogLevel, "console"
	if cfg != nil {
		level, format = cfg.Logging.Level, cfg.Logging.Format
	}
	path := strings.TrimSpace(opts.LogPath)
	if path == "" {
		return nil, nil, errors.New("run log path is required")
	}
	file, err := openLogFile(path)
	if err != nil {
		return nil, nil, err
	}
	fileHandler, err := newHandler(file, format, level, false)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	handlers := []slog.Handler{fileHandler}
	if opts.Console {
		handlers = append(handlers, newConsoleHandler(os.Stderr, levelVar(level), false))
	}
	return slog.New(newFanoutHandler(handlers...)), file.Close, nil
}

// RunLogPath returns the per-run log file name inside dir.
func RunLogPath(dir, runID string) string {
	return filepath.Join(dir, RunLogPrefix+runID+".log")
}

// RunLogPrefix prefixes every per-run log file name.
const RunLogPrefix = "behaviorpipe-"

const defaultLogLevel = "info"

func newHandler(w io.Writer, format, level string, development bool) (slog.Handler, error) {
	lvl := levelVar(level)
	addSource := development || lvl.Level() <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return newJSONHandler(w, lvl, addSource), nil
	case "console", "":
		return newConsoleHandler(w, lvl, addSource), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

func levelVar(level string) *slog.LevelVar {
	lvl := new(slog.LevelVar)
	lvl.Set(parseLevel(level))
	return lvl
}

// parseLevel accepts slog's level names in any case; anything else is info.
func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// openWriters resolves each distinct output path to a sink. stdout and
// stderr are recognised by name; anything else is appended to as a file.
func openWriters(outputPaths []string) (io.Writer, error) {
	seen := map[string]bool{}
	var writers []io.Writer
	for _, path := range outputPaths {
		path = strings.TrimSpace(path)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		w, err := openSink(path)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openSink(path string) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	return openLogFile(path)
}

func openLogFile(path string) (*os.File, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	opts := slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Key = "level"
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "msg"
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	}

	return slog.NewJSONHandler(w, &opts)
}
