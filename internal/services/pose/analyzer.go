package pose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/textutil"
)

// modelMarker separates the video stem from the model name in analyzer output.
const modelMarker = "DLC"

// ErrNoCoordinates reports a video without exactly one filtered coordinate file.
var ErrNoCoordinates = errors.New("filtered coordinates not found")

// Analyzer defines the behaviour required by the posture handlers.
type Analyzer interface {
	Analyze(ctx context.Context, video, modelConfig string, shuffle int) (string, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps the analyzer command line.
type Client struct {
	binary string
	args   []string
	exec   services.Executor
}

// New constructs an analyzer client from the configured command.
func New(cfg config.Pose, opts ...Option) (*Client, error) {
	binary, args := services.SplitCommand(cfg.Command)
	if binary == "" {
		return nil, errors.New("pose analyzer command required")
	}
	client := &Client{binary: binary, args: args, exec: services.CommandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Binary returns the analyzer executable name.
func (c *Client) Binary() string { return c.binary }

// Analyze runs the analyzer with filtering enabled and returns the path of
// the filtered coordinate CSV it produced.
func (c *Client) Analyze(ctx context.Context, video, modelConfig string, shuffle int) (string, error) {
	if _, err := os.Stat(video); err != nil {
		return "", fmt.Errorf("video %s: %w", video, err)
	}
	args := append([]string{}, c.args...)
	args = append(args,
		"--config", modelConfig,
		"--shuffle", strconv.Itoa(shuffle),
		"--save-as-csv",
		"--filter",
		video,
	)
	if err := c.exec.Run(ctx, c.binary, args, nil); err != nil {
		return "", fmt.Errorf("analyze %s: %w", filepath.Base(video), err)
	}
	return FilteredCoordinates(filepath.Dir(video), Stem(video))
}

// ModelPath resolves a model config relative to the configured model dir.
func ModelPath(cfg config.Pose, modelConfig string) string {
	if filepath.IsAbs(modelConfig) || cfg.ModelDir == "" {
		return modelConfig
	}
	return filepath.Join(cfg.ModelDir, modelConfig)
}

// Stem returns a video's file name without its extension.
func Stem(video string) string {
	base := filepath.Base(video)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Coordinates lists every coordinate CSV the analyzer wrote for stem in dir.
func Coordinates(dir, stem string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	prefix := stem + modelMarker
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}
		names = append(names, name)
	}
	textutil.SortNatural(names)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// FilteredCoordinates returns the single filtered CSV for stem in dir.
func FilteredCoordinates(dir, stem string) (string, error) {
	all, err := Coordinates(dir, stem)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, path := range all {
		if strings.HasSuffix(strings.ToLower(filepath.Base(path)), "filtered.csv") {
			matches = append(matches, path)
		}
	}
	if len(matches) != 1 {
		return "", fmt.Errorf("%w for %s in %s (found %d)", ErrNoCoordinates, stem, dir, len(matches))
	}
	return matches[0], nil
}
