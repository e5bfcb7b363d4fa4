package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/services"
)

// LeftVideoName names the masked left view derived from a trial video.
func LeftVideoName(trial string) string { return "Mask" + trial + "L.avi" }

// RightVideoName names the mirrored right view derived from a trial video.
func RightVideoName(trial string) string { return "Mirror" + trial + "R.avi" }

// FrameDataName names the per-trial spreadsheet.
func FrameDataName(trial string) string { return trial + "FrameData.xlsx" }

// Splitter defines the behaviour required by the view-split handler.
type Splitter interface {
	Split(ctx context.Context, video, coordinates string) (left, right string, err error)
}

// FrameDataWriter defines the behaviour required by the frame-data handler.
type FrameDataWriter interface {
	WriteFrameData(ctx context.Context, trial, coordinates, outputDir string) (string, error)
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

// Client wraps both transform command lines.
type Client struct {
	splitBinary string
	splitArgs   []string
	dataBinary  string
	dataArgs    []string
	contrast    float64
	exec        services.Executor
}

// New constructs a transform client from configuration.
func New(cfg config.Transform, opts ...Option) (*Client, error) {
	splitBinary, splitArgs := services.SplitCommand(cfg.Command)
	if splitBinary == "" {
		return nil, errors.New("transform command required")
	}
	dataBinary, dataArgs := services.SplitCommand(cfg.FrameDataCommand)
	if dataBinary == "" {
		return nil, errors.New("frame data command required")
	}
	if cfg.ContrastFactor <= 0 {
		return nil, fmt.Errorf("invalid contrast factor %v", cfg.ContrastFactor)
	}
	client := &Client{
		splitBinary: splitBinary,
		splitArgs:   splitArgs,
		dataBinary:  dataBinary,
		dataArgs:    dataArgs,
		contrast:    cfg.ContrastFactor,
		exec:        services.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Binaries returns the executables this client invokes.
func (c *Client) Binaries() []string {
	return []string{c.splitBinary, c.dataBinary}
}

// Split renders the left and right views of video next to it.
func (c *Client) Split(ctx context.Context, video, coordinates string) (string, string, error) {
	dir := filepath.Dir(video)
	trial := trialName(video)
	left := filepath.Join(dir, LeftVideoName(trial))
	right := filepath.Join(dir, RightVideoName(trial))

	args := append([]string{}, c.splitArgs...)
	args = append(args,
		"--video", video,
		"--coords", coordinates,
		"--left", left,
		"--right", right,
		"--contrast", strconv.FormatFloat(c.contrast, 'f', -1, 64),
	)
	if err := c.exec.Run(ctx, c.splitBinary, args, nil); err != nil {
		return "", "", fmt.Errorf("split %s: %w", filepath.Base(video), err)
	}
	if err := requireOutputs(left, right); err != nil {
		return "", "", err
	}
	return left, right, nil
}

// WriteFrameData exports the frame table for trial into outputDir.
func (c *Client) WriteFrameData(ctx context.Context, trial, coordinates, outputDir string) (string, error) {
	target := filepath.Join(outputDir, FrameDataName(trial))
	args := append([]string{}, c.dataArgs...)
	args = append(args, "--coords", coordinates, "--output", target)
	if err := c.exec.Run(ctx, c.dataBinary, args, nil); err != nil {
		return "", fmt.Errorf("write frame data for trial %s: %w", trial, err)
	}
	if err := requireOutputs(target); err != nil {
		return "", err
	}
	return target, nil
}

func requireOutputs(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("expected output %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func trialName(video string) string {
	base := filepath.Base(video)
	return base[:len(base)-len(filepath.Ext(base))]
}
