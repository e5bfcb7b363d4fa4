package ffmpeg

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

// ErrNoFrames reports a trial directory without any usable images.
var ErrNoFrames = errors.New("no frames found")

// Encoder defines the behaviour required by the movie-building handler.
type Encoder interface {
	Encode(ctx context.Context, frameDir, aviPath, mp4Path string) error
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

// Client wraps ffmpeg invocations.
type Client struct {
	binary     string
	frameRate  int
	extensions []string
	exec       services.Executor
}

// New constructs an ffmpeg client from encoder settings.
func New(cfg config.Encoder, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d", cfg.FrameRate)
	}
	client := &Client{
		binary:     binary,
		frameRate:  cfg.FrameRate,
		extensions: cfg.ImageExtensions,
		exec:       services.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Frames lists the images in frameDir in natural order.
func (c *Client) Frames(frameDir string) ([]string, error) {
	entries, err := os.ReadDir(frameDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if c.isImage(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	textutil.SortNatural(names)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(frameDir, name)
	}
	return paths, nil
}

func (c *Client) isImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range c.extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Encode writes aviPath and mp4Path from the frames in frameDir. Each output
// is rendered under a partial name and renamed into place, so an existing
// output is always complete and is not rendered again.
func (c *Client) Encode(ctx context.Context, frameDir, aviPath, mp4Path string) error {
	renderAVI, renderMP4 := missing(aviPath), missing(mp4Path)
	if !renderAVI && !renderMP4 {
		return nil
	}
	frames, err := c.Frames(frameDir)
	if err != nil {
		return fmt.Errorf("list frames: %w", err)
	}
	if len(frames) == 0 {
		return fmt.Errorf("%w in %s", ErrNoFrames, frameDir)
	}

	listPath, err := c.writeConcatList(aviPath, frames)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	if renderAVI {
		if err := c.render(ctx, listPath, aviPath, []string{"-c:v", "rawvideo", "-pix_fmt", "bgr24"}); err != nil {
			return err
		}
	}
	if renderMP4 {
		return c.render(ctx, listPath, mp4Path, []string{"-c:v", "libx264", "-pix_fmt", "yuv420p"})
	}
	return nil
}

func missing(path string) bool {
	_, err := os.Stat(path)
	return err != nil
}

func (c *Client) render(ctx context.Context, listPath, target string, codec []string) error {
	partial := partialName(target)
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-r", strconv.Itoa(c.frameRate),
	}
	args = append(args, codec...)
	args = append(args, partial)

	if err := c.exec.Run(ctx, c.binary, args, nil); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("ffmpeg %s: %w", filepath.Base(target), err)
	}
	if _, err := os.Stat(partial); err != nil {
		return fmt.Errorf("ffmpeg produced no output for %s: %w", filepath.Base(target), err)
	}
	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("finalize %s: %w", target, err)
	}
	return nil
}

// writeConcatList writes an ffmpeg concat demuxer script that shows every
// frame for one frame interval.
func (c *Client) writeConcatList(aviPath string, frames []string) (string, error) {
	duration := strconv.FormatFloat(1/float64(c.frameRate), 'f', 6, 64)
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, frame := range frames {
		fmt.Fprintf(&b, "file '%s'\nduration %s\n", escapeConcatPath(frame), duration)
	}
	// The demuxer ignores the last duration unless the final frame repeats.
	fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(frames[len(frames)-1]))

	listPath := strings.TrimSuffix(aviPath, filepath.Ext(aviPath)) + ".frames.txt"
	if err := os.MkdirAll(filepath.Dir(listPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write frame list: %w", err)
	}
	return listPath, nil
}

func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// partialName keeps the container extension so ffmpeg can infer the muxer.
func partialName(target string) string {
	ext := filepath.Ext(target)
	return strings.TrimSuffix(target, ext) + ".partial" + ext
}
