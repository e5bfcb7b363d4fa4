package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"behaviorpipe/internal/logging"
)

// retiredMarker separates a retired scratch directory from its retirement date.
const retiredMarker = ".old_"

// CleanStaleResult contains the outcome of a stale directory cleanup operation.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// RetireDir renames dir to <dir>.old_<YYYY-MM-DD> and deletes the renamed
// tree in the background. The returned channel yields the deletion result.
// A directory already retired today is replaced.
func RetireDir(dir string, now time.Time) (string, <-chan error, error) {
	retired := fmt.Sprintf("%s%s%s", filepath.Clean(dir), retiredMarker, now.Format(time.DateOnly))
	if _, err := os.Stat(retired); err == nil {
		if err := os.RemoveAll(retired); err != nil {
			return "", nil, fmt.Errorf("remove previous %s: %w", retired, err)
		}
	}
	if err := os.Rename(dir, retired); err != nil {
		return "", nil, fmt.Errorf("retire %s: %w", dir, err)
	}
	done := make(chan error, 1)
	go func() {
		done <- os.RemoveAll(retired)
		close(done)
	}()
	return retired, done, nil
}

// IsRetired reports whether name carries the retirement marker.
func IsRetired(name string) bool {
	return strings.Contains(name, retiredMarker)
}

// CleanStale removes retired scratch directories older than maxAge anywhere
// under the layout's group directories. Deletions interrupted by a crash are
// finished here.
func CleanStale(ctx context.Context, layout Layout, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	if strings.TrimSpace(layout.ScratchRoot) == "" {
		return result
	}

	groups, err := os.ReadDir(layout.Root())
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: layout.Root(), Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, group := range groups {
		if ctx.Err() != nil {
			return result
		}
		if !group.IsDir() {
			continue
		}
		groupDir := filepath.Join(layout.Root(), group.Name())
		entries, err := os.ReadDir(groupDir)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: groupDir, Error: err})
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || !IsRetired(entry.Name()) {
				continue
			}
			dirPath := filepath.Join(groupDir, entry.Name())
			info, err := entry.Info()
			if err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.RemoveAll(dirPath); err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
				logging.WarnWithContext(logger, "failed to remove retired scratch directory", "scratch_cleanup_failed",
					logging.String("path", dirPath),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
				continue
			}
			result.Removed = append(result.Removed, dirPath)
			if logger != nil {
				logger.Info("removed retired scratch directory",
					logging.String("path", dirPath),
					logging.Duration("age", time.Since(info.ModTime())),
					logging.String(logging.FieldEventType, "scratch_cleanup"),
				)
			}
		}
	}
	return result
}
