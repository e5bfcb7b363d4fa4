package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"behaviorpipe/internal/fileutil"
	"behaviorpipe/internal/runner"
)

// Restage copies per-trial videos that were already published to outputDir
// back into scratchDir, skipping any already present. It returns how many
// files were copied.
func Restage(ctx context.Context, outputDir, scratchDir string, opts runner.Options) (int, error) {
	names, err := ListTrialMedia(outputDir)
	if err != nil {
		return 0, fmt.Errorf("list published media in %s: %w", outputDir, err)
	}
	return restageNames(ctx, outputDir, scratchDir, names, opts)
}

// RestageClasses copies every published file of the given classes that is
// missing from scratchDir back from outputDir.
func RestageClasses(ctx context.Context, outputDir, scratchDir string, classes []Class, opts runner.Options) (int, error) {
	var names []string
	for _, class := range SortClasses(classes) {
		paths, err := Match(outputDir, class)
		if err != nil {
			return 0, fmt.Errorf("list published %s in %s: %w", class, outputDir, err)
		}
		for _, path := range paths {
			names = append(names, filepath.Base(path))
		}
	}
	return restageNames(ctx, outputDir, scratchDir, names, opts)
}

func restageNames(ctx context.Context, outputDir, scratchDir string, names []string, opts runner.Options) (int, error) {
	var missing []string
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(scratchDir, name)); os.IsNotExist(err) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return 0, fmt.Errorf("create scratch dir %s: %w", scratchDir, err)
	}
	report := runner.Run(ctx, missing, opts, func(_ context.Context, name string) error {
		return fileutil.CopyFileVerified(filepath.Join(outputDir, name), filepath.Join(scratchDir, name))
	})
	return len(report.Succeeded()), report.Err()
}
