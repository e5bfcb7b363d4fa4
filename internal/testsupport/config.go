package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"behaviorpipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Locations are absolute so the default user/host resolution lands under
// the temp tree.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InputBase = filepath.Join(base, "input")
	cfgVal.Paths.OutputBase = filepath.Join(base, "output")
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.UseAbsoluteLocations = true

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTransferMode sets the publication mode.
func WithTransferMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transfer.Mode = mode
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"rclone", "ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// WithEmptyPath hides every binary so availability checks fail.
func WithEmptyPath() ConfigOption {
	return func(b *configBuilder) {
		b.t.Setenv("PATH", filepath.Join(b.baseDir, "no-bin"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ScratchDir)
}

// Run builds the per-invocation configuration for cfg with the given task.
func Run(cfg *config.Config, task string) config.Run {
	return config.Run{
		ID:          "test-run",
		User:        "tester",
		SourceHost:  "lil-whisker",
		ComputeHost: "localhost",
		Task:        task,
		Workers:     2,
		Locations: config.Locations{
			InputRoot:   cfg.Paths.InputBase,
			OutputRoot:  cfg.Paths.OutputBase,
			ScratchRoot: cfg.Paths.ScratchDir,
			Perspective: config.PerspectiveTop,
			KnownHost:   true,
		},
	}
}
