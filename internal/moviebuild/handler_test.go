package moviebuild

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/runner"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/services/ffmpeg"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/testsupport"
)

type stubEncoder struct {
	mu     sync.Mutex
	frames []string
	fail   map[string]error
}

func (s *stubEncoder) Encode(_ context.Context, frameDir, aviPath, mp4Path string) error {
	s.mu.Lock()
	s.frames = append(s.frames, filepath.Base(frameDir))
	s.mu.Unlock()
	if err, ok := s.fail[filepath.Base(frameDir)]; ok {
		return err
	}
	for _, path := range []string{aviPath, mp4Path} {
		if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func setup(t *testing.T, trials int) (*session.Session, *stubEncoder, *Handler) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	testsupport.MakeSession(t, cfg.Paths.InputBase, "mouse1", "s1", trials, 2)
	s := session.New(cfg.Paths.InputBase, cfg.Paths.OutputBase, "mouse1", "s1")
	s.ScratchDir = filepath.Join(cfg.Paths.ScratchDir, "s1")
	if err := os.MkdirAll(s.ScratchDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	enc := &stubEncoder{}
	return s, enc, NewHandler(cfg, enc, runner.Options{Workers: 2}, logging.NewNop())
}

func TestPrepareRequiresTrialFolders(t *testing.T) {
	s, _, h := setup(t, 0)
	if err := h.Prepare(context.Background(), s); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	s.InputDir = filepath.Join(t.TempDir(), "missing")
	if err := h.Prepare(context.Background(), s); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestExecuteEncodesEveryTrial(t *testing.T) {
	s, enc, h := setup(t, 3)
	if err := h.Prepare(context.Background(), s); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := h.Execute(context.Background(), s); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	slices.Sort(enc.frames)
	if !slices.Equal(enc.frames, []string{"0", "1", "2"}) {
		t.Fatalf("encoded = %v", enc.frames)
	}
	for _, name := range []string{"0.avi", "0.mp4", "2.avi"} {
		if _, err := os.Stat(filepath.Join(s.ScratchDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

func TestExecuteSkipsExistingVideos(t *testing.T) {
	s, enc, h := setup(t, 2)
	testsupport.TouchFiles(t, s.ScratchDir, "0.avi", "0.mp4")
	if err := h.Execute(context.Background(), s); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !slices.Equal(enc.frames, []string{"1"}) {
		t.Fatalf("encoded = %v, want only trial 1", enc.frames)
	}
}

func TestExecuteRebuildsTrialMissingOneContainer(t *testing.T) {
	s, enc, h := setup(t, 2)
	testsupport.TouchFiles(t, s.ScratchDir, "0.avi")
	if err := h.Execute(context.Background(), s); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	slices.Sort(enc.frames)
	if !slices.Equal(enc.frames, []string{"0", "1"}) {
		t.Fatalf("encoded = %v, want both trials", enc.frames)
	}
	if _, err := os.Stat(filepath.Join(s.ScratchDir, "0.mp4")); err != nil {
		t.Fatalf("missing container not rebuilt: %v", err)
	}
}

func TestExecuteIsolatesTrialFailure(t *testing.T) {
	s, enc, h := setup(t, 3)
	enc.fail = map[string]error{"1": ffmpeg.ErrNoFrames}
	err := h.Execute(context.Background(), s)
	if !errors.Is(err, services.ErrExternalTool) || !errors.Is(err, ffmpeg.ErrNoFrames) {
		t.Fatalf("expected wrapped batch failure, got %v", err)
	}
	for _, name := range []string{"0.avi", "2.avi"} {
		if _, err := os.Stat(filepath.Join(s.ScratchDir, name)); err != nil {
			t.Fatalf("sibling trial %s should still be built: %v", name, err)
		}
	}
}

func TestArtifacts(t *testing.T) {
	h := NewHandler(&config.Config{}, &stubEncoder{}, runner.Options{}, nil)
	if len(h.Produces()) != 2 || len(h.Consumes()) != 0 {
		t.Fatalf("unexpected artifacts: %v %v", h.Produces(), h.Consumes())
	}
}
