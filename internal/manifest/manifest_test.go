package manifest_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/manifest"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/session"
)

func newStore() *manifest.Store {
	return manifest.NewStore(logging.NewNop())
}

func readRaw(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	return out
}

func TestCreateSortsFoldersNaturally(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	store := newStore()

	stage, err := store.Create(path, []string{"10", "2", "1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if stage != session.InitialStage {
		t.Fatalf("unexpected initial stage %s", stage)
	}
	m, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(m.Folders, []string{"1", "2", "10"}) {
		t.Fatalf("unexpected folder order %v", m.Folders)
	}
}

func TestReadMissingManifestIsNotFound(t *testing.T) {
	_, err := newStore().Read(filepath.Join(t.TempDir(), manifest.FileName))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReadHealsMissingStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	if err := os.WriteFile(path, []byte(`{"folders":["1","2"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	stage, err := newStore().Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if stage != session.InitialStage {
		t.Fatalf("expected initial stage, got %s", stage)
	}
	if got := readRaw(t, path)["stage"]; got != string(session.InitialStage) {
		t.Fatalf("expected healed stage persisted, got %v", got)
	}
}

func TestReadMapsLegacyLastTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	if err := os.WriteFile(path, []byte(`{"folders":["0"],"last_task":"movie_creation"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	stage, err := newStore().Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if stage != session.StageMoviesBuilt {
		t.Fatalf("expected movies_built from legacy task, got %s", stage)
	}
	raw := readRaw(t, path)
	if raw["stage"] != "movies_built" || raw["last_task"] != "movie_creation" {
		t.Fatalf("unexpected healed document %v", raw)
	}
}

func TestReadRejectsUnknownStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	if err := os.WriteFile(path, []byte(`{"folders":[],"stage":"encoded"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := newStore().Read(path); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAdvanceOverwritesOnlyStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	if err := os.WriteFile(path, []byte(`{"folders":["1"],"stage":"discovered","operator":"kim"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := newStore()
	if err := store.Advance(path, session.StageMoviesBuilt); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	raw := readRaw(t, path)
	if raw["stage"] != "movies_built" {
		t.Fatalf("stage not advanced: %v", raw)
	}
	if raw["operator"] != "kim" {
		t.Fatalf("unrelated field lost: %v", raw)
	}
	folders, _ := raw["folders"].([]any)
	if len(folders) != 1 || folders[0] != "1" {
		t.Fatalf("folders changed: %v", raw["folders"])
	}
}

func TestAdvanceSameStageSkipsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	store := newStore()
	if _, err := store.Create(path, []string{"1"}); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Advance(path, session.InitialStage); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(before, after) {
		t.Fatal("expected manifest left untouched when stage is unchanged")
	}
}

func TestAdvanceCorruptManifestReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	if err := os.WriteFile(path, []byte(`{"folders": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	err := newStore().Advance(path, session.StageMoviesBuilt)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != `{"folders": [` {
		t.Fatalf("corrupt manifest should be left as found, got %q", data)
	}
}

func TestAdvanceRejectsUnknownStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	if err := newStore().Advance(path, session.Stage("bogus")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReadOrCreate(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2", "0", "1", ".hidden"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	trials, err := manifest.ListTrialFolders(dir)
	if err != nil {
		t.Fatalf("ListTrialFolders: %v", err)
	}
	if !slices.Equal(trials, []string{"0", "1", "2"}) {
		t.Fatalf("unexpected trials %v", trials)
	}
	path := manifest.Path(dir)
	store := newStore()
	stage, err := store.ReadOrCreate(path, trials)
	if err != nil || stage != session.InitialStage {
		t.Fatalf("ReadOrCreate: %s %v", stage, err)
	}
	if err := store.Advance(path, session.StageMoviesBuilt); err != nil {
		t.Fatal(err)
	}
	stage, err = store.ReadOrCreate(path, trials)
	if err != nil || stage != session.StageMoviesBuilt {
		t.Fatalf("ReadOrCreate existing: %s %v", stage, err)
	}
}
