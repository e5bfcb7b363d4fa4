package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// MakeSession creates <root>/<group>/<unit>/<0..trials-1>/ with frames JPEG
// stand-ins in each trial and returns the work-unit directory.
func MakeSession(t testing.TB, root, group, unit string, trials, frames int) string {
	t.Helper()
	dir := filepath.Join(root, group, unit)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for i := 0; i < trials; i++ {
		trialDir := filepath.Join(dir, strconv.Itoa(i))
		if err := os.MkdirAll(trialDir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", trialDir, err)
		}
		for f := 0; f < frames; f++ {
			WriteFrame(t, filepath.Join(trialDir, fmt.Sprintf("frame%d.jpg", f)))
		}
	}
	return dir
}

// WriteManifest writes a manifest with the given stage into a work-unit dir.
func WriteManifest(t testing.TB, unitDir string, folders []string, stage string) {
	t.Helper()
	doc := map[string]any{"folders": folders}
	if stage != "" {
		doc["stage"] = stage
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("encode manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(unitDir, "meta-data.json"), data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

// ReadJSON decodes a JSON file into a generic map.
func ReadJSON(t testing.TB, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return out
}

// TouchFiles creates one small file per name inside dir.
func TouchFiles(t testing.TB, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		WriteBytes(t, filepath.Join(dir, name), []byte(name))
	}
}
