package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// jpegFrame is a start-of-image marker, a JFIF APP0 tag and an end-of-image
// marker: enough for anything that sniffs the header of a camera frame.
var jpegFrame = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0xFF, 0xD9}

// WriteBytes writes data to path, creating parent directories.
func WriteBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteFrame writes a stand-in camera frame at path.
func WriteFrame(t testing.TB, path string) {
	t.Helper()
	WriteBytes(t, path, jpegFrame)
}
