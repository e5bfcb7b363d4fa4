package stage

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Readiness is a stage's answer to "could I run right now?". A stage is
// ready when no problems were recorded.
type Readiness struct {
	Stage    string
	Problems []string
}

// Ready reports whether no problems were recorded.
func (r Readiness) Ready() bool { return len(r.Problems) == 0 }

// Detail joins the recorded problems for display.
func (r Readiness) Detail() string { return strings.Join(r.Problems, "; ") }

// ToolsReady checks that every external binary a stage shells out to
// resolves on PATH.
func ToolsReady(stageName string, binaries ...string) Readiness {
	r := Readiness{Stage: stageName}
	for _, binary := range binaries {
		if binary == "" {
			r.Problems = append(r.Problems, "command not configured")
			continue
		}
		if _, err := exec.LookPath(binary); err != nil {
			r.Problems = append(r.Problems, fmt.Sprintf("%s not found on PATH", binary))
		}
	}
	return r
}

// RequireFile records a problem when path is not a readable regular file.
func (r Readiness) RequireFile(what, path string) Readiness {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		r.Problems = append(append([]string(nil), r.Problems...), fmt.Sprintf("%s %s unavailable", what, path))
	}
	return r
}
