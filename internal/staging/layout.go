package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"behaviorpipe/internal/session"
)

const (
	// scratchNamespace separates pipeline scratch space from anything else on
	// the scratch volume.
	scratchNamespace = "pipeline"
	// contentImgRecordings holds everything derived from trial image captures.
	contentImgRecordings = "img_recordings"
)

// Layout assigns scratch directories to work-units:
// <scratch>/pipeline/<group>/<unit>/img_recordings.
type Layout struct {
	ScratchRoot string
}

// Root returns the pipeline namespace under the scratch root.
func (l Layout) Root() string {
	return filepath.Join(l.ScratchRoot, scratchNamespace)
}

// UnitDir returns the scratch directory owned by one work-unit.
func (l Layout) UnitDir(group, unit string) string {
	return filepath.Join(l.Root(), group, unit)
}

// WorkDir returns the img_recordings directory for a work-unit.
func (l Layout) WorkDir(group, unit string) string {
	return filepath.Join(l.UnitDir(group, unit), contentImgRecordings)
}

// Prepare creates the work-unit's scratch directory and records it on s.
func (l Layout) Prepare(s *session.Session) error {
	dir := l.WorkDir(s.Group, s.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir %s: %w", dir, err)
	}
	s.ScratchDir = dir
	return nil
}
