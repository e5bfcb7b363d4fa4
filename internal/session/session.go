package session

import "path/filepath"

// Session is one recording session's directory, the unit of progress
// tracking. Trials are its numbered sub-recordings.
type Session struct {
	Group      string
	Name       string
	InputDir   string
	OutputDir  string
	ScratchDir string
	TrialCount int
	Stage      Stage
}

// New builds a Session rooted under the given input and output roots.
// ScratchDir is left for the staging layout to assign.
func New(inputRoot, outputRoot, group, name string) *Session {
	return &Session{
		Group:     group,
		Name:      name,
		InputDir:  filepath.Join(inputRoot, group, name),
		OutputDir: filepath.Join(outputRoot, group, name),
		Stage:     InitialStage,
	}
}

// Key identifies the session across groups.
func (s *Session) Key() string {
	return s.Group + "/" + s.Name
}
