package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/history"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/manifest"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/stage"
	"behaviorpipe/internal/staging"
	"behaviorpipe/internal/statusindex"
	"behaviorpipe/internal/testsupport"
)

// stubHandler writes one file per trial and suffix into scratch.
type stubHandler struct {
	produces []staging.Class
	consumes []staging.Class
	// names maps a trial index to the files the stage writes for it.
	names      func(trial int) []string
	prepareErr error
	executeErr error
	// failUnits fails Execute for the named work-units only.
	failUnits map[string]bool
	// needs lists the scratch files Prepare requires for a trial.
	needs func(trial int) []string

	mu       sync.Mutex
	executed []string
}

func (h *stubHandler) Prepare(_ context.Context, s *session.Session) error {
	if h.prepareErr != nil {
		return h.prepareErr
	}
	if h.needs == nil {
		return nil
	}
	for i := 0; i < s.TrialCount; i++ {
		for _, name := range h.needs(i) {
			if _, err := os.Stat(filepath.Join(s.ScratchDir, name)); err != nil {
				return fmt.Errorf("input %s not staged: %w", name, err)
			}
		}
	}
	return nil
}

func (h *stubHandler) Execute(_ context.Context, s *session.Session) error {
	h.mu.Lock()
	h.executed = append(h.executed, s.Key())
	h.mu.Unlock()
	if h.executeErr != nil {
		return h.executeErr
	}
	if h.failUnits[s.Name] {
		return errStub
	}
	if h.names == nil {
		return nil
	}
	for i := 0; i < s.TrialCount; i++ {
		for _, name := range h.names(i) {
			if err := os.WriteFile(filepath.Join(s.ScratchDir, name), []byte("x"), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *stubHandler) HealthCheck(context.Context) stage.Readiness { return stage.Readiness{Stage: "stub"} }

func (h *stubHandler) Produces() []staging.Class { return h.produces }

func (h *stubHandler) Consumes() []staging.Class { return h.consumes }

func (h *stubHandler) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.executed...)
}

func newStubSet() (StageSet, map[string]*stubHandler) {
	trial := strconv.Itoa
	stubs := map[string]*stubHandler{
		"movies": {
			produces: []staging.Class{staging.ClassAVI, staging.ClassMP4},
			names:    func(i int) []string { return []string{trial(i) + ".avi", trial(i) + ".mp4"} },
		},
		"top": {
			produces: []staging.Class{staging.ClassCSV, staging.ClassPickle, staging.ClassH5},
			consumes: []staging.Class{staging.ClassAVI},
		},
		"split": {
			produces: []staging.Class{staging.ClassAVI},
			consumes: []staging.Class{staging.ClassAVI, staging.ClassCSV},
			names: func(i int) []string {
				return []string{"Mask" + trial(i) + "L.avi", "Mirror" + trial(i) + "R.avi"}
			},
		},
		"left": {
			produces: []staging.Class{staging.ClassCSV, staging.ClassPickle, staging.ClassH5},
			consumes: []staging.Class{staging.ClassAVI},
		},
		"right": {
			produces: []staging.Class{staging.ClassCSV, staging.ClassPickle, staging.ClassH5},
			consumes: []staging.Class{staging.ClassAVI},
		},
		"framedata": {
			produces: []staging.Class{staging.ClassXLSX},
			consumes: []staging.Class{staging.ClassCSV},
			names:    func(i int) []string { return []string{trial(i) + "FrameData.xlsx"} },
		},
	}
	set := StageSet{
		MovieBuilder:  stubs["movies"],
		TopPostures:   stubs["top"],
		ViewSplitter:  stubs["split"],
		LeftPostures:  stubs["left"],
		RightPostures: stubs["right"],
		FrameData:     stubs["framedata"],
	}
	return set, stubs
}

type recordingPublisher struct {
	mu     sync.Mutex
	calls  [][]staging.Class
	copies [][]staging.Class
	err    error
}

func (p *recordingPublisher) PublishClasses(_ context.Context, _, _ string, classes []staging.Class) ([]staging.TransferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]staging.Class(nil), classes...))
	return transferResults(classes), p.err
}

func (p *recordingPublisher) CopyClasses(_ context.Context, _, _ string, classes []staging.Class) ([]staging.TransferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.copies = append(p.copies, append([]staging.Class(nil), classes...))
	return transferResults(classes), p.err
}

func transferResults(classes []staging.Class) []staging.TransferResult {
	out := make([]staging.TransferResult, 0, len(classes))
	for _, c := range classes {
		out = append(out, staging.TransferResult{Class: c})
	}
	return out
}

func (p *recordingPublisher) published() [][]staging.Class {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]staging.Class(nil), p.calls...)
}

func (p *recordingPublisher) copied() [][]staging.Class {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]staging.Class(nil), p.copies...)
}

// filePublisher transfers files between directories the way the configured
// transfer mode would.
type filePublisher struct {
	mode string
}

func (p *filePublisher) PublishClasses(_ context.Context, src, dest string, classes []staging.Class) ([]staging.TransferResult, error) {
	return p.transfer(src, dest, classes, p.mode)
}

func (p *filePublisher) CopyClasses(_ context.Context, src, dest string, classes []staging.Class) ([]staging.TransferResult, error) {
	return p.transfer(src, dest, classes, config.TransferCopy)
}

func (p *filePublisher) transfer(src, dest string, classes []staging.Class, mode string) ([]staging.TransferResult, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, err
	}
	var out []staging.TransferResult
	for _, class := range classes {
		res := staging.TransferResult{Class: class}
		files, err := staging.Match(src, class)
		if err != nil {
			return out, err
		}
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				return out, err
			}
			if err := os.WriteFile(filepath.Join(dest, filepath.Base(file)), data, 0o644); err != nil {
				return out, err
			}
			if mode == config.TransferMove {
				if err := os.Remove(file); err != nil {
					return out, err
				}
			}
			res.Transferred = append(res.Transferred, filepath.Base(file))
		}
		out = append(out, res)
	}
	return out, nil
}

type recordingLedger struct {
	mu          sync.Mutex
	transitions []history.Transition
}

func (l *recordingLedger) RecordTransition(_ context.Context, tr history.Transition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, tr)
	return nil
}

func (l *recordingLedger) all() []history.Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]history.Transition(nil), l.transitions...)
}

type fixture struct {
	cfg       *config.Config
	run       config.Run
	manifests *manifest.Store
	status    *statusindex.Store
	publisher *recordingPublisher
	ledger    *recordingLedger
	stubs     map[string]*stubHandler
	mgr       *Manager
}

func newFixture(t *testing.T, task string, opts ...ManagerOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.InputBase, 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}
	f := &fixture{
		cfg:       cfg,
		run:       testsupport.Run(cfg, task),
		manifests: manifest.NewStore(logging.NewNop()),
		status:    statusindex.NewStore(logging.NewNop()),
		publisher: &recordingPublisher{},
		ledger:    &recordingLedger{},
	}
	opts = append([]ManagerOption{WithLedger(f.ledger)}, opts...)
	f.mgr = NewManager(f.run, f.manifests, f.status, f.publisher, logging.NewNop(), opts...)
	set, stubs := newStubSet()
	f.stubs = stubs
	f.mgr.ConfigureStages(set)
	return f
}

// addUnit creates a work-unit with a manifest at stage and an unprocessed
// status entry, and returns a session ready for Step.
func (f *fixture) addUnit(t *testing.T, group, unit string, trials int, stg session.Stage) *session.Session {
	t.Helper()
	dir := testsupport.MakeSession(t, f.run.Locations.InputRoot, group, unit, trials, 1)
	folders := make([]string, trials)
	for i := range folders {
		folders[i] = strconv.Itoa(i)
	}
	testsupport.WriteManifest(t, dir, folders, string(stg))

	statusPath := statusindex.Path(filepath.Join(f.run.Locations.InputRoot, group))
	idx, _, err := f.status.Load(statusPath)
	if err != nil {
		t.Fatalf("load status: %v", err)
	}
	if idx == nil {
		idx = statusindex.Index{}
	}
	idx[unit] = statusindex.Entry{TrialCount: trials}
	if _, err := f.status.Save(statusPath, idx); err != nil {
		t.Fatalf("save status: %v", err)
	}

	s := session.New(f.run.Locations.InputRoot, f.run.Locations.OutputRoot, group, unit)
	s.TrialCount = trials
	s.Stage = stg
	if err := f.mgr.layout.Prepare(s); err != nil {
		t.Fatalf("prepare scratch: %v", err)
	}
	return s
}

func (f *fixture) manifestStage(t *testing.T, s *session.Session) session.Stage {
	t.Helper()
	got, err := f.manifests.Read(manifest.Path(s.InputDir))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	return got
}

func (f *fixture) processed(t *testing.T, group, unit string) bool {
	t.Helper()
	idx, _, err := f.status.Load(statusindex.Path(filepath.Join(f.run.Locations.InputRoot, group)))
	if err != nil {
		t.Fatalf("load status: %v", err)
	}
	return idx[unit].Processed
}

func writeTrialVideos(t *testing.T, dir string, n int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%d.avi", i))
		if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

var errStub = errors.New("stub stage failed")
