package workflow

import (
	"log/slog"
	"sync"
	"time"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/manifest"
	"behaviorpipe/internal/runner"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/staging"
)

// Manager drives work-units through the registered stage handlers.
type Manager struct {
	run       config.Run
	task      session.Task
	manifests *manifest.Store
	status    StatusMarker
	layout    staging.Layout
	publisher Publisher
	ledger    Ledger
	logger    *slog.Logger

	restageOpts    runner.Options
	cleanupScratch bool
	cleanup        sync.WaitGroup
	now            func() time.Time

	stages   []pipelineStage
	byTarget map[session.Stage]int
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithLedger records every stage attempt in the run history.
func WithLedger(ledger Ledger) ManagerOption {
	return func(m *Manager) {
		m.ledger = ledger
	}
}

// WithScratchCleanup retires a work-unit's scratch directory once it reaches
// the terminal stage and its artifacts are published.
func WithScratchCleanup(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.cleanupScratch = enabled
	}
}

// WithClock replaces the time source (primarily for tests).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a workflow manager for one run. The task was
// validated when the run was resolved; an unparsable task runs every stage.
func NewManager(run config.Run, manifests *manifest.Store, status StatusMarker, publisher Publisher, logger *slog.Logger, opts ...ManagerOption) *Manager {
	task, err := session.ParseTask(run.Task)
	if err != nil {
		task = session.Task{}
	}
	m := &Manager{
		run:         run,
		task:        task,
		manifests:   manifests,
		status:      status,
		layout:      staging.Layout{ScratchRoot: run.Locations.ScratchRoot},
		publisher:   publisher,
		logger:      logging.NewComponentLogger(logger, "workflow"),
		restageOpts: runner.Options{Workers: run.Workers, Sequential: run.Debug},
		now:         time.Now,
		byTarget:    make(map[session.Stage]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
