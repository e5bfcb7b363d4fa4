package workflow

import (
	"context"
	"fmt"
	"time"

	"behaviorpipe/internal/history"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/stage"
	"behaviorpipe/internal/staging"
)

// StageSet bundles the concrete stage handlers the manager orchestrates. A
// nil handler leaves its stage unconfigured; work-units stop before it.
type StageSet struct {
	MovieBuilder  stage.Handler
	TopPostures   stage.Handler
	ViewSplitter  stage.Handler
	LeftPostures  stage.Handler
	RightPostures stage.Handler
	FrameData     stage.Handler
}

type pipelineStage struct {
	name    string
	target  session.Stage
	handler stage.Handler
	// gated stages require every trial video to be staged first.
	gated bool
}

func (p pipelineStage) produces() []staging.Class {
	if a, ok := p.handler.(stage.Artifacts); ok {
		return a.Produces()
	}
	return nil
}

func (p pipelineStage) consumes() []staging.Class {
	if a, ok := p.handler.(stage.Artifacts); ok {
		return a.Consumes()
	}
	return nil
}

// Publisher transfers artifact classes from scratch to final storage.
// CopyClasses always leaves the scratch copy in place.
type Publisher interface {
	PublishClasses(ctx context.Context, srcDir, destDir string, classes []staging.Class) ([]staging.TransferResult, error)
	CopyClasses(ctx context.Context, srcDir, destDir string, classes []staging.Class) ([]staging.TransferResult, error)
}

// Ledger records stage attempts. Implementations must tolerate concurrent use.
type Ledger interface {
	RecordTransition(ctx context.Context, tr history.Transition) error
}

// StatusMarker flips a work-unit's processed flag in its group status file.
type StatusMarker interface {
	MarkProcessed(path, unit string) error
}

// CountMismatchError halts a work-unit whose staged trial videos do not match
// its recorded trial count. The work-unit is retried on the next run.
type CountMismatchError struct {
	Expected int
	Actual   int
	Dir      string
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("trial video count mismatch in %s: expected %d, actual %d", e.Dir, e.Expected, e.Actual)
}

// StopReason explains why Drive returned without error.
type StopReason string

const (
	StopTerminal      StopReason = "terminal"
	StopTaskLimit     StopReason = "task_limit"
	StopNotConfigured StopReason = "not_configured"
)

// UnitResult is the outcome of driving one work-unit.
type UnitResult struct {
	Key      string
	From     session.Stage
	To       session.Stage
	Stop     StopReason
	Err      error
	Duration time.Duration
}

// Advanced reports whether the work-unit moved forward at all.
func (r UnitResult) Advanced() bool {
	return r.To != r.From
}

// Summary aggregates a batch of work-units.
type Summary struct {
	Results []UnitResult
}

// Completed returns work-units that reached the terminal stage.
func (s Summary) Completed() []UnitResult {
	return s.filter(func(r UnitResult) bool { return r.Err == nil && r.Stop == StopTerminal })
}

// Stopped returns work-units that stopped early without error.
func (s Summary) Stopped() []UnitResult {
	return s.filter(func(r UnitResult) bool { return r.Err == nil && r.Stop != StopTerminal })
}

// Failures returns work-units that ended with an error.
func (s Summary) Failures() []UnitResult {
	return s.filter(func(r UnitResult) bool { return r.Err != nil })
}

func (s Summary) filter(keep func(UnitResult) bool) []UnitResult {
	var out []UnitResult
	for _, r := range s.Results {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
