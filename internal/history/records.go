package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"behaviorpipe/internal/session"
)

// Outcome classifies a recorded stage attempt.
type Outcome string

const (
	// OutcomeAdvanced means the stage completed and the manifest moved forward.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeBlocked means a precondition such as the trial count gate held
	// the work-unit back.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeFailed means the stage's external work failed.
	OutcomeFailed Outcome = "failed"
)

// Run is one orchestrator invocation.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Task        string
	Host        string
	User        string
	ComputeHost string
	Pending     int
	Completed   int
	Failed      int
}

// Transition is one stage attempt for a work-unit.
type Transition struct {
	RunID   string
	Group   string
	Session string
	From    session.Stage
	To      session.Stage
	Outcome Outcome
	Error   string
	At      time.Time
}

// StartRun inserts a run row.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	err := s.exec(ctx,
		`INSERT INTO runs (run_id, started_at, task, host, user, compute_host, pending)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Task,
		run.Host,
		run.User,
		run.ComputeHost,
		run.Pending,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records a run's final counts.
func (s *Store) FinishRun(ctx context.Context, runID string, pending, completed, failed int, finishedAt time.Time) error {
	err := s.exec(ctx,
		`UPDATE runs SET finished_at = ?, pending = ?, completed = ?, failed = ? WHERE run_id = ?`,
		finishedAt.UTC().Format(time.RFC3339Nano),
		pending,
		completed,
		failed,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordTransition appends a stage attempt.
func (s *Store) RecordTransition(ctx context.Context, tr Transition) error {
	if tr.At.IsZero() {
		tr.At = time.Now()
	}
	err := s.exec(ctx,
		`INSERT INTO transitions (run_id, grp, session, from_stage, to_stage, outcome, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.RunID,
		tr.Group,
		tr.Session,
		string(tr.From),
		string(tr.To),
		string(tr.Outcome),
		tr.Error,
		tr.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, finished_at, task, host, user, compute_host, pending, completed, failed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.Task, &run.Host, &run.User,
			&run.ComputeHost, &run.Pending, &run.Completed, &run.Failed); err != nil {
			return nil, err
		}
		run.StartedAt = parseTime(started)
		if finished.Valid {
			t := parseTime(finished.String)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Transitions returns a run's stage attempts in the order they happened.
func (s *Store) Transitions(ctx context.Context, runID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, grp, session, from_stage, to_stage, outcome, error, at
		 FROM transitions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			tr       Transition
			from, to string
			outcome  string
			at       string
		)
		if err := rows.Scan(&tr.RunID, &tr.Group, &tr.Session, &from, &to, &outcome, &tr.Error, &at); err != nil {
			return nil, err
		}
		tr.From = session.Stage(from)
		tr.To = session.Stage(to)
		tr.Outcome = Outcome(outcome)
		tr.At = parseTime(at)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
