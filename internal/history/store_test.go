package history_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"behaviorpipe/internal/history"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/testsupport"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	if err := store.StartRun(ctx, history.Run{ID: "run-1", StartedAt: started, Task: "all", Host: "lil-whisker", User: "tester", ComputeHost: "node1", Pending: 3}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := store.RecordTransition(ctx, history.Transition{
		RunID: "run-1", Group: "mouse1", Session: "s1",
		From: session.StageDiscovered, To: session.StageMoviesBuilt, Outcome: history.OutcomeAdvanced,
	}); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if err := store.RecordTransition(ctx, history.Transition{
		RunID: "run-1", Group: "mouse1", Session: "s2",
		From: session.StageMoviesBuilt, To: session.StagePosturesAnalyzed, Outcome: history.OutcomeBlocked, Error: "count mismatch",
	}); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if err := store.FinishRun(ctx, "run-1", 3, 1, 1, started.Add(time.Hour)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := store.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.Completed != 1 || run.Failed != 1 || run.Pending != 3 || run.FinishedAt == nil {
		t.Fatalf("unexpected run: %+v", run)
	}
	if !run.StartedAt.Equal(started) {
		t.Fatalf("started = %v, want %v", run.StartedAt, started)
	}

	transitions, err := store.Transitions(ctx, "run-1")
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(transitions) != 2 || transitions[1].Outcome != history.OutcomeBlocked || transitions[1].Error != "count mismatch" {
		t.Fatalf("unexpected transitions: %+v", transitions)
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.StartRun(ctx, history.Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour), Task: "all"}); err != nil {
			t.Fatalf("StartRun: %v", err)
		}
	}
	runs, err := store.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestStartRunRequiresID(t *testing.T) {
	store := openStore(t)
	if err := store.StartRun(context.Background(), history.Run{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestReopenDetectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", history.Path(cfg))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	if _, err := history.Open(cfg); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
