package session_test

import (
	"testing"

	"behaviorpipe/internal/session"
)

func TestNextWalksPipelineInOrder(t *testing.T) {
	stage := session.InitialStage
	var visited []session.Stage
	for {
		next, ok := session.Next(stage)
		if !ok {
			break
		}
		if session.Compare(next, stage) <= 0 {
			t.Fatalf("Next(%s) = %s does not move forward", stage, next)
		}
		visited = append(visited, next)
		stage = next
	}
	if stage != session.TerminalStage {
		t.Fatalf("walk ended at %s, want %s", stage, session.TerminalStage)
	}
	if len(visited) != len(session.AllStages())-1 {
		t.Fatalf("visited %d stages, want %d", len(visited), len(session.AllStages())-1)
	}
	if _, ok := session.Next(session.Stage("bogus")); ok {
		t.Fatal("expected no successor for unknown stage")
	}
}

func TestParseStage(t *testing.T) {
	cases := map[string]session.Stage{
		"movies_built":                  session.StageMoviesBuilt,
		" Postures_Analyzed ":           session.StagePosturesAnalyzed,
		"create_json_manifest":          session.StageDiscovered,
		"movie_creation":                session.StageMoviesBuilt,
		"split_top_left_right":          session.StageLeftRightSplit,
		"writeFrameData_from_top_video": session.StageFrameDataWritten,
	}
	for input, want := range cases {
		got, err := session.ParseStage(input)
		if err != nil {
			t.Fatalf("ParseStage(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseStage(%q) = %s, want %s", input, got, want)
		}
	}
	if _, err := session.ParseStage("encoded"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestStageLabel(t *testing.T) {
	if got := session.StageLeftRightSplit.Label(); got != "Left Right Split" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestParseTask(t *testing.T) {
	all, err := session.ParseTask("all")
	if err != nil {
		t.Fatalf("ParseTask(all): %v", err)
	}
	if !all.Allows(session.TerminalStage) || all.Reached(session.StageRightAnalyzed) {
		t.Fatalf("unexpected all-task behaviour: %+v", all)
	}
	if !all.Reached(session.TerminalStage) {
		t.Fatal("all-task should be reached at terminal stage")
	}

	movies, err := session.ParseTask("movie_creation")
	if err != nil {
		t.Fatalf("ParseTask(movie_creation): %v", err)
	}
	if movies.Limit != session.StageMoviesBuilt {
		t.Fatalf("unexpected limit %s", movies.Limit)
	}
	if movies.Allows(session.StagePosturesAnalyzed) {
		t.Fatal("movie task must not allow posture analysis")
	}
	if !movies.Reached(session.StageMoviesBuilt) || movies.Reached(session.StageDiscovered) {
		t.Fatal("unexpected Reached results for movie task")
	}
	if movies.String() != "movies_built" {
		t.Fatalf("unexpected task string %q", movies.String())
	}

	if _, err := session.ParseTask("discovered"); err == nil {
		t.Fatal("expected error for initial stage task")
	}
	if _, err := session.ParseTask("transcode"); err == nil {
		t.Fatal("expected error for unknown task")
	}
}
