package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"
	"time"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/history"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/reconcile"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/staging"
	"behaviorpipe/internal/testsupport"
)

func TestStepAdvancesExactlyOneStage(t *testing.T) {
	f := newFixture(t, "all")
	s := f.addUnit(t, "mouse1", "s1", 3, session.StageDiscovered)

	res, err := f.mgr.Step(context.Background(), s)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.From != session.StageDiscovered || res.To != session.StageMoviesBuilt || res.Stop != "" {
		t.Fatalf("unexpected step result %+v", res)
	}
	if s.Stage != session.StageMoviesBuilt {
		t.Fatalf("session stage = %s", s.Stage)
	}
	if got := f.manifestStage(t, s); got != session.StageMoviesBuilt {
		t.Fatalf("manifest stage = %s, want movies_built", got)
	}
	if calls := f.stubs["top"].calls(); len(calls) != 0 {
		t.Fatalf("top postures ran during a single step: %v", calls)
	}

	// AVI is consumed by later stages; only MP4 leaves scratch now.
	published := f.publisher.published()
	if len(published) != 1 || !slices.Equal(published[0], []staging.Class{staging.ClassMP4}) {
		t.Fatalf("published = %v, want [[.mp4]]", published)
	}
	copied := f.publisher.copied()
	if len(copied) != 1 || !slices.Equal(copied[0], []staging.Class{staging.ClassAVI}) {
		t.Fatalf("copied = %v, want [[.avi]]", copied)
	}

	transitions := f.ledger.all()
	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	tr := transitions[0]
	if tr.Outcome != history.OutcomeAdvanced || tr.From != session.StageDiscovered || tr.To != session.StageMoviesBuilt {
		t.Fatalf("unexpected transition %+v", tr)
	}
	if tr.RunID != f.run.ID || tr.Group != "mouse1" || tr.Session != "s1" {
		t.Fatalf("transition identity mismatch: %+v", tr)
	}
}

func TestStepFailureLeavesManifestUntouched(t *testing.T) {
	f := newFixture(t, "all")
	f.stubs["movies"].executeErr = errStub
	s := f.addUnit(t, "mouse1", "s1", 2, session.StageDiscovered)

	res, err := f.mgr.Step(context.Background(), s)
	if !errors.Is(err, errStub) {
		t.Fatalf("expected stub error, got %v", err)
	}
	if res.To != session.StageDiscovered || s.Stage != session.StageDiscovered {
		t.Fatalf("session advanced despite failure: %+v stage=%s", res, s.Stage)
	}
	if got := f.manifestStage(t, s); got != session.StageDiscovered {
		t.Fatalf("manifest stage = %s, want discovered", got)
	}
	if published := f.publisher.published(); len(published) != 0 {
		t.Fatalf("failed stage published artifacts: %v", published)
	}
	transitions := f.ledger.all()
	if len(transitions) != 1 || transitions[0].Outcome != history.OutcomeFailed {
		t.Fatalf("expected one failed transition, got %+v", transitions)
	}
	if transitions[0].Error == "" {
		t.Fatal("failed transition should carry the error text")
	}
}

func TestStepResumesFromRecordedStage(t *testing.T) {
	f := newFixture(t, "all")
	s := f.addUnit(t, "mouse1", "s1", 2, session.StageMoviesBuilt)
	writeTrialVideos(t, s.ScratchDir, 2)

	if _, err := f.mgr.Step(context.Background(), s); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if calls := f.stubs["movies"].calls(); len(calls) != 0 {
		t.Fatalf("completed stage re-ran: %v", calls)
	}
	if calls := f.stubs["top"].calls(); len(calls) != 1 {
		t.Fatalf("expected top postures to run once, got %v", calls)
	}
	if got := f.manifestStage(t, s); got != session.StagePosturesAnalyzed {
		t.Fatalf("manifest stage = %s", got)
	}
}

func TestStepAtTerminalStageIsNoop(t *testing.T) {
	f := newFixture(t, "all")
	s := f.addUnit(t, "mouse1", "s1", 1, session.StageFrameDataWritten)

	res, err := f.mgr.Step(context.Background(), s)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Stop != StopTerminal {
		t.Fatalf("stop = %q, want terminal", res.Stop)
	}
	for name, stub := range f.stubs {
		if calls := stub.calls(); len(calls) != 0 {
			t.Fatalf("%s ran at terminal stage", name)
		}
	}
}

func TestCountGateBlocksMismatchedTrials(t *testing.T) {
	f := newFixture(t, "all")
	s := f.addUnit(t, "mouse1", "s1", 3, session.StageMoviesBuilt)
	writeTrialVideos(t, s.ScratchDir, 2)

	_, err := f.mgr.Step(context.Background(), s)
	if err == nil {
		t.Fatal("expected count mismatch error")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var mismatch *CountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected CountMismatchError, got %v", err)
	}
	if mismatch.Expected != 3 || mismatch.Actual != 2 {
		t.Fatalf("mismatch = %+v, want expected 3 actual 2", mismatch)
	}
	if calls := f.stubs["top"].calls(); len(calls) != 0 {
		t.Fatalf("gated stage ran despite mismatch: %v", calls)
	}
	if got := f.manifestStage(t, s); got != session.StageMoviesBuilt {
		t.Fatalf("manifest stage = %s, want movies_built", got)
	}
	transitions := f.ledger.all()
	if len(transitions) != 1 || transitions[0].Outcome != history.OutcomeBlocked {
		t.Fatalf("expected one blocked transition, got %+v", transitions)
	}
}

func TestCountGateIgnoresDerivedVideos(t *testing.T) {
	f := newFixture(t, "all")
	s := f.addUnit(t, "mouse1", "s1", 2, session.StageLeftRightSplit)
	writeTrialVideos(t, s.ScratchDir, 2)
	for _, name := range []string{"Mask0L.avi", "Mirror0R.avi", "Mask1L.avi", "Mirror1R.avi"} {
		if err := os.WriteFile(filepath.Join(s.ScratchDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	if _, err := f.mgr.Step(context.Background(), s); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if s.Stage != session.StageLeftAnalyzed {
		t.Fatalf("stage = %s, want left_analyzed", s.Stage)
	}
}

func TestCountGateRestagesFromFinalStorage(t *testing.T) {
	f := newFixture(t, "all")
	s := f.addUnit(t, "mouse1", "s1", 3, session.StageMoviesBuilt)
	writeTrialVideos(t, s.OutputDir, 3)

	if _, err := f.mgr.Step(context.Background(), s); err != nil {
		t.Fatalf("Step: %v", err)
	}
	count, err := staging.CountTrialMedia(s.ScratchDir)
	if err != nil {
		t.Fatalf("count scratch: %v", err)
	}
	if count != 3 {
		t.Fatalf("restaged %d videos, want 3", count)
	}
	if calls := f.stubs["top"].calls(); len(calls) != 1 {
		t.Fatalf("expected top postures to run after restage, got %v", calls)
	}
}

func TestCountGateRejectsPartialFinalStorage(t *testing.T) {
	f := newFixture(t, "all")
	s := f.addUnit(t, "mouse1", "s1", 3, session.StageMoviesBuilt)
	writeTrialVideos(t, s.OutputDir, 1)

	_, err := f.mgr.Step(context.Background(), s)
	var mismatch *CountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected CountMismatchError, got %v", err)
	}
	if mismatch.Actual != 0 {
		t.Fatalf("actual = %d, want 0", mismatch.Actual)
	}
	if count, _ := staging.CountTrialMedia(s.ScratchDir); count != 0 {
		t.Fatalf("partial output should not be restaged, found %d", count)
	}
}

func TestDriveRunsToTerminalAndMarksProcessed(t *testing.T) {
	f := newFixture(t, "all")
	s := f.addUnit(t, "mouse1", "s1", 2, session.StageDiscovered)

	res := f.mgr.Drive(context.Background(), s)
	if res.Err != nil {
		t.Fatalf("Drive: %v", res.Err)
	}
	if res.Stop != StopTerminal || res.To != session.StageFrameDataWritten {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.Advanced() {
		t.Fatal("expected Advanced to report progress")
	}
	if got := f.manifestStage(t, s); got != session.StageFrameDataWritten {
		t.Fatalf("manifest stage = %s", got)
	}
	if !f.processed(t, "mouse1", "s1") {
		t.Fatal("terminal work-unit not marked processed")
	}

	published := f.publisher.published()
	if len(published) == 0 {
		t.Fatal("nothing published")
	}
	if !slices.Equal(published[0], []staging.Class{staging.ClassMP4}) {
		t.Fatalf("first publication = %v, want [.mp4]", published[0])
	}
	last := published[len(published)-1]
	if !slices.Equal(last, []staging.Class{staging.ClassAVI, staging.ClassCSV}) {
		t.Fatalf("final flush = %v, want [.avi .csv]", last)
	}

	advanced := 0
	for _, tr := range f.ledger.all() {
		if tr.Outcome == history.OutcomeAdvanced {
			advanced++
		}
	}
	if advanced != len(session.AllStages())-1 {
		t.Fatalf("advanced transitions = %d, want %d", advanced, len(session.AllStages())-1)
	}
}

func TestDriveCompletedUnitIsNotPendingAgain(t *testing.T) {
	f := newFixture(t, "all")
	s := f.addUnit(t, "mouse1", "s1", 2, session.StageDiscovered)
	if res := f.mgr.Drive(context.Background(), s); res.Err != nil {
		t.Fatalf("Drive: %v", res.Err)
	}

	rec := reconcile.New(f.manifests, f.status, logging.NewNop())
	result, err := rec.Reconcile(context.Background(), f.run.Locations.InputRoot)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Outstanding() != 0 {
		t.Fatalf("expected no pending work-units, got %+v", result.Pending)
	}
}

func TestDriveStopsAtTaskLimitKeepsRetainedArtifacts(t *testing.T) {
	f := newFixture(t, "movies_built")
	s := f.addUnit(t, "mouse1", "s1", 2, session.StageDiscovered)

	res := f.mgr.Drive(context.Background(), s)
	if res.Err != nil {
		t.Fatalf("Drive: %v", res.Err)
	}
	if res.Stop != StopTaskLimit || res.To != session.StageMoviesBuilt {
		t.Fatalf("unexpected result %+v", res)
	}
	if calls := f.stubs["top"].calls(); len(calls) != 0 {
		t.Fatalf("stage beyond task limit ran: %v", calls)
	}
	if f.processed(t, "mouse1", "s1") {
		t.Fatal("work-unit below terminal stage marked processed")
	}
	published := f.publisher.published()
	if len(published) != 1 || !slices.Equal(published[0], []staging.Class{staging.ClassMP4}) {
		t.Fatalf("published = %v, want [[.mp4]]", published)
	}
	copied := f.publisher.copied()
	if len(copied) != 1 || !slices.Equal(copied[0], []staging.Class{staging.ClassAVI}) {
		t.Fatalf("copied = %v, want [[.avi]]", copied)
	}
}

func TestDriveResumesAfterTaskLimitInMoveMode(t *testing.T) {
	tests := []struct {
		name        string
		wipeScratch bool
	}{
		{name: "scratch kept"},
		{name: "scratch wiped", wipeScratch: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "postures_analyzed")
			pub := &filePublisher{mode: config.TransferMove}
			f.mgr.publisher = pub

			set, stubs := newStubSet()
			coords := func(i int) []string { return []string{strconv.Itoa(i) + "DLC_filtered.csv"} }
			stubs["top"].names = func(i int) []string {
				return []string{strconv.Itoa(i) + "DLC_filtered.csv", strconv.Itoa(i) + "DLC.h5"}
			}
			stubs["split"].needs = func(i int) []string {
				return append([]string{strconv.Itoa(i) + ".avi"}, coords(i)...)
			}
			stubs["left"].needs = func(i int) []string { return []string{"Mask" + strconv.Itoa(i) + "L.avi"} }
			stubs["right"].needs = func(i int) []string { return []string{"Mirror" + strconv.Itoa(i) + "R.avi"} }
			stubs["framedata"].needs = coords
			f.mgr.ConfigureStages(set)

			s := f.addUnit(t, "mouse1", "s1", 2, session.StageDiscovered)
			first := f.mgr.Drive(context.Background(), s)
			if first.Err != nil || first.Stop != StopTaskLimit || first.To != session.StagePosturesAnalyzed {
				t.Fatalf("first run = %+v", first)
			}
			for _, name := range []string{"0DLC_filtered.csv", "1.avi"} {
				if _, err := os.Stat(filepath.Join(s.ScratchDir, name)); err != nil {
					t.Fatalf("retained %s left scratch: %v", name, err)
				}
				if _, err := os.Stat(filepath.Join(s.OutputDir, name)); err != nil {
					t.Fatalf("retained %s has no copy in final storage: %v", name, err)
				}
			}
			if _, err := os.Stat(filepath.Join(s.ScratchDir, "0DLC.h5")); !os.IsNotExist(err) {
				t.Fatalf("model output should have been moved: %v", err)
			}
			if tt.wipeScratch {
				if err := os.RemoveAll(s.ScratchDir); err != nil {
					t.Fatalf("wipe scratch: %v", err)
				}
			}

			resume := NewManager(testsupport.Run(f.cfg, "all"), f.manifests, f.status, pub, logging.NewNop())
			resume.ConfigureStages(set)
			again := session.New(f.run.Locations.InputRoot, f.run.Locations.OutputRoot, "mouse1", "s1")
			again.TrialCount = 2
			again.Stage = f.manifestStage(t, s)

			second := resume.Drive(context.Background(), again)
			if second.Err != nil {
				t.Fatalf("resumed run failed: %v", second.Err)
			}
			if second.Stop != StopTerminal || f.manifestStage(t, s) != session.StageFrameDataWritten {
				t.Fatalf("resumed run = %+v", second)
			}
			if _, err := os.Stat(filepath.Join(s.OutputDir, "1FrameData.xlsx")); err != nil {
				t.Fatalf("spreadsheet not published: %v", err)
			}
		})
	}
}

func TestDriveSidePerspectiveStopsAfterMovies(t *testing.T) {
	f := newFixture(t, "all")
	movies := f.stubs["movies"]
	f.mgr.ConfigureStages(StageSet{MovieBuilder: movies})
	s := f.addUnit(t, "mouse1", "s1", 2, session.StageDiscovered)

	res := f.mgr.Drive(context.Background(), s)
	if res.Err != nil {
		t.Fatalf("Drive: %v", res.Err)
	}
	if res.Stop != StopNotConfigured || res.To != session.StageMoviesBuilt {
		t.Fatalf("unexpected result %+v", res)
	}
	published := f.publisher.published()
	if len(published) != 1 || !slices.Equal(published[0], []staging.Class{staging.ClassAVI, staging.ClassMP4}) {
		t.Fatalf("published = %v, want [[.avi .mp4]]", published)
	}
	if got := f.mgr.Stages(); !slices.Equal(got, []session.Stage{session.StageMoviesBuilt}) {
		t.Fatalf("Stages() = %v", got)
	}
}

func TestDriveRetiresScratchWhenEnabled(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, "all", WithScratchCleanup(true), WithClock(func() time.Time { return now }))
	s := f.addUnit(t, "mouse1", "s1", 1, session.StageDiscovered)

	if res := f.mgr.Drive(context.Background(), s); res.Err != nil {
		t.Fatalf("Drive: %v", res.Err)
	}
	f.mgr.WaitForCleanup()

	unitDir := f.mgr.layout.UnitDir("mouse1", "s1")
	if _, err := os.Stat(unitDir); !os.IsNotExist(err) {
		t.Fatalf("scratch dir still present: %v", err)
	}
	if _, err := os.Stat(unitDir + ".old_2026-03-14"); !os.IsNotExist(err) {
		t.Fatalf("retired dir not removed: %v", err)
	}
}

func TestDriveKeepsScratchWhenPublicationFails(t *testing.T) {
	f := newFixture(t, "all", WithScratchCleanup(true))
	f.publisher.err = errors.New("transfer failed")
	s := f.addUnit(t, "mouse1", "s1", 1, session.StageDiscovered)

	res := f.mgr.Drive(context.Background(), s)
	if res.Err != nil {
		t.Fatalf("publication failures must not fail the work-unit: %v", res.Err)
	}
	f.mgr.WaitForCleanup()
	if _, err := os.Stat(s.ScratchDir); err != nil {
		t.Fatalf("scratch removed despite failed publication: %v", err)
	}
	if !f.processed(t, "mouse1", "s1") {
		t.Fatal("terminal work-unit not marked processed")
	}
}

func TestProcessIsolatesFailingUnits(t *testing.T) {
	f := newFixture(t, "all")
	f.stubs["movies"].failUnits = map[string]bool{"b": true}
	var pending []reconcile.Pending
	for _, unit := range []string{"c", "a", "b"} {
		f.addUnit(t, "mouse1", unit, 1, session.StageDiscovered)
		pending = append(pending, reconcile.Pending{Group: "mouse1", Unit: unit, TrialCount: 1, Stage: session.StageDiscovered})
	}

	summary, err := f.mgr.Process(context.Background(), pending)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(summary.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(summary.Results))
	}
	if summary.Results[0].Key != "mouse1/a" || summary.Results[2].Key != "mouse1/c" {
		t.Fatalf("work-units not processed in order: %+v", summary.Results)
	}
	if got := len(summary.Completed()); got != 2 {
		t.Fatalf("completed = %d, want 2", got)
	}
	failures := summary.Failures()
	if len(failures) != 1 || failures[0].Key != "mouse1/b" {
		t.Fatalf("unexpected failures %+v", failures)
	}
	if !f.processed(t, "mouse1", "a") || !f.processed(t, "mouse1", "c") {
		t.Fatal("healthy siblings not marked processed")
	}
	if f.processed(t, "mouse1", "b") {
		t.Fatal("failed work-unit marked processed")
	}
}

func TestProcessStopsOnMissingInputRoot(t *testing.T) {
	f := newFixture(t, "all")
	f.addUnit(t, "mouse1", "a", 1, session.StageDiscovered)
	f.addUnit(t, "mouse1", "b", 1, session.StageDiscovered)
	if err := os.RemoveAll(f.run.Locations.InputRoot); err != nil {
		t.Fatalf("remove input root: %v", err)
	}
	pending := []reconcile.Pending{
		{Group: "mouse1", Unit: "a", TrialCount: 1, Stage: session.StageDiscovered},
		{Group: "mouse1", Unit: "b", TrialCount: 1, Stage: session.StageDiscovered},
	}

	summary, err := f.mgr.Process(context.Background(), pending)
	if !services.IsFatal(err) {
		t.Fatalf("expected fatal configuration error, got %v", err)
	}
	if len(summary.Results) != 1 {
		t.Fatalf("batch continued after fatal error: %+v", summary.Results)
	}
	if calls := f.stubs["movies"].calls(); len(calls) != 0 {
		t.Fatalf("movie stage ran without input root: %v", calls)
	}
}

func TestProcessHonorsCancellation(t *testing.T) {
	f := newFixture(t, "all")
	f.addUnit(t, "mouse1", "a", 1, session.StageDiscovered)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.mgr.Process(ctx, []reconcile.Pending{{Group: "mouse1", Unit: "a", TrialCount: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(summary.Results) != 0 {
		t.Fatalf("expected no results, got %+v", summary.Results)
	}
}

func TestStageHealthSkipsStagesBeyondTask(t *testing.T) {
	f := newFixture(t, "postures_analyzed")
	health := f.mgr.StageHealth(context.Background())
	if len(health) != 2 {
		t.Fatalf("expected 2 health reports, got %d", len(health))
	}
}
