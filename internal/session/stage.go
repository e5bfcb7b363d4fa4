package session

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage is a work-unit's position in the pipeline. Stages are totally
// ordered and every work-unit passes through each one exactly once.
type Stage string

const (
	StageDiscovered       Stage = "discovered"
	StageMoviesBuilt      Stage = "movies_built"
	StagePosturesAnalyzed Stage = "postures_analyzed"
	StageLeftRightSplit   Stage = "left_right_split"
	StageLeftAnalyzed     Stage = "left_analyzed"
	StageRightAnalyzed    Stage = "right_analyzed"
	StageFrameDataWritten Stage = "frame_data_written"
)

// InitialStage is assigned to work-units whose manifest has no stage yet.
const InitialStage = StageDiscovered

// TerminalStage is the last stage of the pipeline.
const TerminalStage = StageFrameDataWritten

var orderedStages = []Stage{
	StageDiscovered,
	StageMoviesBuilt,
	StagePosturesAnalyzed,
	StageLeftRightSplit,
	StageLeftAnalyzed,
	StageRightAnalyzed,
	StageFrameDataWritten,
}

var stageIndex = func() map[Stage]int {
	idx := make(map[Stage]int, len(orderedStages))
	for i, s := range orderedStages {
		idx[s] = i
	}
	return idx
}()

// Names recorded by earlier versions of the pipeline in the manifest's
// last_task field.
var legacyStageNames = map[string]Stage{
	"create_json_manifest":          StageDiscovered,
	"movie_creation":                StageMoviesBuilt,
	"analyze_movies":                StagePosturesAnalyzed,
	"split_top_left_right":          StageLeftRightSplit,
	"analyze_left_video":            StageLeftAnalyzed,
	"analyze_right_video":           StageRightAnalyzed,
	"writeframedata_from_top_video": StageFrameDataWritten,
}

// AllStages returns every stage in pipeline order.
func AllStages() []Stage {
	out := make([]Stage, len(orderedStages))
	copy(out, orderedStages)
	return out
}

// ParseStage converts a persisted or user-supplied value into a Stage. Legacy
// task names are accepted.
func ParseStage(value string) (Stage, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if _, ok := stageIndex[Stage(normalized)]; ok {
		return Stage(normalized), nil
	}
	if stage, ok := legacyStageNames[normalized]; ok {
		return stage, nil
	}
	return "", fmt.Errorf("unknown stage %q", value)
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageIndex[s]
	return ok
}

// Index returns the position of s in pipeline order, or -1 when unknown.
func (s Stage) Index() int {
	if i, ok := stageIndex[s]; ok {
		return i
	}
	return -1
}

// IsTerminal reports whether s is the final stage.
func (s Stage) IsTerminal() bool {
	return s == TerminalStage
}

// Next returns the stage following current. ok is false when current is
// terminal or unknown.
func Next(current Stage) (next Stage, ok bool) {
	i := current.Index()
	if i < 0 || i+1 >= len(orderedStages) {
		return "", false
	}
	return orderedStages[i+1], true
}

// Compare orders two stages by pipeline position.
func Compare(a, b Stage) int {
	return a.Index() - b.Index()
}

var labelCaser = cases.Title(language.English)

// Label renders the stage for humans ("Movies Built").
func (s Stage) Label() string {
	return labelCaser.String(strings.ReplaceAll(string(s), "_", " "))
}

func (s Stage) String() string { return string(s) }
