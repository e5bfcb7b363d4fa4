package workflow

import "behaviorpipe/internal/session"

// ConfigureStages registers the concrete stage handlers the workflow will run.
// Stages are registered in pipeline order whether or not a handler is set so
// that Step can tell an unconfigured stage from an unknown one.
func (m *Manager) ConfigureStages(set StageSet) {
	stages := []pipelineStage{
		{name: "movies", target: session.StageMoviesBuilt, handler: set.MovieBuilder},
		{name: "postures_top", target: session.StagePosturesAnalyzed, handler: set.TopPostures, gated: true},
		{name: "viewsplit", target: session.StageLeftRightSplit, handler: set.ViewSplitter, gated: true},
		{name: "postures_left", target: session.StageLeftAnalyzed, handler: set.LeftPostures, gated: true},
		{name: "postures_right", target: session.StageRightAnalyzed, handler: set.RightPostures, gated: true},
		{name: "framedata", target: session.StageFrameDataWritten, handler: set.FrameData, gated: true},
	}
	m.stages = stages
	m.byTarget = make(map[session.Stage]int, len(stages))
	for i, stg := range stages {
		m.byTarget[stg.target] = i
	}
}

func (m *Manager) stageFor(target session.Stage) (pipelineStage, bool) {
	i, ok := m.byTarget[target]
	if !ok {
		return pipelineStage{}, false
	}
	return m.stages[i], true
}
