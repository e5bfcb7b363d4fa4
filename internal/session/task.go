package session

import (
	"fmt"
	"strings"
)

// TaskAll runs every stage.
const TaskAll = "all"

// Task selects which stages a run may enter.
type Task struct {
	// Limit is the last stage the run may complete. Empty means no limit.
	Limit Stage
}

// ParseTask accepts "all" or any stage name (including legacy names such as
// movie_creation).
func ParseTask(value string) (Task, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" || normalized == TaskAll {
		return Task{}, nil
	}
	stage, err := ParseStage(normalized)
	if err != nil {
		return Task{}, fmt.Errorf("task: %w", err)
	}
	if stage == InitialStage {
		return Task{}, fmt.Errorf("task: %q is not a runnable stage", value)
	}
	return Task{Limit: stage}, nil
}

// Allows reports whether a run with this task may enter stage.
func (t Task) Allows(stage Stage) bool {
	if t.Limit == "" {
		return true
	}
	return Compare(stage, t.Limit) <= 0
}

// Reached reports whether current satisfies the task, meaning no further
// stage may be entered.
func (t Task) Reached(current Stage) bool {
	if t.Limit == "" {
		return current.IsTerminal()
	}
	return Compare(current, t.Limit) >= 0
}

func (t Task) String() string {
	if t.Limit == "" {
		return TaskAll
	}
	return string(t.Limit)
}
