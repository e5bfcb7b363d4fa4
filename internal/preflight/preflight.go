package preflight

import (
	"fmt"

	"behaviorpipe/internal/config"
)

// MinScratchFreeBytes is the free space below which the scratch check fails.
const MinScratchFreeBytes = 20 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem and dependency checks for one run's
// resolved locations.
func RunAll(cfg *config.Config, loc config.Locations) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryReadable("Input root", loc.InputRoot))
	results = append(results, CheckDirectoryAccess("Scratch directory", loc.ScratchRoot))
	if results[len(results)-1].Passed {
		results = append(results, CheckFreeSpace("Scratch free space", loc.ScratchRoot, MinScratchFreeBytes))
	}
	results = append(results, CheckDirectoryAccess("Output root", loc.OutputRoot))

	for _, status := range CheckSystemDeps(cfg, loc.Perspective) {
		r := Result{Name: status.Name, Passed: status.Available || status.Optional}
		switch {
		case status.Available:
			r.Detail = status.Command
		case status.Detail != "":
			r.Detail = status.Detail
		default:
			r.Detail = fmt.Sprintf("%s unavailable", status.Command)
		}
		results = append(results, r)
	}

	if loc.Perspective != config.PerspectiveSide {
		results = append(results, CheckModels(cfg)...)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
