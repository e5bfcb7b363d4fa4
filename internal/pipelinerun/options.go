package pipelinerun

import (
	"os"
	"os/user"
	"strings"

	"github.com/google/uuid"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/runner"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/session"
)

// Options carries the operator's choices for one run.
type Options struct {
	// User owns the recordings. Empty uses the current OS user.
	User string
	// SourceHost names the capture host whose recordings are processed.
	SourceHost string
	// Task is "all" or the last stage to run.
	Task string
	// Debug runs per-trial work sequentially.
	Debug bool
	// LogPath overrides the per-run log file.
	LogPath string
	// Console mirrors log output to stderr.
	Console bool
	// Executor replaces the process executor for every collaborator
	// (primarily for tests).
	Executor services.Executor
}

// Resolve builds the immutable run configuration from cfg and opts.
func Resolve(cfg *config.Config, opts Options) (config.Run, error) {
	if cfg == nil {
		return config.Run{}, services.Wrap(services.ErrConfiguration, "", "resolve run", "config is required", nil)
	}
	task, err := session.ParseTask(opts.Task)
	if err != nil {
		return config.Run{}, services.Wrap(services.ErrConfiguration, "", "resolve run", "invalid task", err)
	}

	userName := strings.TrimSpace(opts.User)
	if userName == "" {
		current, err := user.Current()
		if err != nil {
			return config.Run{}, services.Wrap(services.ErrConfiguration, "", "resolve run", "determine current user", err)
		}
		userName = current.Username
	}
	sourceHost := strings.ToLower(strings.TrimSpace(opts.SourceHost))
	if sourceHost == "" {
		return config.Run{}, services.Wrap(services.ErrConfiguration, "", "resolve run", "source host is required", nil)
	}

	loc, err := cfg.ResolveLocations(userName, sourceHost)
	if err != nil {
		return config.Run{}, services.Wrap(services.ErrConfiguration, "", "resolve run", "resolve locations", err)
	}

	computeHost, err := os.Hostname()
	if err != nil {
		computeHost = "unknown"
	}
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = runner.DefaultWorkers()
	}

	return config.Run{
		ID:          uuid.NewString(),
		User:        userName,
		SourceHost:  sourceHost,
		ComputeHost: computeHost,
		Task:        task.String(),
		Debug:       opts.Debug,
		Workers:     workers,
		Locations:   loc,
	}, nil
}
