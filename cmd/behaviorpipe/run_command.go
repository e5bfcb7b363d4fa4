package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"behaviorpipe/internal/pipelinerun"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/session"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var loc locationFlags
	var task string
	var debug bool
	var logPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every outstanding session for a capture host",
		Long: "Reconcile the status files under the host's input root and drive each\n" +
			"unprocessed session through the configured stages. Sessions that fail are\n" +
			"reported and retried on the next run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := pipelinerun.Run(cmd.Context(), cfg, pipelinerun.Options{
				User:       loc.user,
				SourceHost: loc.host,
				Task:       task,
				Debug:      debug,
				LogPath:    logPath,
				Console:    verbose || debug,
			})
			if result.LogPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Log file: %s\n", result.LogPath)
			}
			if err != nil {
				return fmt.Errorf("run failed (%s): %w", services.Kind(err), err)
			}
			printRunSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}

	loc.register(cmd)
	cmd.Flags().StringVarP(&task, "task", "t", session.TaskAll, "Run all stages or stop after the named stage")
	cmd.Flags().BoolVar(&debug, "debug", false, "Process trials sequentially and mirror log output to the terminal")
	cmd.Flags().StringVar(&logPath, "log", "", "Write the run log to this file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Mirror log output to the terminal")
	return cmd
}

func printRunSummary(out io.Writer, result pipelinerun.Result) {
	summary := result.Summary
	fmt.Fprintf(out, "Outstanding sessions: %d\n", result.Reconcile.Outstanding())
	fmt.Fprintf(out, "Completed: %d  Stopped: %d  Failed: %d\n",
		len(summary.Completed()), len(summary.Stopped()), len(summary.Failures()))
	if len(result.Reconcile.Errors) > 0 {
		fmt.Fprintf(out, "Unreadable sessions: %d\n", len(result.Reconcile.Errors))
	}
	failures := summary.Failures()
	if len(failures) > 0 {
		rows := make([][]string, 0, len(failures))
		for _, f := range failures {
			rows = append(rows, []string{f.Key, f.To.Label(), services.Kind(f.Err), f.Err.Error()})
		}
		fmt.Fprintln(out, renderTable([]string{"Session", "Stage", "Kind", "Error"}, rows, nil, !isTerminal(out)))
	}
	fmt.Fprintln(out, pipelinerun.FormatElapsed(result.Elapsed))
}
