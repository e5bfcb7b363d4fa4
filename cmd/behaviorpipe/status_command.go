package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/manifest"
	"behaviorpipe/internal/pipelinerun"
	"behaviorpipe/internal/reconcile"
	"behaviorpipe/internal/statusindex"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var loc locationFlags
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-session progress without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			run, err := pipelinerun.Resolve(cfg, pipelinerun.Options{User: loc.user, SourceHost: loc.host})
			if err != nil {
				return err
			}
			logger := logging.NewNop()
			inspector := reconcile.New(manifest.NewStore(logger), statusindex.NewStore(logger), logger)
			units, err := inspector.Inspect(run.Locations.InputRoot)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Input root: %s\n", run.Locations.InputRoot)
			rows := make([][]string, 0, len(units))
			for _, u := range units {
				if pendingOnly && u.Processed {
					continue
				}
				rows = append(rows, statusRow(u))
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No sessions found")
				return nil
			}
			headers := []string{"Group", "Session", "Processed", "Trials", "Stage", "Note"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns, !isTerminal(out)))
			return nil
		},
	}

	loc.register(cmd)
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Only list sessions that are not processed")
	return cmd
}

func statusRow(u reconcile.UnitStatus) []string {
	stage := "-"
	if u.Stage != "" {
		stage = u.Stage.Label()
	}
	note := ""
	switch {
	case u.Err != nil:
		note = u.Err.Error()
	case !u.Tracked:
		note = "not yet reconciled"
	}
	trials := "-"
	if u.Tracked {
		trials = strconv.Itoa(u.TrialCount)
	}
	return []string{u.Group, u.Unit, yesNo(u.Processed), trials, stage, note}
}
