package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"behaviorpipe/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs or the stage transitions of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			plain := !isTerminal(out)
			if runID != "" {
				transitions, err := store.Transitions(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if len(transitions) == 0 {
					fmt.Fprintf(out, "No transitions recorded for run %s\n", runID)
					return nil
				}
				rows := make([][]string, 0, len(transitions))
				for _, tr := range transitions {
					rows = append(rows, []string{
						formatTime(tr.At),
						tr.Group + "/" + tr.Session,
						string(tr.From) + " -> " + string(tr.To),
						string(tr.Outcome),
						tr.Error,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"At", "Session", "Transition", "Outcome", "Error"}, rows, nil, plain))
				return nil
			}

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				finished := "running"
				if r.FinishedAt != nil {
					finished = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
				}
				rows = append(rows, []string{
					r.ID,
					formatTime(r.StartedAt),
					finished,
					r.Host,
					r.User,
					r.Task,
					strconv.Itoa(r.Pending),
					strconv.Itoa(r.Completed),
					strconv.Itoa(r.Failed),
				})
			}
			headers := []string{"Run", "Started", "Duration", "Host", "User", "Task", "Pending", "Completed", "Failed"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}
			fmt.Fprintln(out, renderTable(headers, rows, aligns, plain))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "Show stage transitions for this run id")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
