package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"behaviorpipe/internal/pipelinerun"
	"behaviorpipe/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var loc locationFlags

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, external commands, and models for a capture host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			run, err := pipelinerun.Resolve(cfg, pipelinerun.Options{User: loc.user, SourceHost: loc.host})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Locations", colorize) {
				fmt.Fprintln(out, line)
			}
			hostKind := statusOK
			hostDetail := run.SourceHost
			if !run.Locations.KnownHost {
				hostKind = statusWarn
				hostDetail += " (not in [hosts]; using user-level roots)"
			}
			fmt.Fprintln(out, renderStatusLine("Source host", hostKind, hostDetail, colorize))
			fmt.Fprintln(out, renderStatusLine("Perspective", statusInfo, run.Locations.Perspective, colorize))
			if ctx.configPath != "" {
				fmt.Fprintln(out, renderStatusLine("Config", statusInfo, ctx.configPath, colorize))
			}

			results := preflight.RunAll(cfg, run.Locations)
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			failed := preflight.Failed(results)
			fmt.Fprintln(out)
			if len(failed) == 0 {
				fmt.Fprintln(out, "All checks passed")
				return nil
			}
			fmt.Fprintf(out, "%d check(s) failed\n", len(failed))
			return nil
		},
	}

	loc.register(cmd)
	return cmd
}
