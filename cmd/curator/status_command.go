package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"curator/internal/catalog"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
			fmt.Fprintln(out, renderLine("Running", fmt.Sprintf("%t (pid %d)", status.Running, status.PID)))
			fmt.Fprintln(out, renderLine("Database", status.DatabasePath))
			fmt.Fprintln(out, renderLine("Lock file", status.LockFilePath))

			fmt.Fprintln(out, renderSectionHeader("Candidates", colorize))
			for _, s := range []catalog.CandidateStatus{
				catalog.CandidatePending,
				catalog.CandidateClustered,
				catalog.CandidateAccepted,
				catalog.CandidateLocked,
				catalog.CandidateMerged,
			} {
				if count := status.Candidates[s]; count > 0 {
					fmt.Fprintln(out, renderLine(string(s), fmt.Sprintf("%d", count)))
				}
			}

			fmt.Fprintln(out, renderSectionHeader("Matches", colorize))
			for _, s := range []catalog.MatchStatus{
				catalog.MatchSuggested,
				catalog.MatchAccepted,
				catalog.MatchRejected,
				catalog.MatchCanonicalized,
			} {
				if count := status.Matches[s]; count > 0 {
					fmt.Fprintln(out, renderLine(string(s), fmt.Sprintf("%d", count)))
				}
			}

			fmt.Fprintln(out, renderSectionHeader("Canonical", colorize))
			fmt.Fprintln(out, renderLine("Works", fmt.Sprintf("%d", status.Works)))
			fmt.Fprintln(out, renderLine("Provenance", fmt.Sprintf("%d", status.Provenance)))
			return nil
		},
	}
}
