package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "library",
		Short: "Show the unified library feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Library(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Entries) == 0 {
				fmt.Fprintln(out, "Library is empty")
				return nil
			}

			rows := make([][]string, 0, len(resp.Entries))
			for _, entry := range resp.Entries {
				ref := ""
				switch {
				case entry.CanonicalID != nil:
					ref = "work " + strconv.FormatInt(*entry.CanonicalID, 10)
				case entry.ClusterID != nil:
					ref = "cluster " + strconv.FormatInt(*entry.ClusterID, 10)
				}
				confidence := ""
				if entry.Confidence != nil {
					confidence = fmt.Sprintf("%.0f", *entry.Confidence)
				}
				rows = append(rows, []string{
					string(entry.EntryType),
					entry.DisplayTitle,
					strconv.Itoa(entry.InstanceCount),
					confidence,
					ref,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Type", "Title", "Instances", "Conf", "Ref"},
				rows, 2, 3))
			return nil
		},
	}
}
