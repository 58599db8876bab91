package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var rootFlag string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the library for new candidates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Scan(cmd.Context(), rootFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scan complete: %d discovered, %d known, %d skipped\n",
				resp.Summary.Discovered, resp.Summary.Known, resp.Summary.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&rootFlag, "root", "", "Override the configured library root")
	return cmd
}
