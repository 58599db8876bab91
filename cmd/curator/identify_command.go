package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/api"
)

func parseCandidateIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid candidate id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the identity source for matching entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Results) == 0 {
				fmt.Fprintln(out, "No results")
				return nil
			}
			rows := make([][]string, 0, len(resp.Results))
			for _, result := range resp.Results {
				rows = append(rows, []string{result.ID, result.Title})
			}
			fmt.Fprintf(out, "Source: %s\n", resp.SourceType)
			fmt.Fprintln(out, renderTable([]string{"ID", "Title"}, rows))
			return nil
		},
	}
}

func newIdentifyCommand(ctx *commandContext) *cobra.Command {
	var (
		queryFlag      string
		sourceIDFlag   string
		titleFlag      string
		confidenceFlag float64
	)

	cmd := &cobra.Command{
		Use:   "identify <candidate-id...>",
		Short: "Cluster pending candidates under an identity hypothesis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseCandidateIDs(args)
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			sourceID := strings.TrimSpace(sourceIDFlag)
			title := strings.TrimSpace(titleFlag)
			if sourceID == "" {
				if strings.TrimSpace(queryFlag) == "" {
					return errors.New("pass --source-id, or --query to search for one")
				}
				resp, err := client.Search(cmd.Context(), queryFlag)
				if err != nil {
					return err
				}
				if len(resp.Results) == 0 {
					return fmt.Errorf("no source entries match %q", queryFlag)
				}
				top := resp.Results[0]
				sourceID = top.ID
				if title == "" {
					title = top.Title
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Using top search result %s (%s)\n", top.ID, top.Title)
			}

			cluster, err := client.CreateCluster(cmd.Context(), api.CreateClusterRequest{
				SourceID:       sourceID,
				SuggestedTitle: title,
				Confidence:     confidenceFlag,
				CandidateIDs:   ids,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cluster %d created with %d member(s); review with 'curator show %d'\n",
				cluster.ID, len(cluster.Members), cluster.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&queryFlag, "query", "", "Search the identity source and use the top result")
	cmd.Flags().StringVar(&sourceIDFlag, "source-id", "", "External identity id to cluster under")
	cmd.Flags().StringVar(&titleFlag, "title", "", "Suggested title for the cluster")
	cmd.Flags().Float64Var(&confidenceFlag, "confidence", 100, "Hypothesis confidence in [0, 100]")
	return cmd
}
