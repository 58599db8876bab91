package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/api"
	"curator/internal/catalog"
)

func parseClusterID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid cluster id %q", arg)
	}
	return id, nil
}

func newClustersCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "List identity clusters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]catalog.MatchStatus, 0, len(statusFlags))
			for _, value := range statusFlags {
				status, ok := catalog.ParseMatchStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			clusters, err := client.Clusters(cmd.Context(), statuses...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(clusters) == 0 {
				fmt.Fprintln(out, "No clusters")
				return nil
			}

			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(clusters))
			for _, cluster := range clusters {
				rows = append(rows, []string{
					strconv.FormatInt(cluster.ID, 10),
					cluster.DisplayTitle,
					cluster.SourceID,
					fmt.Sprintf("%.0f", cluster.Confidence),
					colorizeStatus(cluster.Status, colorize),
					strconv.Itoa(len(cluster.Members)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Source", "Conf", "Status", "Members"},
				rows, 0, 3, 5))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Filter by match status (repeatable)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <cluster-id>",
		Short: "Show one cluster and its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			cluster, err := client.Cluster(cmd.Context(), id)
			if err != nil {
				return err
			}
			printCluster(cmd, cluster)
			return nil
		},
	}
}

func printCluster(cmd *cobra.Command, cluster *api.ClusterView) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintln(out, renderSectionHeader(fmt.Sprintf("Cluster %d", cluster.ID), colorize))
	fmt.Fprintln(out, renderLine("Title", cluster.DisplayTitle))
	fmt.Fprintln(out, renderLine("Source", fmt.Sprintf("%s/%s", cluster.SourceType, cluster.SourceID)))
	fmt.Fprintln(out, renderLine("Confidence", fmt.Sprintf("%.0f", cluster.Confidence)))
	fmt.Fprintln(out, renderLine("Status", colorizeStatus(cluster.Status, colorize)))
	if cluster.WorkID != nil {
		fmt.Fprintln(out, renderLine("Work", strconv.FormatInt(*cluster.WorkID, 10)))
	}
	if cluster.Error != "" {
		fmt.Fprintln(out, renderLine("Error", cluster.Error))
	}

	if len(cluster.Members) == 0 {
		fmt.Fprintln(out, renderLine("Members", "none"))
		return
	}
	rows := make([][]string, 0, len(cluster.Members))
	for _, member := range cluster.Members {
		rows = append(rows, []string{
			strconv.FormatInt(member.ID, 10),
			member.Path,
			colorizeStatus(member.Status, colorize),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"ID", "Path", "Status"}, rows, 0))
}

func newAcceptCommand(ctx *commandContext) *cobra.Command {
	var titleFlag string

	cmd := &cobra.Command{
		Use:   "accept <cluster-id>",
		Short: "Accept a suggested cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			cluster, err := client.Accept(cmd.Context(), id, titleFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cluster %d accepted as %q\n", cluster.ID, cluster.DisplayTitle)
			return nil
		},
	}

	cmd.Flags().StringVar(&titleFlag, "title", "", "Override the suggested title")
	return cmd
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <cluster-id>",
		Short: "Reject a suggested cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if _, err := client.Reject(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cluster %d rejected\n", id)
			return nil
		},
	}
}

func newCanonicalizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "canonicalize <cluster-id>",
		Short: "Enqueue canonicalization of an accepted cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Canonicalize(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cluster %d queued for canonicalization; poll with 'curator show %d'\n", id, id)
			return nil
		},
	}
}

func newUnlockCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <cluster-id>",
		Short: "Unlock a cluster stuck after a failed canonicalization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			cluster, err := client.Unlock(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cluster %d unlocked\n", cluster.ID)
			return nil
		},
	}
}
