package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"curator/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigShowCommand(ctx))
	cmd.AddCommand(newConfigInitCommand(ctx))
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			source := ctx.cfgPath
			if ctx.cfgMissing {
				source += " (not found, using defaults)"
			}
			fmt.Fprintln(out, renderSectionHeader("Configuration", colorize))
			fmt.Fprintln(out, renderLine("Source", source))
			fmt.Fprintln(out, renderLine("Library", cfg.Paths.LibraryDir))
			fmt.Fprintln(out, renderLine("Data", cfg.Paths.DataDir))
			fmt.Fprintln(out, renderLine("Logs", cfg.Paths.LogDir))
			fmt.Fprintln(out, renderLine("API bind", cfg.Paths.APIBind))
			fmt.Fprintln(out, renderLine("Provider", cfg.Provider.SourceType))
			fmt.Fprintln(out, renderLine("Provider URL", cfg.Provider.BaseURL))
			fmt.Fprintln(out, renderLine("Workers", fmt.Sprintf("%d", cfg.Workflow.Workers)))
			fmt.Fprintln(out, renderLine("Queue depth", fmt.Sprintf("%d", cfg.Workflow.QueueDepth)))
			fmt.Fprintln(out, renderLine("Log format", cfg.Logging.Format))
			fmt.Fprintln(out, renderLine("Log level", cfg.Logging.Level))
			return nil
		},
	}
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var forceFlag bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *ctx.configFlag
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return err
			}

			if !forceFlag {
				if _, statErr := os.Stat(expanded); statErr == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", expanded)
				}
			}
			if err := config.CreateSample(expanded); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sample configuration written to %s\n", expanded)
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceFlag, "force", false, "Overwrite an existing file")
	return cmd
}
