package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pressroom/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}
			if err := config.WriteSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set server.api_token (or export PRESSROOM_API_TOKEN) before serving.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data dir:          %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "Log dir:           %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Database:          %s\n", cfg.DatabasePath())
			fmt.Fprintf(out, "Bind:              %s\n", cfg.Server.Bind)
			fmt.Fprintf(out, "Base URL:          %s\n", cfg.Server.BaseURL)
			fmt.Fprintf(out, "API token set:     %s\n", yesNo(strings.TrimSpace(cfg.Server.APIToken) != ""))
			fmt.Fprintf(out, "Recovery interval: %ds\n", cfg.Workflow.RecoveryInterval)
			fmt.Fprintf(out, "Monitor interval:  %ds\n", cfg.Workflow.MonitorInterval)
			fmt.Fprintf(out, "Posts per section: %d\n", cfg.Generation.PostsPerSection)
			fmt.Fprintf(out, "LLM model:         %s\n", cfg.LLM.Model)
			fmt.Fprintf(out, "LLM key set:       %s\n", yesNo(strings.TrimSpace(cfg.LLM.APIKey) != ""))
			fmt.Fprintf(out, "Ntfy topic set:    %s\n", yesNo(strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""))
			fmt.Fprintf(out, "Log format/level:  %s/%s\n", cfg.Logging.Format, cfg.Logging.Level)
			return nil
		},
	}
}
