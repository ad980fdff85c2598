package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pressroom/internal/issue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline state counts and stalled issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := store.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("load health summary: %w", err)
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("load state counts: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Total", "Pending", "In Progress", "Complete", "Failed"},
				[][]string{{
					strconv.Itoa(summary.Total),
					strconv.Itoa(summary.Pending),
					strconv.Itoa(summary.InProgress),
					strconv.Itoa(summary.Complete),
					strconv.Itoa(summary.Failed),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
			))

			var rows [][]string
			for _, state := range issue.AllStates() {
				if count := stats[state]; count > 0 {
					rows = append(rows, []string{state.Label(), strconv.Itoa(count)})
				}
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"State", "Issues"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
			}

			cutoff := time.Now().UTC().Add(-time.Duration(cfg.Workflow.StaleInProgressAge) * time.Minute)
			stale, err := store.StaleInProgress(cmd.Context(), cutoff)
			if err != nil {
				return fmt.Errorf("load stale issues: %w", err)
			}
			if len(stale) > 0 {
				rows = rows[:0]
				for _, record := range stale {
					rows = append(rows, []string{
						record.ID,
						record.WorkflowState.Label(),
						record.WorkflowStateStartedAt.UTC().Format(time.RFC3339),
					})
				}
				fmt.Fprintln(out, "Stalled in-progress issues (not auto-reset):")
				fmt.Fprintln(out, renderTable(
					[]string{"Issue", "State", "Since"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
			}
			return nil
		},
	}
}
