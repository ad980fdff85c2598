package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pressroom/internal/issue"
)

func newIssueCommand(ctx *commandContext) *cobra.Command {
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Inspect and manage newsletter issues",
	}
	issueCmd.AddCommand(newIssueListCommand(ctx))
	issueCmd.AddCommand(newIssueShowCommand(ctx))
	issueCmd.AddCommand(newIssueCreateCommand(ctx))
	issueCmd.AddCommand(newIssueRetryCommand(ctx))
	issueCmd.AddCommand(newIssueDeleteCommand(ctx))
	return issueCmd
}

func newIssueListCommand(ctx *commandContext) *cobra.Command {
	var stateFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues, optionally filtered by workflow state",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var states []issue.WorkflowState
			if stateFlag != "" {
				state, ok := issue.ParseWorkflowState(stateFlag)
				if !ok {
					return fmt.Errorf("unknown workflow state %q", stateFlag)
				}
				states = append(states, state)
			}

			records, err := store.List(cmd.Context(), states...)
			if err != nil {
				return fmt.Errorf("list issues: %w", err)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No issues found.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					record.ID,
					record.EditionDate,
					record.Title,
					record.Status,
					record.WorkflowState.Label(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Edition", "Title", "Status", "State"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&stateFlag, "state", "", "Filter by workflow state")
	return cmd
}

func newIssueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <issue-id>",
		Short: "Show one issue with its posts and articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load issue: %w", err)
			}
			if record == nil {
				return fmt.Errorf("issue %s not found", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Issue:    %s\n", record.ID)
			fmt.Fprintf(out, "Title:    %s\n", record.Title)
			fmt.Fprintf(out, "Edition:  %s\n", record.EditionDate)
			fmt.Fprintf(out, "Status:   %s\n", record.Status)
			fmt.Fprintf(out, "State:    %s (since %s)\n",
				record.WorkflowState.Label(),
				record.WorkflowStateStartedAt.UTC().Format(time.RFC3339))
			if record.WorkflowError != "" {
				fmt.Fprintf(out, "Error:    %s\n", record.WorkflowError)
			}
			if record.FailureAlertedAt != nil {
				fmt.Fprintf(out, "Alerted:  %s\n", record.FailureAlertedAt.UTC().Format(time.RFC3339))
			}

			posts, err := store.PostsForIssue(cmd.Context(), record.ID)
			if err != nil {
				return fmt.Errorf("load posts: %w", err)
			}
			if len(posts) > 0 {
				rows := make([][]string, 0, len(posts))
				for _, post := range posts {
					score := "-"
					if post.Score != nil {
						score = strconv.FormatFloat(*post.Score, 'f', 2, 64)
					}
					rows = append(rows, []string{
						strconv.FormatInt(post.ID, 10),
						post.Title,
						post.Section,
						score,
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]string{"Post", "Title", "Section", "Score"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
				))
			}

			articles, err := store.ArticlesForIssue(cmd.Context(), record.ID)
			if err != nil {
				return fmt.Errorf("load articles: %w", err)
			}
			if len(articles) > 0 {
				rows := make([][]string, 0, len(articles))
				for _, article := range articles {
					rows = append(rows, []string{
						article.Section,
						strconv.Itoa(article.Position),
						article.Headline,
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]string{"Section", "Pos", "Headline"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft},
				))
			}
			return nil
		},
	}
}

func newIssueCreateCommand(ctx *commandContext) *cobra.Command {
	var title string
	var edition string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new issue in pending_archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" || edition == "" {
				return fmt.Errorf("--title and --edition are required")
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.NewIssue(cmd.Context(), title, edition)
			if err != nil {
				return fmt.Errorf("create issue: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created issue %s in %s\n",
				record.ID, record.WorkflowState.Label())
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Issue title")
	cmd.Flags().StringVar(&edition, "edition", "", "Edition date (YYYY-MM-DD)")
	return cmd
}

func newIssueDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <issue-id>",
		Short: "Delete an issue with its posts and articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Remove(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("delete issue: %w", err)
			}
			if !removed {
				return fmt.Errorf("issue %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted issue %s\n", args[0])
			return nil
		},
	}
}

func newIssueRetryCommand(ctx *commandContext) *cobra.Command {
	var fromFlag string

	cmd := &cobra.Command{
		Use:   "retry <issue-id>",
		Short: "Reset a failed issue to a pending state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, ok := issue.ParseWorkflowState(fromFlag)
			if !ok || !state.IsPending() {
				return fmt.Errorf("--from must be a pending workflow state, got %q", fromFlag)
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			retried, err := store.RetryFrom(cmd.Context(), args[0], state)
			if err != nil {
				return fmt.Errorf("retry issue: %w", err)
			}
			if !retried {
				return fmt.Errorf("issue %s is not in the failed state", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Issue %s reset to %s\n", args[0], state.Label())
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFlag, "from", string(issue.StatePendingArchive), "Pending state to resume from")
	return cmd
}
