package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Manage RSS/Atom sources",
	}
	feedCmd.AddCommand(newFeedListCommand(ctx))
	feedCmd.AddCommand(newFeedAddCommand(ctx))
	return feedCmd
}

func newFeedListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			feeds, err := store.ListFeeds(cmd.Context())
			if err != nil {
				return fmt.Errorf("list feeds: %w", err)
			}
			if len(feeds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No feeds configured. Add one with `pressroom feed add`.")
				return nil
			}

			rows := make([][]string, 0, len(feeds))
			for _, feed := range feeds {
				rows = append(rows, []string{
					strconv.FormatInt(feed.ID, 10),
					feed.Name,
					feed.URL,
					yesNo(feed.Active),
					strconv.Itoa(feed.ErrorCount),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "URL", "Active", "Errors"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newFeedAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	var url string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a feed source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || url == "" {
				return fmt.Errorf("--name and --url are required")
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			feed, err := store.AddFeed(cmd.Context(), name, url)
			if err != nil {
				return fmt.Errorf("add feed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added feed %d (%s)\n", feed.ID, feed.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Feed display name")
	cmd.Flags().StringVar(&url, "url", "", "Feed URL")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
