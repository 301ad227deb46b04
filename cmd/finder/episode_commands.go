package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"podfinder/internal/report"
	"podfinder/internal/storage"
)

func newListEpisodesCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var order string
	var asc bool

	cmd := &cobra.Command{
		Use:   "list-episodes <id>",
		Short: "Show stored episodes for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQueryID(args[0])
			if err != nil {
				return err
			}
			sortBy, err := report.EpisodeOrder(order)
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative, got %d", limit)
			}

			return ctx.withStore(cmd.Context(), func(store *storage.SQLite) error {
				if _, err := getQuery(cmd.Context(), store, id); err != nil {
					return err
				}
				eps, err := store.ListEpisodes(cmd.Context(), id, storage.EpisodeListOptions{
					Order:      sortBy,
					Descending: !asc,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, report.Episodes(eps, report.StyleFor(out)))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of episodes to show, 0 for all")
	cmd.Flags().StringVar(&order, "order", "release", "Order by release date (release), first seen (first) or last seen (last)")
	cmd.Flags().BoolVar(&asc, "asc", false, "Sort in ascending order")
	return cmd
}

func newRecentRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent-runs",
		Short: "Show the history of recent search runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			return ctx.withStore(cmd.Context(), func(store *storage.SQLite) error {
				runs, err := store.ListRecentRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, report.Runs(runs, time.Now().UTC(), report.StyleFor(out)))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	return cmd
}
