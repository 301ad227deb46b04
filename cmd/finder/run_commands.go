package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"podfinder/internal/report"
	"podfinder/internal/scheduler"
	"podfinder/internal/search"
	"podfinder/internal/storage"
)

type runFlags struct {
	market   string
	limit    int
	maxPages int
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.market, "market", "", "Market to search in, e.g. US (defaults to SPOTIFY_MARKET)")
	cmd.Flags().IntVar(&f.limit, "limit", 50, "Number of episodes per catalog request (1-50)")
	cmd.Flags().IntVar(&f.maxPages, "max-pages", 0, "Maximum number of result pages to retrieve, 0 for all")
}

// options overlays the flags given on the command line onto the configured defaults.
func (f *runFlags) options(cmd *cobra.Command, ctx *commandContext) (search.Options, error) {
	opts := ctx.defaultOptions()
	if cmd.Flags().Changed("market") {
		opts.Market = f.market
	}
	if cmd.Flags().Changed("limit") {
		if f.limit < 1 || f.limit > 50 {
			return search.Options{}, fmt.Errorf("--limit must be between 1 and 50, got %d", f.limit)
		}
		opts.PageSize = f.limit
	}
	if cmd.Flags().Changed("max-pages") {
		if f.maxPages < 0 {
			return search.Options{}, fmt.Errorf("--max-pages must not be negative, got %d", f.maxPages)
		}
		opts.MaxPages = f.maxPages
	}
	return opts, nil
}

func newRunQueryCommand(ctx *commandContext) *cobra.Command {
	var rf runFlags

	cmd := &cobra.Command{
		Use:   "run-query <id>",
		Short: "Run a search query against the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQueryID(args[0])
			if err != nil {
				return err
			}
			opts, err := rf.options(cmd, ctx)
			if err != nil {
				return err
			}

			return ctx.withStore(cmd.Context(), func(store *storage.SQLite) error {
				q, err := getQuery(cmd.Context(), store, id)
				if err != nil {
					return err
				}
				engine, err := ctx.newEngine(store)
				if err != nil {
					return err
				}
				summary, err := engine.Run(cmd.Context(), *q, opts)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), report.RunSummary(summary))
				return nil
			})
		},
	}
	rf.register(cmd)
	return cmd
}

func newRunDueCommand(ctx *commandContext) *cobra.Command {
	var rf runFlags

	cmd := &cobra.Command{
		Use:   "run-due",
		Short: "Run all queries whose schedule is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := rf.options(cmd, ctx)
			if err != nil {
				return err
			}

			return ctx.withStore(cmd.Context(), func(store *storage.SQLite) error {
				engine, err := ctx.newEngine(store)
				if err != nil {
					return err
				}
				sched := scheduler.New(store, engine, opts, ctx.log)

				queries, err := sched.Due(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(queries) == 0 {
					fmt.Fprintln(out, "No queries are currently due to run.")
					return nil
				}

				failed := 0
				for _, q := range queries {
					if err := cmd.Context().Err(); err != nil {
						return err
					}
					fmt.Fprintf(out, "Running query #%d (%s)...\n", q.ID, q.Term)
					res := sched.RunQuery(cmd.Context(), q)
					switch {
					case errors.Is(res.Err, search.ErrRunInProgress):
						fmt.Fprintf(out, "Query #%d is already running elsewhere, skipped.\n", q.ID)
					case res.Err != nil:
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "Query #%d failed: %v\n", q.ID, res.Err)
					default:
						fmt.Fprint(out, report.RunSummary(res.Summary))
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d due queries failed", failed, len(queries))
				}
				return nil
			})
		},
	}
	rf.register(cmd)
	return cmd
}
