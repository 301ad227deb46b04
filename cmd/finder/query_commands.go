package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"podfinder/internal/filter"
	"podfinder/internal/model"
	"podfinder/internal/report"
	"podfinder/internal/storage"
)

const patternHelp = "Plain text is a case-insensitive substring, * ? [] are glob wildcards, /.../ is a regular expression"

type patternFlags struct {
	excludeShows        []string
	excludeTitles       []string
	excludeDescriptions []string
	includeShows        []string
	includeTitles       []string
	includeDescriptions []string
}

func (p *patternFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVar(&p.excludeShows, "exclude-show", nil, "Exclude shows by name (repeatable). "+patternHelp)
	flags.StringArrayVar(&p.excludeTitles, "exclude-title", nil, "Exclude episodes by title (repeatable)")
	flags.StringArrayVar(&p.excludeDescriptions, "exclude-description", nil, "Exclude episodes by description (repeatable)")
	flags.StringArrayVar(&p.includeShows, "include-show", nil, "Only keep episodes of matching shows (repeatable)")
	flags.StringArrayVar(&p.includeTitles, "include-title", nil, "Only keep episodes with a matching title (repeatable)")
	flags.StringArrayVar(&p.includeDescriptions, "include-description", nil, "Only keep episodes with a matching description (repeatable)")
}

func (p *patternFlags) patterns() model.Patterns {
	return model.Patterns{
		ExcludeShows:        p.excludeShows,
		ExcludeTitles:       p.excludeTitles,
		ExcludeDescriptions: p.excludeDescriptions,
		IncludeShows:        p.includeShows,
		IncludeTitles:       p.includeTitles,
		IncludeDescriptions: p.includeDescriptions,
	}
}

// patch returns the pattern lists whose flags were given on the command line.
func (p *patternFlags) patch(cmd *cobra.Command, patch *storage.QueryPatch) {
	changed := func(name string, v *[]string) *[]string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		return v
	}
	patch.ExcludeShows = changed("exclude-show", &p.excludeShows)
	patch.ExcludeTitles = changed("exclude-title", &p.excludeTitles)
	patch.ExcludeDescriptions = changed("exclude-description", &p.excludeDescriptions)
	patch.IncludeShows = changed("include-show", &p.includeShows)
	patch.IncludeTitles = changed("include-title", &p.includeTitles)
	patch.IncludeDescriptions = changed("include-description", &p.includeDescriptions)
}

func warnQuery(w io.Writer, q model.Query) {
	for _, p := range filter.NewSet(q.Patterns).Inert() {
		fmt.Fprintf(w, "Warning: ignoring invalid pattern %q: %v\n", p.Raw, p.Err)
	}
	if _, ok := model.ParseFrequency(q.Frequency); !ok {
		fmt.Fprintf(w, "Note: frequency '%s' is not a schedule, the query only runs with run-query.\n", q.Frequency)
	}
}

func newAddQueryCommand(ctx *commandContext) *cobra.Command {
	var frequency string
	var pf patternFlags

	cmd := &cobra.Command{
		Use:   "add-query <term>",
		Short: "Create a new search query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store *storage.SQLite) error {
				existing, err := store.FindQueryByTerm(cmd.Context(), args[0])
				switch {
				case err == nil:
					return fmt.Errorf("query #%d already searches for '%s'", existing.ID, existing.Term)
				case !errors.Is(err, storage.ErrNotFound):
					return err
				}

				q := model.Query{Term: args[0], Frequency: frequency, Patterns: pf.patterns()}
				if err := store.CreateQuery(cmd.Context(), &q); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created search query #%d for term '%s' with frequency '%s'.\n", q.ID, q.Term, q.Frequency)
				warnQuery(cmd.ErrOrStderr(), q)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&frequency, "frequency", "weekly", "How often the search runs (daily, weekly, biweekly, monthly, quarterly, <N>d, <N>w, manual)")
	pf.register(cmd)
	return cmd
}

func newListQueriesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list-queries",
		Short: "List all stored search queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store *storage.SQLite) error {
				queries, err := store.ListQueries(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, report.Queries(queries, time.Now().UTC(), report.StyleFor(out)))
				return nil
			})
		},
	}
}

func newUpdateQueryCommand(ctx *commandContext) *cobra.Command {
	var term, frequency string
	var pf patternFlags

	cmd := &cobra.Command{
		Use:   "update-query <id>",
		Short: "Update an existing search query",
		Long:  "Update an existing search query. Pattern flags replace the whole list; pass an empty value to clear it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQueryID(args[0])
			if err != nil {
				return err
			}

			var patch storage.QueryPatch
			if cmd.Flags().Changed("term") {
				patch.Term = &term
			}
			if cmd.Flags().Changed("frequency") {
				patch.Frequency = &frequency
			}
			pf.patch(cmd, &patch)
			if patch == (storage.QueryPatch{}) {
				return errors.New("nothing to update, pass --term, --frequency or a pattern flag")
			}

			return ctx.withStore(cmd.Context(), func(store *storage.SQLite) error {
				if patch.Term != nil {
					existing, err := store.FindQueryByTerm(cmd.Context(), *patch.Term)
					switch {
					case err == nil && existing.ID != id:
						return fmt.Errorf("query #%d already searches for '%s'", existing.ID, existing.Term)
					case err != nil && !errors.Is(err, storage.ErrNotFound):
						return err
					}
				}

				q, err := store.UpdateQuery(cmd.Context(), id, patch)
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("search query #%d not found", id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated query #%d. Term: '%s', frequency: '%s'.\n", q.ID, q.Term, q.Frequency)
				warnQuery(cmd.ErrOrStderr(), *q)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&term, "term", "", "New search term")
	cmd.Flags().StringVar(&frequency, "frequency", "", "New run frequency")
	pf.register(cmd)
	return cmd
}

func newDeleteQueryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-query <id>",
		Short: "Remove a search query with its episodes and runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQueryID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store *storage.SQLite) error {
				err := store.DeleteQuery(cmd.Context(), id)
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("search query #%d not found", id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted search query #%d and its episodes.\n", id)
				return nil
			})
		},
	}
}
