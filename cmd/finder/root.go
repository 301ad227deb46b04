package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var dbFlag string

	ctx := newCommandContext(&configFlag, &dbFlag)

	rootCmd := &cobra.Command{
		Use:           "podfinder",
		Short:         "Track podcast episodes matching saved searches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (TOML)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Path to the SQLite database (overrides DATABASE_PATH)")

	rootCmd.AddCommand(newAddQueryCommand(ctx))
	rootCmd.AddCommand(newListQueriesCommand(ctx))
	rootCmd.AddCommand(newUpdateQueryCommand(ctx))
	rootCmd.AddCommand(newDeleteQueryCommand(ctx))
	rootCmd.AddCommand(newRunQueryCommand(ctx))
	rootCmd.AddCommand(newRunDueCommand(ctx))
	rootCmd.AddCommand(newListEpisodesCommand(ctx))
	rootCmd.AddCommand(newRecentRunsCommand(ctx))
	rootCmd.AddCommand(newDaemonCommand(ctx))

	return rootCmd
}
