package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buxstream",
		Short: "Stream BUX real-time events",
		Long: `buxstream opens an authenticated connection to the BUX real-time feed,
subscribes to one or more channels and logs every inbound event.

The access token is read from an environment variable (BUX_ACCESS_TOKEN by default).`,
		Version:      versionString(version, commit, date),
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.AddCommand(newStreamCommand())
	rootCmd.AddCommand(newVersionCommand(rootCmd.Version))

	return rootCmd
}

func newVersionCommand(full string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "buxstream %s\n", full)
			return err
		},
	}
}

func versionString(version, commit, date string) string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
