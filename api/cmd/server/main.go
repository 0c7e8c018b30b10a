package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "downloader",
	Short: "Media download job tracker",
	// Running the binary without a subcommand starts the server.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(MigrateCmd())
	rootCmd.AddCommand(UserCmd())
	rootCmd.AddCommand(EventsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
