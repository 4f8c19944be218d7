package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for filestage
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filestage",
		Short: "File staging service with script-driven record queries",
		Long: `filestage accepts file uploads into a flat staging directory and answers
record queries against them over HTTP.

Records are produced by external extraction scripts that read a stored file
and print one record per line; filestage filters and paginates that output.

Configuration is read from <home>/config.yaml (FILESTAGE_HOME, default
./.filestage), a .env file in the working directory and FILESTAGE_*
environment variables. CLI flags take precedence.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: <home>/config.yaml)")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewFilesCommand())
	cmd.AddCommand(NewUsersCommand())
	cmd.AddCommand(NewSizeCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
