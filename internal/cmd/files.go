package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewFilesCommand creates the files command
func NewFilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List stored files",
		Long: `List one page of the files in the staging directory, one name per line.
Uses the same pagination as GET /list.`,
		Args: cobra.NoArgs,
		RunE: runFiles,
	}

	cmd.Flags().Int("page", 1, "Page number (> 0)")
	cmd.Flags().Int("limit", 10, "Names per page")
	addStageFlags(cmd)

	return cmd
}

func runFiles(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	page, _ := cmd.Flags().GetInt("page")
	limit, _ := cmd.Flags().GetInt("limit")
	if limit > cfg.Server.MaxLimit {
		return fmt.Errorf("limit must be <= %d, got %d", cfg.Server.MaxLimit, limit)
	}

	names, err := newStage(cfg).List(page, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}
