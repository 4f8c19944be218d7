package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/harrison/filestage/internal/audit"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent operations from the audit log",
		Long: `Show the most recent uploads and queries served by filestage, newest first.

Examples:
  filestage history
  filestage history --limit 50 --op upload
  filestage history --failed`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	cmd.Flags().Int("limit", 20, "Number of operations to show")
	cmd.Flags().String("op", "", "Only show this operation (upload, list, max-size, min-size, list-users, list-users-range)")
	cmd.Flags().Bool("failed", false, "Only show operations that ended with a 4xx or 5xx status")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	output := cmd.OutOrStdout()

	if _, err := os.Stat(cfg.Audit.DBPath); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(output, "No operations recorded yet\n")
		fmt.Fprintf(output, "Database path: %s\n", cfg.Audit.DBPath)
		return nil
	}

	store, err := audit.NewStore(cfg.Audit.DBPath)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	op, _ := cmd.Flags().GetString("op")
	failed, _ := cmd.Flags().GetBool("failed")

	ops, err := store.Recent(cmd.Context(), limit, audit.Filter{Op: op, FailedOnly: failed})
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Fprintf(output, "No matching operations\n")
		return nil
	}

	printHistory(output, ops, colorEnabled(output))
	return nil
}

// colorEnabled reports whether w is a terminal that should get ANSI colors.
func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && !color.NoColor && isatty.IsTerminal(f.Fd())
}

func printHistory(w io.Writer, ops []*audit.Operation, colorOutput bool) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	for _, c := range []*color.Color{cyan, green, yellow, red} {
		if colorOutput {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	cyan.Fprintf(w, "%-19s  %-6s  %-16s  %-20s  %8s  %s\n", "TIME", "STATUS", "OP", "FILE", "DURATION", "REQUEST")
	for _, op := range ops {
		status := green
		switch {
		case op.Status >= 500:
			status = red
		case op.Status >= 400:
			status = yellow
		}

		fmt.Fprintf(w, "%-19s  ", op.Timestamp.Format("2006-01-02 15:04:05"))
		status.Fprintf(w, "%-6d", op.Status)
		fmt.Fprintf(w, "  %-16s  %-20s  %6dms  %s\n", op.Op, displayName(op), op.DurationMs, op.RequestID)
		if op.Error != "" {
			red.Fprintf(w, "    %s\n", op.Error)
		}
	}
}

func displayName(op *audit.Operation) string {
	name := op.FileName
	if name == "" {
		name = "-"
	}
	if op.Outcome != "" {
		name += " (" + op.Outcome + ")"
	}
	return name
}
