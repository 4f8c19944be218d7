package cmd

import (
	"fmt"

	"github.com/harrison/filestage/internal/logger"
	"github.com/harrison/filestage/internal/models"
	"github.com/spf13/cobra"
)

// NewUsersCommand creates the users command
func NewUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users <file-name>",
		Short: "Query the records of a stored file",
		Long: `Run the extraction scripts against a stored file and print one page of
records, one per line.

Setting both --min and --max selects the range script; --order is then
ignored.

Examples:
  filestage users report-1
  filestage users report-1 --name bob --order desc --limit 50
  filestage users report-1 --min 10 --max 20`,
		Args: cobra.ExactArgs(1),
		RunE: runUsers,
	}

	cmd.Flags().Int("page", models.DefaultPage, "Page number (> 0)")
	cmd.Flags().Int("limit", models.DefaultLimit, "Records per page")
	cmd.Flags().String("name", "", "Keep records containing this substring")
	cmd.Flags().String("order", models.OrderAsc, "Sort order: asc or desc")
	cmd.Flags().Int("min", 0, "Lower bound for range mode")
	cmd.Flags().Int("max", 0, "Upper bound for range mode")
	addStageFlags(cmd)

	return cmd
}

func runUsers(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req := models.QueryRequest{FileName: args[0]}
	req.Page, _ = cmd.Flags().GetInt("page")
	req.Limit, _ = cmd.Flags().GetInt("limit")
	req.Name, _ = cmd.Flags().GetString("name")
	req.Order, _ = cmd.Flags().GetString("order")
	if cmd.Flags().Changed("min") {
		v, _ := cmd.Flags().GetInt("min")
		req.Min = &v
	}
	if cmd.Flags().Changed("max") {
		v, _ := cmd.Flags().GetInt("max")
		req.Max = &v
	}

	log := logger.NewConsoleLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	stage := newStage(cfg)
	engine := newEngine(cfg, stage, newInvoker(cfg, log))

	records, err := engine.ListUsers(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, record := range records {
		fmt.Fprintln(out, record)
	}
	return nil
}
