package cmd

import (
	"fmt"

	"github.com/harrison/filestage/internal/logger"
	"github.com/harrison/filestage/internal/models"
	"github.com/spf13/cobra"
)

// NewSizeCommand creates the size command
func NewSizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "size <file-name>",
		Short: "Print the max (or min) size value of a stored file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSize,
	}

	cmd.Flags().Bool("min", false, "Print the minimum instead of the maximum")
	addStageFlags(cmd)

	return cmd
}

func runSize(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	kind := models.SizeMax
	if useMin, _ := cmd.Flags().GetBool("min"); useMin {
		kind = models.SizeMin
	}

	log := logger.NewConsoleLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	stage := newStage(cfg)
	engine := newEngine(cfg, stage, newInvoker(cfg, log))

	value, err := engine.GetSize(cmd.Context(), models.SizeQuery{FileName: args[0], Kind: kind})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}
