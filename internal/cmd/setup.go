package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/harrison/filestage/internal/config"
	"github.com/harrison/filestage/internal/extractor"
	"github.com/harrison/filestage/internal/logger"
	"github.com/harrison/filestage/internal/query"
	"github.com/harrison/filestage/internal/storage"
	"github.com/spf13/cobra"
)

// addStageFlags registers the flags shared by every command that touches
// the staging area or the scripts.
func addStageFlags(cmd *cobra.Command) {
	cmd.Flags().String("staging-dir", "", "Staging directory (default: temp)")
	cmd.Flags().String("script-dir", "", "Directory holding the extraction scripts (default: scripts)")
	cmd.Flags().String("timeout", "", "Per-script timeout, e.g. 30s (0 disables)")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
}

// loadConfig resolves the configuration for cmd and merges the flags it
// defines. Only flags the user actually set override other sources.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, home, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}

	changed := func(name string) *string {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			v := f.Value.String()
			return &v
		}
		return nil
	}

	var timeoutPtr *time.Duration
	if raw := changed("timeout"); raw != nil {
		timeout, err := time.ParseDuration(*raw)
		if err != nil {
			return nil, "", fmt.Errorf("invalid timeout format %q: %w", *raw, err)
		}
		timeoutPtr = &timeout
	}

	cfg.MergeWithFlags(changed("addr"), changed("staging-dir"), changed("script-dir"), changed("log-level"), changed("log-dir"), timeoutPtr)

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, home, nil
}

// newLogger builds the console logger on w plus, when log_dir is set, a
// file logger. The returned close func is never nil.
func newLogger(cfg *config.Config, w io.Writer) (logger.AccessLogger, func() error, error) {
	console := logger.NewConsoleLogger(w, cfg.LogLevel)
	if cfg.LogDir == "" {
		return console, func() error { return nil }, nil
	}

	file, err := logger.NewFileLoggerWithLevel(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("open log dir: %w", err)
	}
	return logger.NewMultiLogger(console, file), file.Close, nil
}

func newStage(cfg *config.Config) *storage.Stage {
	return storage.NewStage(cfg.Storage.StagingDir, storage.Options{
		Policy:      storage.NamePolicy{RequireNonEmpty: cfg.Storage.RequireNonEmptyName},
		SortListing: cfg.Storage.SortListing,
	})
}

func newInvoker(cfg *config.Config, log logger.Logger) *extractor.Invoker {
	inv := extractor.NewInvoker(cfg.Extractor.ScriptDir)
	inv.Interpreter = cfg.Extractor.Interpreter
	inv.Timeout = cfg.Extractor.Timeout
	inv.Scripts = map[extractor.Script]string{
		extractor.ScriptSize:  cfg.Extractor.Scripts.Size,
		extractor.ScriptOrder: cfg.Extractor.Scripts.Order,
		extractor.ScriptRange: cfg.Extractor.Scripts.Range,
	}
	inv.Logger = log
	return inv
}

func newEngine(cfg *config.Config, stage *storage.Stage, runner extractor.Runner) *query.Engine {
	return query.NewEngine(stage, runner,
		query.WithFlags(query.Flags{Min: cfg.Extractor.MinFlag, Desc: cfg.Extractor.DescFlag}),
		query.WithMaxLimit(cfg.Server.MaxLimit),
	)
}
