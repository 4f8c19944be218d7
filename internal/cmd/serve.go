package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harrison/filestage/internal/audit"
	"github.com/harrison/filestage/internal/config"
	"github.com/harrison/filestage/internal/filelock"
	"github.com/harrison/filestage/internal/logger"
	"github.com/harrison/filestage/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Run the HTTP service on the configured address.

Only one server may use a filestage home at a time; serve holds an exclusive
lock on <home>/filestage.lock until it exits. SIGINT and SIGTERM trigger a
graceful shutdown bounded by server.shutdown_timeout.

Examples:
  filestage serve
  filestage serve --addr 127.0.0.1:9000 --staging-dir /srv/stage
  filestage serve --log-dir ./logs --log-level debug`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default: :8000)")
	cmd.Flags().String("log-dir", "", "Directory for run logs (default: console only)")
	addStageFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, home, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	lock := filelock.NewFileLock(config.LockPath(home))
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("another filestage server is already using %s", home)
	}
	defer lock.Unlock()

	stage := newStage(cfg)
	if err := stage.Bootstrap(); err != nil {
		return err
	}
	log.LogInfo(fmt.Sprintf("staging root %s", stage.Root()))

	var recorder audit.Recorder
	if cfg.Audit.Enabled {
		store, err := openAudit(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
	}

	engine := newEngine(cfg, stage, newInvoker(cfg, log))
	srv, err := server.New(stage, engine, log, recorder, server.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		MaxLimit:       cfg.Server.MaxLimit,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx, ln, server.RunOptions{
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
}

// openAudit opens the audit store and prunes entries past audit.keep_days.
func openAudit(ctx context.Context, cfg *config.Config, log logger.Logger) (*audit.Store, error) {
	store, err := audit.NewStore(cfg.Audit.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	if cfg.Audit.KeepDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.Audit.KeepDays)
		removed, err := store.Prune(ctx, cutoff)
		if err != nil {
			log.LogWarn(fmt.Sprintf("audit prune failed: %v", err))
		} else if removed > 0 {
			log.LogInfo(fmt.Sprintf("pruned %d audit entries older than %d days", removed, cfg.Audit.KeepDays))
		}
	}
	return store, nil
}
