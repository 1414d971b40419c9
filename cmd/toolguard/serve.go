package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goutils "github.com/jkaninda/go-utils"
	"github.com/spf13/cobra"

	"github.com/jkaninda/toolguard/internal/observability"
	"github.com/jkaninda/toolguard/internal/storage"
)

var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ops server (health, readiness, metrics) and the audit retention job",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "override the ops server listen address (e.g. :9090)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	sc, err := setup()
	if err != nil {
		return err
	}
	defer sc.Cleanup()
	cfg, logger := sc.Config, sc.Logger

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Audit retention.
	if window := cfg.RetentionWindow(); window > 0 {
		if sc.Store == nil {
			logger.Warn("audit retention needs a database driver, skipping",
				slog.String("driver", cfg.Audit.Driver),
				slog.Bool("audit_enabled", cfg.Audit.Enabled),
			)
		} else {
			job, err := storage.NewRetention(sc.Store, window, cfg.PruneSchedule(), logger)
			if err != nil {
				return err
			}
			cancelRetention := job.Start(ctx)
			defer cancelRetention()
		}
	}

	addr := goutils.Env("TOOLGUARD_LISTEN_ADDR", cfg.Server.ListenAddr)
	if serveListenAddr != "" {
		addr = serveListenAddr
	}
	srv := observability.NewServer(observability.ServerConfig{ListenAddr: addr}, sc.Obs, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping ops server: %w", err)
	}
	return nil
}
