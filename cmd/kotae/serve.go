package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API. Documents already in ingest.data_dir are processed first.
With --watch (or watch.enabled in the config), files added to, changed in or removed
from the watched directories are processed as they change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "watch directories for changes (overrides watch.enabled)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()
	logger := s.logger

	if cmd.Flags().Changed("watch") {
		s.cfg.Watch.Enabled = serveWatch
		if serveWatch && len(s.cfg.Watch.Directories) == 0 {
			s.cfg.Watch.Directories = []string{s.cfg.Ingest.DataDir}
		}
	}
	logger.Info("config loaded",
		zap.String("config_path", s.configPath),
		zap.String("embedding_provider", s.cfg.Embedding.Provider),
		zap.Bool("watch", s.cfg.Watch.Enabled),
	)

	components, err := initializeComponents(s.cfg, logger, nil)
	if err != nil {
		return err
	}
	logger.Info("pipeline ready",
		zap.String("embedding_model", components.Embedder.Model()),
		zap.Int("dimensions", s.cfg.Embedding.Dimensions),
	)
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processDataDir(ctx, components, s.cfg.Ingest.DataDir, logger)

	if s.cfg.Watch.Enabled {
		w := watcher.New(s.cfg.Watch, components.Coordinator.AllowedExtensions(), components.Coordinator,
			watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer w.Stop()
		go w.SyncExisting()
	}

	srv := server.NewServer(components.ServerDeps(), *s.cfg, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// processDataDir runs every document already in dir through the pipeline. Documents
// processed by an earlier run are skipped.
func processDataDir(ctx context.Context, components *Components, dir string, logger *zap.Logger) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logger.Debug("no data directory to process", zap.String("dir", dir))
		return
	}
	results, err := components.Coordinator.ProcessDirectory(ctx, dir)
	if err != nil {
		logger.Warn("startup processing stopped", zap.String("dir", dir), zap.Error(err))
	}
	var completed, skipped, failed int
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case r.Status == models.StatusCompleted:
			completed++
		default:
			failed++
		}
	}
	logger.Info("startup processing finished",
		zap.String("dir", dir),
		zap.Int("completed", completed),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
}
