package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/lectern-app/taskd/config"
	"github.com/lectern-app/taskd/server"
	authmem "github.com/lectern-app/taskd/server/auth/memory"
	"github.com/lectern-app/taskd/storage"
	"github.com/lectern-app/taskd/storage/memory"
	"github.com/lectern-app/taskd/storage/postgres"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "taskd.yaml", "Path to the YAML config file")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("taskd starting", "listen", cfg.Listen, "config", configPath)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	tokens := authmem.New(authmem.WithLogger(logger))
	for _, t := range cfg.Tokens {
		tokens.AddToken(t.Token, t.UserID)
	}

	srv, err := server.New(store, tokens, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if cfg.DigestCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.DigestCron, func() { logDigest(ctx, store, logger) }); err != nil {
			return fmt.Errorf("digest schedule %q: %w", cfg.DigestCron, err)
		}
		c.Start()
		defer c.Stop()
		logger.Info("due-today digest scheduled", "cron", cfg.DigestCron)
	}

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// newStore picks the Postgres store when a database URL is configured,
// the in-memory store otherwise.
func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database_url configured, using in-memory store")
		return memory.New(memory.WithLogger(logger)), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	store := postgres.New(pool, postgres.WithLogger(logger))
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

// logDigest emits one log line summarizing how much is due today. Pure
// observation; it never advances or mutates any series.
func logDigest(ctx context.Context, store storage.Storage, logger *slog.Logger) {
	dueToday, err := store.ListTasks(ctx, storage.ListFilter{Status: "due_today"})
	if err != nil {
		logger.Error("digest query failed", "error", err)
		return
	}
	overdue, err := store.ListTasks(ctx, storage.ListFilter{Status: "overdue"})
	if err != nil {
		logger.Error("digest query failed", "error", err)
		return
	}
	logger.Info("daily digest", "due_today", len(dueToday), "overdue", len(overdue))
}
