// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/config"
	"github.com/Shivanand-hulikatti/orgevents/internal/database"
	"github.com/Shivanand-hulikatti/orgevents/internal/handler"
	"github.com/Shivanand-hulikatti/orgevents/internal/logging"
	"github.com/Shivanand-hulikatti/orgevents/internal/notify"
	"github.com/Shivanand-hulikatti/orgevents/internal/repository"
	"github.com/Shivanand-hulikatti/orgevents/internal/scheduler"
	"github.com/Shivanand-hulikatti/orgevents/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// ── 1. Choose the store ───────────────────────────────────────────────
	var (
		store repository.Store
		audit repository.AuditLog
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		logger.Info("connected to PostgreSQL", "host", cfg.Database.Host, "db", cfg.Database.DBName)
		store = repository.NewPostgresStore(pool)
		audit = repository.NewPostgresAuditLog(pool)
	default:
		logger.Warn("using in-memory store; state is lost on restart")
		store = repository.NewMemoryStore()
		audit = repository.NewMemoryAuditLog()
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	dispatcher := notify.NewDispatcher(context.WithoutCancel(ctx), cfg.NotifyWorkers, cfg.NotifyQueueDepth, notify.LogSender(logger), logger)
	defer dispatcher.Drain()

	eventSvc := service.NewEventService(store, audit,
		service.WithLogger(logger),
		service.WithNotifier(dispatcher),
	)
	eventHandler := handler.NewEventHandler(eventSvc)

	if cfg.ReminderInterval > 0 {
		runner := scheduler.NewRunner(store, eventSvc, cfg.ReminderInterval, logger)
		go runner.Start(ctx)
	}

	// ── 3. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(eventHandler, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
