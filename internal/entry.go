// Package internal provides the main application initialization and
// runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/mkovach/fieldsync/internal/api"
	"github.com/mkovach/fieldsync/internal/index"
	"github.com/mkovach/fieldsync/internal/ledger"
	"github.com/mkovach/fieldsync/internal/orchestrator"
	"github.com/mkovach/fieldsync/internal/queue"
	"github.com/mkovach/fieldsync/internal/remote"
	"github.com/mkovach/fieldsync/internal/sse"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("remote_repo", cfg.Remote.Repo),
		slog.String("mirror_path", cfg.Mirror.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure local state directories exist.
	if err := os.MkdirAll(cfg.Mirror.Path, 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}

	mirror, err := remote.NewMirror(cfg.Mirror.Path)
	if err != nil {
		return fmt.Errorf("init mirror: %w", err)
	}

	q, err := queue.New(cfg.Queue.Path)
	if err != nil {
		return fmt.Errorf("init queue: %w", err)
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	contents := remote.NewContents(cfg.Remote.BaseURL, cfg.Remote.Repo, cfg.Remote.Branch, cfg.Remote.Token, cfg.Remote.Timeout())

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	tanks := ledger.New()
	svc := orchestrator.New(orchestrator.Config{
		Remote: contents,
		Prober: contents,
		Mirror: mirror,
		Queue:  q,
		Ledger: tanks,
		Logger: logger,
		Pace:   cfg.App.ReplayPace(),
		Notify: func(event string, data map[string]any) {
			broker.Publish(sse.Event{Type: event, Data: data})
		},
	})

	// Prime the session: pull remote state into the mirror and ledger,
	// then bring the index up to date. Both are best-effort; the app
	// still starts from whatever the mirror holds.
	if err := svc.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap failed", slog.String("error", err.Error()))
	}
	if err := index.Sync(ctx, db, mirror, logger); err != nil {
		logger.Warn("initial index sync failed", slog.String("error", err.Error()))
	}

	// Build API router.
	apiRouter := api.NewRouter(svc, db, tanks, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start mirror watcher with SSE callback; every mirror write (local
	// submissions and bootstrap fetches alike) flows into the index.
	g.Go(func() error {
		index.Watch(gCtx, db, mirror, logger, func(kind, path string) {
			broker.PublishEntryEvent(kind, path)
		})
		return nil
	})

	// Drain anything a previous session left in the offline queue.
	g.Go(func() error {
		if !svc.Online(gCtx) {
			return nil
		}
		for _, n := range svc.QueueDepths() {
			if n > 0 {
				logger.Info("replaying offline queue from previous session")
				svc.Replay(gCtx)
				break
			}
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
