// Package internal provides the main application initialization and runtime logic.
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

	"github.com/starford/codex/internal/api"
	"github.com/starford/codex/internal/chain"
	"github.com/starford/codex/internal/ingest"
	"github.com/starford/codex/internal/scripture"
	"github.com/starford/codex/internal/sse"
	"github.com/starford/codex/internal/store"
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
		slog.String("notes_path", cfg.Notes.Path),
		slog.String("scriptures_path", cfg.Scriptures.Path),
		slog.String("artifacts_dir", cfg.Artifacts.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open the notes store.
	st, err := store.Open(cfg.Notes.Path)
	if err != nil {
		return fmt.Errorf("open notes store: %w", err)
	}
	defer st.Close()

	// Attach the scripture corpus when configured. The engine keeps
	// serving notes without it; only the passage operations need it.
	if cfg.Scriptures.Path != "" {
		if err := st.AttachScriptures(cfg.Scriptures.Path); err != nil {
			logger.Warn("scripture corpus unavailable",
				slog.String("path", cfg.Scriptures.Path),
				slog.String("error", err.Error()))
		}
	}
	reader := scripture.NewReader(st.DB())

	// Initial chain repair: complete pointers left null by imports or a
	// crash, without disturbing filled chains.
	if res, err := chain.Rebuild(ctx, st, chain.Options{OnlyMissing: true}); err != nil {
		logger.Warn("initial chain repair failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial chain repair done",
			slog.Int("notes_examined", res.NotesExamined),
			slog.Int("rows_updated", res.RowsUpdated),
			slog.Int("anomalies", len(res.Anomalies)))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build API handler and router.
	h := api.NewHandler(st, reader, broker.PublishOpEvent)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
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

	// Start the artifact ingest watcher when a directory is configured.
	if cfg.Artifacts.Dir != "" {
		ingestor := ingest.New(st, logger, broker.PublishOpEvent)
		g.Go(func() error {
			if err := ingestor.Sweep(gCtx, cfg.Artifacts.Dir); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("initial artifact sweep failed", slog.String("error", err.Error()))
			}
			return ingestor.Watch(gCtx, cfg.Artifacts.Dir)
		})
	}

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
