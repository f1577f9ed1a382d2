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

	"github.com/starford/tasklink/internal/api"
	"github.com/starford/tasklink/internal/index"
	"github.com/starford/tasklink/internal/mcpserver"
	"github.com/starford/tasklink/internal/sse"
)

// Run starts the HTTP server, the vault watcher and the event stream.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	app.events = broker

	core, err := app.build(ctx)
	if err != nil {
		return err
	}
	defer core.Close()
	cfg, logger := core.Config, core.Logger

	if err := index.Sync(ctx, core.DB, core.Store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHandler(core, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("tasklink starting",
		slog.String("vault", cfg.Vault.Path),
		slog.String("list_id", core.ListID),
		slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := index.Watch(gCtx, core.DB, core.Store, cfg.Vault.Path, logger, broker.PublishNoteEvent); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

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

// newHandler assembles the HTTP surface: health probes at the root and the
// API with its event stream under /api.
func newHandler(core *Core, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, "ok")
	})
	// Ready once the index answers; the remote is not probed.
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if _, err := core.DB.Stats(req.Context()); err != nil {
			writeHealth(w, http.StatusServiceUnavailable, "index unavailable")
			return
		}
		writeHealth(w, http.StatusOK, "ok")
	})

	r.Mount("/api", api.NewRouter(core.Service, core.Config.Auth.AuthEnabled(), core.Config.Auth.Token, broker))
	return r
}

func writeHealth(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

// ServeMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	core, err := app.build(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	if err := index.Sync(ctx, core.DB, core.Store, core.Logger); err != nil {
		core.Logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	core.Logger.Info("MCP server starting on stdio")
	return mcpserver.New(core.Service, app.version).ServeStdio()
}
