// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/arbor/internal/api"
	"github.com/starford/arbor/internal/mcpserver"
	"github.com/starford/arbor/internal/sse"
	"github.com/starford/arbor/internal/store"
	"github.com/starford/arbor/internal/tree"
	"github.com/starford/arbor/internal/treeservice"
	"github.com/starford/arbor/internal/uistate"
	"github.com/starford/arbor/internal/watch"
)

// rowsThrottle bounds how often clients are told to re-read the visible rows.
const rowsThrottle = 250 * time.Millisecond

// pinger is a dependency checked by /health/ready.
type pinger interface {
	Ping(ctx context.Context) error
}

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

	// Stdout carries the MCP protocol in stdio mode, so logs go to stderr.
	var logOut io.Writer = os.Stdout
	if app.mcpMode {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("expansion_backend", cfg.Expansion.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	deps := map[string]pinger{"store": db}

	var expansion tree.ExpansionStore = db
	if cfg.Expansion.Backend == ExpansionBackendRedis {
		flags, err := uistate.NewRedisStore(cfg.Expansion.RedisURL, cfg.Expansion.Prefix)
		if err != nil {
			return fmt.Errorf("init expansion store: %w", err)
		}
		defer flags.Close()
		expansion = flags
		deps["redis"] = flags
	}

	keys, err := cfg.KeyMap()
	if err != nil {
		return fmt.Errorf("keys: %w", err)
	}

	broker := sse.NewBroker(rowsThrottle)
	defer broker.Close()

	svc := treeservice.New(db, expansion,
		treeservice.WithPublisher(broker),
		treeservice.WithLogger(logger),
		treeservice.WithKeyMap(keys),
	)
	if err := svc.Load(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	if app.mcpMode {
		logger.Info("Serving MCP over stdio")
		return mcpserver.New(svc).ServeStdio()
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", readyHandler(deps))

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload when another process writes the same SQLite file.
	if cfg.Watch.Enabled && cfg.Store.Driver == store.DriverSQLite {
		g.Go(func() error {
			err := watch.Watch(gCtx, db, watch.Options{
				DBPath:   sqlitePath(cfg.Store.DSN),
				Debounce: cfg.Watch.Debounce,
				Logger:   logger,
			}, func(rev int64) {
				svc.OnExternalChange(gCtx, rev)
			})
			if err != nil {
				logger.Warn("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
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

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// readyHandler reports 503 while any dependency fails its ping.
func readyHandler(deps map[string]pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unavailable"
				body[name] = err.Error()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// sqlitePath strips connection parameters from a sqlite3 DSN.
func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	return path
}
