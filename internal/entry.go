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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/linkorder/internal/api"
	"github.com/starford/linkorder/internal/linkservice"
	"github.com/starford/linkorder/internal/mcpserver"
	"github.com/starford/linkorder/internal/seed"
	"github.com/starford/linkorder/internal/sse"
	"github.com/starford/linkorder/internal/storage"
	"github.com/starford/linkorder/internal/store"
)

// ErrGroupsNotContiguous is returned by RunCheck when at least one ordered
// group failed the audit.
var ErrGroupsNotContiguous = errors.New("ordered groups with broken indexes found")

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// services bundles what every command opens.
type services struct {
	store    *store.Store
	svc      *linkservice.Service
	importer *seed.Importer
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// openServices opens the database and the seed directory. notifier may be nil.
func openServices(cfg *Config, logger *slog.Logger, notifier linkservice.Notifier) (*services, error) {
	// Ensure seed directory exists.
	if err := os.MkdirAll(cfg.Seed.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create seed dir: %w", err)
	}

	files, err := storage.NewFS(cfg.Seed.Dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	st, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	svc := linkservice.NewService(st, notifier)
	return &services{
		store:    st,
		svc:      svc,
		importer: seed.NewImporter(svc, st, files, logger),
	}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("seed_dir", cfg.Seed.Dir),
		slog.Bool("seed_watch", cfg.Seed.Watch),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker; it also receives every committed link change.
	broker := sse.NewBroker(cfg.Events.GraphThrottle)
	defer broker.Close()

	deps, err := openServices(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer deps.store.Close()

	// Run initial seed import.
	if res, err := deps.importer.Sync(ctx); err != nil {
		logger.Warn("initial seed import failed", slog.String("error", err.Error()))
	} else if res.Files > 0 {
		logger.Info("initial seed import done", slog.Int("files", res.Files), slog.Int("links_created", res.LinksCreated))
	}

	apiRouter := api.NewRouter(deps.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, deps.importer)

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := deps.svc.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api; the SSE stream is /api/events.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start seed watcher with SSE callback.
	if cfg.Seed.Watch {
		g.Go(func() error {
			err := seed.Watch(gCtx, deps.importer, logger, func(path string, _ seed.Result) {
				broker.SeedImported(path)
			})
			if err != nil {
				logger.Error("seed watcher stopped", slog.String("error", err.Error()))
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

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	deps, err := openServices(app.config, logger, nil)
	if err != nil {
		return err
	}
	defer deps.store.Close()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(deps.svc, deps.importer).ServeStdio()
}

// RunSeed imports every changed seed file once and prints the counts.
func RunSeed(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	deps, err := openServices(app.config, logger, nil)
	if err != nil {
		return err
	}
	defer deps.store.Close()

	res, err := deps.importer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("seed import: %w", err)
	}
	return writeReport(app.output, res)
}

// RunCheck audits every ordered group and prints the reports. It returns
// ErrGroupsNotContiguous when any group failed.
func RunCheck(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	deps, err := openServices(app.config, logger, nil)
	if err != nil {
		return err
	}
	defer deps.store.Close()

	reports, err := deps.svc.CheckGroups(ctx)
	if err != nil {
		return fmt.Errorf("check groups: %w", err)
	}
	if err := writeReport(app.output, reports); err != nil {
		return err
	}

	failed := 0
	for _, r := range reports {
		if !r.OK() {
			failed++
			logger.Error("ordered group is not contiguous",
				slog.String("source_entity_id", r.SourceEntityID),
				slog.String("link_type_id", r.LinkTypeID),
				slog.String("problem", r.Problem))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d groups: %w", failed, len(reports), ErrGroupsNotContiguous)
	}
	return nil
}

func writeReport(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
