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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ecglabel/internal/annotation"
	"github.com/starford/ecglabel/internal/api"
	"github.com/starford/ecglabel/internal/index"
	"github.com/starford/ecglabel/internal/ingest"
	"github.com/starford/ecglabel/internal/mcpserver"
	"github.com/starford/ecglabel/internal/review"
	"github.com/starford/ecglabel/internal/session"
	"github.com/starford/ecglabel/internal/sse"
	"github.com/starford/ecglabel/internal/storage"
)

// runtime is everything a command needs, built from the configuration.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	db     *index.DB
	broker *sse.Broker
	svc    *review.Service
	// annotations is the store seen by the indexer.
	annotations *annotation.Store
}

func (rt *runtime) close() {
	rt.broker.Close()
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index", slog.String("error", err.Error()))
	}
}

// setup installs the logger and opens stores, index and broker.
func setup(ctx context.Context, opts ...Option) (*runtime, error) {
	app := newApplication(opts)

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("documents", location(cfg, cfg.Storage.Documents)),
		slog.String("annotations", location(cfg, cfg.Storage.Annotations)),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	docs, err := storage.Open(ctx, cfg.Storage.DocumentOptions())
	if err != nil {
		return nil, fmt.Errorf("init document store: %w", err)
	}
	anns, err := storage.Open(ctx, cfg.Storage.AnnotationOptions())
	if err != nil {
		return nil, fmt.Errorf("init annotation store: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	broker := sse.NewBroker(2 * time.Second)

	store := annotation.NewStore(anns,
		annotation.WithSaveHook(review.IndexHook(db, logger, broker.PublishAnnotationEvent)),
	)
	pipeline := ingest.New(docs,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithMaxBytes(cfg.Ingest.MaxUploadBytes),
		ingest.WithMaxBatchBytes(cfg.Ingest.MaxArchiveBytes),
		ingest.WithLogger(logger),
		ingest.WithIngestedCallback(broker.PublishIngested),
	)
	svc := review.NewService(docs, store, db, pipeline, session.NewRegistry(), logger)

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		broker:      broker,
		svc:         svc,
		annotations: store,
	}, nil
}

func location(cfg *Config, loc LocationConfig) string {
	if cfg.Storage.Backend == storage.BackendAzure {
		return cfg.Storage.Azure.Container + "/" + loc.Prefix
	}
	return loc.Path
}

// initialSync brings the index up to date; failures are logged, the index
// is derived data.
func (rt *runtime) initialSync(ctx context.Context) {
	res, err := index.Sync(ctx, rt.db, rt.annotations, rt.logger)
	if err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
		return
	}
	rt.logger.Info("index synced",
		slog.Int("indexed", res.Indexed),
		slog.Int("removed", res.Removed),
		slog.Int("skipped", res.Skipped))
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg, logger, broker := rt.cfg, rt.logger, rt.broker

	rt.initialSync(ctx)

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Ingest.MaxUploadBytes)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.svc.Stats(req.Context(), 1); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Follow records written by other processes. Blob containers have no
	// change feed, so the watcher only runs for the local backend.
	if cfg.Storage.Backend == storage.BackendLocal {
		dir, err := filepath.Abs(cfg.Storage.Annotations.Path)
		if err != nil {
			return fmt.Errorf("resolve annotations dir: %w", err)
		}
		g.Go(func() error {
			if err := index.Watch(gCtx, rt.db, rt.annotations, dir, logger, broker.PublishAnnotationEvent); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
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

		// Ends open SSE streams so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdio. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, commandOptions(opts)...)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.initialSync(ctx)

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc).ServeStdio()
}

// RunIngest stores local files (PDFs or zip archives) in the document store.
// Logs go to stderr.
func RunIngest(ctx context.Context, paths []string, opts ...Option) (ingest.Report, error) {
	rt, err := setup(ctx, commandOptions(opts)...)
	if err != nil {
		return ingest.Report{}, err
	}
	defer rt.close()

	items := make([]ingest.Item, 0, len(paths))
	var unread []ingest.Failure
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			unread = append(unread, ingest.Failure{Name: p, Reason: err.Error()})
			continue
		}
		items = append(items, ingest.Item{Name: filepath.Base(p), Data: data})
	}

	rep := rt.svc.Ingest(ctx, items)
	rep.Failed = append(unread, rep.Failed...)
	return rep, nil
}

// RunReindex reconciles the index with the annotation store once. Logs go to
// stderr.
func RunReindex(ctx context.Context, opts ...Option) (index.SyncResult, error) {
	rt, err := setup(ctx, commandOptions(opts)...)
	if err != nil {
		return index.SyncResult{}, err
	}
	defer rt.close()

	return rt.svc.Reindex(ctx)
}
