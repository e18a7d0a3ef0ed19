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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"salesviz/internal/config"
	"salesviz/internal/handlers/backup"
	"salesviz/internal/handlers/charts"
	apphttp "salesviz/internal/http"
	"salesviz/internal/logging"
	"salesviz/internal/services/analyses"
	"salesviz/internal/services/coerce"
	"salesviz/internal/services/dataloader"
	"salesviz/internal/services/dataset"
	"salesviz/internal/services/metrics"
	"salesviz/internal/services/normalizer"
	"salesviz/internal/services/storage"
	"salesviz/internal/templates"
	"salesviz/internal/version"
)

var (
	cfg        *config.Config
	store      *storage.Storage
	loader     *dataloader.DataLoader
	handle     *dataset.Handle
	collectors *metrics.Collectors
	renderer   *templates.Renderer
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	info := version.Get()
	slog.Info("starting salesviz", "version", info.String(), "addr", cfg.ListenAddr, "data_dir", cfg.DataDirectory)
	if w := info.Warning(); w != "" {
		slog.Warn(w)
	}

	if err := SetupDependencies(cfg); err != nil {
		slog.Error("setup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Warm the cache; a failure here is reported again on every page.
	if _, err := handle.Load(ctx); err != nil {
		slog.Warn("initial dataset load failed", "error", err)
	}

	if err := serve(ctx, SetupRouter()); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// SetupDependencies builds the services from c and hands them to the
// handler packages.
func SetupDependencies(c *config.Config) error {
	cfg = c

	var err error
	store, err = storage.New(cfg.DataDirectory, storage.WithLogger(slog.Default().With("component", "storage")))
	if err != nil {
		return err
	}
	if store.IsEncrypted() {
		if cfg.Password == "" {
			slog.Warn("data directory is encrypted; set SALESVIZ_PASSWORD to unlock it")
		} else if err := store.Unlock(cfg.Password); err != nil {
			return fmt.Errorf("unlocking data directory: %w", err)
		}
	}

	order, err := coerce.ParseDateOrder(cfg.DateOrder)
	if err != nil {
		return err
	}
	parser := coerce.NewParser(order, cfg.Location())

	opts := analyses.DefaultOptions()
	opts.Parser = parser
	opts.TopN = cfg.TopN
	opts.BinWidth = cfg.BinWidth

	loader = dataloader.New(store, cfg.DataFilePath(), parser, dataloader.WithColumns(opts.Columns))
	collectors = metrics.NewCollectors()
	handle = dataset.NewHandle(loader, dataset.WithObserver(collectors.ObserveLoad))

	renderer, err = templates.New(templates.Files(), cfg.Debug)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	charts.Initialize(charts.Deps{
		Catalog:    analyses.Default(),
		Options:    opts,
		Handle:     handle,
		Loader:     loader,
		Store:      store,
		Summaries:  metrics.New(normalizer.FieldSpec{Columns: opts.Columns, Parser: parser}),
		Collectors: collectors,
		Renderer:   renderer,
	})
	backup.Initialize(store, func(ctx context.Context) error {
		_, err := handle.Reload(ctx)
		return err
	})
	return nil
}

// SetupRouter creates the router with all routes. SetupDependencies must
// have run first.
func SetupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apphttp.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/api/health", handleHealth)
	r.Get("/api/version", handleVersion)
	r.Handle("/metrics", collectors.Handler())

	charts.RegisterRoutes(r)
	backup.RegisterRoutes(r)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if ds, ok := handle.Current(); ok {
		status["dataset"] = ds.Source
		status["rows"] = ds.Len()
	}
	status["locked"] = store.IsEncrypted() && !store.IsUnlocked()
	apphttp.JSON(w, r, http.StatusOK, status)
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	apphttp.JSON(w, r, http.StatusOK, version.Get())
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down
// within cfg.ShutdownTimeout.
func serve(ctx context.Context, h http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  2 * cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}
