package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"costa-catalog/api"
	"costa-catalog/catalog"
	"costa-catalog/config"
	"costa-catalog/pipeline"
	"costa-catalog/scheduler"
	"costa-catalog/scraper/feed"
	"costa-catalog/services"
	"costa-catalog/storage"
	"costa-catalog/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := utils.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		return 1
	}
	logger.SetLevel(utils.ParseLevel(cfg.LogLevel))

	mode := "build"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	if mode != "build" && mode != "serve" {
		fmt.Fprintf(os.Stderr, "usage: %s [build|serve]\n", os.Args[0])
		return 2
	}

	feeds, err := config.LoadFeeds(cfg.FeedsFile)
	if err != nil {
		logger.Error("Failed to load feeds: %v", err)
		return 1
	}

	logger.Info("=== Costa catalog %s starting ===", mode)
	logger.Info("Config: %d feeds | concurrency: %d | feed timeout: %s | retries: %d | run timeout: %s",
		len(feeds), cfg.MaxConcurrency, cfg.FeedTimeout, cfg.MaxRetries, cfg.RunTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots, closeSnapshots, err := openSnapshotStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open snapshot store: %v", err)
		return 1
	}
	defer closeSnapshots()

	runner := pipeline.New(cfg, feeds, feed.New(cfg, snapshots, logger), logger)
	store := catalog.NewStore(runner, logger)
	seedFromDisk(store, cfg.CatalogJSONPath, logger)

	if mode == "serve" {
		return serve(ctx, cfg, store, logger)
	}
	return build(ctx, cfg, store, logger)
}

// build runs the pipeline once and writes every export. It fails only when
// the run failed and there is no previous catalog to fall back on.
func build(ctx context.Context, cfg *config.Config, store *catalog.Store, logger *utils.Logger) int {
	cat, err := store.Refresh(ctx)
	if err != nil && cat == nil {
		logger.Error("Build failed and no previous catalog exists: %v", err)
		return 1
	}
	if err != nil {
		logger.Warn("Build failed, keeping previous catalog from %s: %v",
			cat.GeneratedAt().Format(time.RFC3339), err)
	} else if err := writeExports(ctx, cfg, cat, logger); err != nil {
		logger.Error("Export failed: %v", err)
		return 1
	}

	insightSvc := services.NewInsightService(logger)
	report := cat.Report()
	insightSvc.Print(os.Stdout, insightSvc.Generate(cat.Properties(), cat.AllDevelopments()), &report)

	fmt.Printf("  Done. Catalog → %s", cfg.CatalogJSONPath)
	if cfg.CSVExport {
		fmt.Printf(" | CSV → %s", cfg.CSVOutputPath)
	}
	if cfg.PostgresEnabled() {
		fmt.Print(" | PostgreSQL (properties, developments, builders)")
	}
	fmt.Print("\n\n")
	return 0
}

func serve(ctx context.Context, cfg *config.Config, store *catalog.Store, logger *utils.Logger) int {
	gin.SetMode(cfg.GinMode)
	router := api.NewRouter(api.NewHandler(store, logger), cfg.CORSAllowedOrigins)

	sched := scheduler.New(exportingRefresher{store: store, cfg: cfg, logger: logger}, cfg.RefreshInterval, logger)
	if err := sched.Start(ctx, true); err != nil {
		logger.Error("Failed to start scheduler: %v", err)
		return 1
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("[api] Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("[api] Server failed: %v", err)
			return 1
		}
	}

	logger.Info("[api] Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("[api] Shutdown: %v", err)
		return 1
	}
	logger.Info("[api] Server stopped")
	return 0
}

// exportingRefresher persists every successfully refreshed catalog so a
// restart can seed from it.
type exportingRefresher struct {
	store  *catalog.Store
	cfg    *config.Config
	logger *utils.Logger
}

func (r exportingRefresher) Refresh(ctx context.Context) (*catalog.Catalog, error) {
	cat, err := r.store.Refresh(ctx)
	if err != nil {
		return cat, err
	}
	if err := writeExports(ctx, r.cfg, cat, r.logger); err != nil {
		r.logger.Error("Export after refresh failed: %v", err)
	}
	return cat, nil
}

func openSnapshotStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.SnapshotStore, func(), error) {
	if cfg.RedisURL != "" {
		rdb, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Feed snapshots: Redis")
		return storage.NewRedisSnapshotStore(rdb, "", 0), func() { _ = rdb.Close() }, nil
	}
	files, err := storage.NewFileSnapshotStore(cfg.SnapshotDir)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Feed snapshots: %s", cfg.SnapshotDir)
	return files, func() {}, nil
}

func seedFromDisk(store *catalog.Store, path string, logger *utils.Logger) {
	prev, err := storage.ReadCatalogJSON(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("No previous catalog at %s", path)
	case err != nil:
		logger.Warn("Ignoring unreadable previous catalog %s: %v", path, err)
	default:
		store.Seed(prev)
	}
}

type namedWriter struct {
	name string
	storage.CatalogWriter
}

// writeExports writes catalog.json, which must succeed, then the optional
// CSV and PostgreSQL exports, whose failures are only logged.
func writeExports(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, logger *utils.Logger) error {
	jsonWriter := storage.NewJSONWriter(cfg.CatalogJSONPath)
	if err := jsonWriter.Write(ctx, cat); err != nil {
		return fmt.Errorf("write %s: %w", cfg.CatalogJSONPath, err)
	}
	logger.Info("Catalog saved to %s", cfg.CatalogJSONPath)

	for _, w := range optionalWriters(cfg, logger) {
		if err := w.Write(ctx, cat); err != nil {
			logger.Error("%s export failed: %v", w.name, err)
		} else {
			logger.Info("%s export complete", w.name)
		}
		if err := w.Close(); err != nil {
			logger.Warn("%s close: %v", w.name, err)
		}
	}
	return nil
}

func optionalWriters(cfg *config.Config, logger *utils.Logger) []namedWriter {
	var out []namedWriter
	if cfg.CSVExport {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			logger.Error("Failed to create CSV writer: %v", err)
		} else {
			out = append(out, namedWriter{"CSV " + cfg.CSVOutputPath, csvWriter})
		}
	}
	if cfg.PostgresEnabled() {
		pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
		} else {
			out = append(out, namedWriter{"PostgreSQL", pgWriter})
		}
	}
	return out
}
