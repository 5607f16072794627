// cmd/service/main.go
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

	"golang.org/x/sync/errgroup"

	"addons-catalog/internal/api"
	"addons-catalog/internal/config"
	"addons-catalog/internal/git"
	"addons-catalog/internal/manifest"
	"addons-catalog/internal/snapshot"
	"addons-catalog/internal/store"
	"addons-catalog/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration and the repository map
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded", "version", cfg.Version)

	repos, err := config.LoadRepos(cfg.ReposFile)
	if err != nil {
		return fmt.Errorf("failed to load repository map: %w", err)
	}
	targets, err := syncer.BuildTargets(repos, cfg.Version, cfg.Only)
	if err != nil {
		return fmt.Errorf("failed to build target list: %w", err)
	}
	logger.Info("Repository targets resolved", "count", len(targets))

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Prepare and open the store, then bring the schema up to date
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store.EnsureLocal(cfg.StorePath(), cfg.BootstrapURL(), cfg.Clean, logger)

	st, err := store.Open(cfg.StorePath(), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("failed to run store migrations: %w", err)
	}
	logger.Info("Store ready", "path", cfg.StorePath())

	// 5. Run the ingestion batch
	gitClient := git.NewClient(cfg.GitBaseURL, cfg.GitToken, logger)
	extractor := manifest.NewExtractor(logger)
	result, err := syncer.New(st, gitClient, extractor, logger, cfg.CloneDir, targets).Run(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	logger.Info("Ingestion finished", "new_commits", result.NewCommits, "links", result.Links)

	// 6. Write the snapshot artifacts
	exporter := snapshot.NewExporter(cfg.SnapshotDir, cfg.Version, logger)
	if err := exporter.Export(result); err != nil {
		return fmt.Errorf("snapshot export failed: %w", err)
	}

	// 7. Optionally serve the catalog until shutdown
	if cfg.APIAddr == "" {
		return nil
	}
	return serveAPI(ctx, cfg.APIAddr, st, logger)
}

func serveAPI(ctx context.Context, addr string, st *store.Store, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(st, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Catalog API listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
