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

	"github.com/lysyi3m/feed-cascade/app/api"
	"github.com/lysyi3m/feed-cascade/app/cache"
	"github.com/lysyi3m/feed-cascade/app/cfg"
	"github.com/lysyi3m/feed-cascade/app/content"
	"github.com/lysyi3m/feed-cascade/app/database"
	"github.com/lysyi3m/feed-cascade/app/feed"
	"github.com/lysyi3m/feed-cascade/app/ingest"
	"github.com/lysyi3m/feed-cascade/app/metrics"
	"github.com/lysyi3m/feed-cascade/app/tasks"
)

func main() {
	appCfg, err := cfg.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	if err := run(appCfg); err != nil {
		slog.Error("Feed Cascade server failed", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Feed Cascade server", "version", appCfg.Version)

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	levels, err := feed.NewLevelLoader(appCfg.LevelsFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load cascade levels: %w", err)
	}
	slog.Info("Cascade levels loaded", "count", len(levels))

	repo := database.NewContentRepository(db)
	resultCache := cache.NewResultCache(appCfg.CacheCapacity)
	registry := metrics.NewRegistry(resultCache)

	builder := feed.NewBuilder(repo, resultCache, levels, feed.Config{
		CapFraction:     appCfg.CapFraction,
		Overfetch:       appCfg.Overfetch,
		CacheTTL:        appCfg.CacheTTL,
		QueryTimeout:    appCfg.QueryTimeout,
		BreakerFailures: appCfg.BreakerFailures,
		BreakerCooldown: appCfg.BreakerCooldown,
	})
	builder.SetRecorder(registry)

	importer := ingest.NewImporter(&http.Client{Timeout: ingest.DefaultFetchTimeout},
		ingest.NewParser(), repo, resultCache, appCfg.UserAgent)
	importer.SetMaxBodySize(appCfg.MaxFeedSize)

	imports := make([]tasks.ImportSource, 0, len(appCfg.ImportURLs))
	for _, url := range appCfg.ImportURLs {
		imports = append(imports, tasks.ImportSource{
			URL: url,
			Source: ingest.Source{
				Name:     url,
				Privacy:  content.PrivacyPublicHighlight,
				Promoted: true,
			},
		})
	}

	scheduler := tasks.NewScheduler(tasks.Config{
		WorkerCount:    appCfg.WorkerCount,
		Interval:       time.Duration(appCfg.SchedulerInterval) * time.Second,
		ImportInterval: appCfg.ImportInterval,
		Imports:        imports,
	}, resultCache, importer)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", appCfg.WorkerCount, "imports", len(imports))

	handler := api.NewHandler(builder, resultCache, repo, scheduler, registry.Handler(), api.Options{
		BaseUrl:           appCfg.BaseUrl,
		Version:           appCfg.Version,
		DefaultTargetSize: appCfg.DefaultTargetSize,
		MaxTargetSize:     appCfg.MaxTargetSize,
	})

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Feed Cascade server shutdown complete")
	return nil
}
