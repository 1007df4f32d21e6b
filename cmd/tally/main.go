package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aevon-lab/project-tally/internal/aggregation"
	"github.com/aevon-lab/project-tally/internal/config"
	"github.com/aevon-lab/project-tally/internal/core/storage"
	"github.com/aevon-lab/project-tally/internal/core/storage/memory"
	"github.com/aevon-lab/project-tally/internal/core/storage/postgres"
	"github.com/aevon-lab/project-tally/internal/ingestion"
	"github.com/aevon-lab/project-tally/internal/metrics"
	"github.com/aevon-lab/project-tally/internal/migrations"
	"github.com/aevon-lab/project-tally/internal/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"addr", cfg.Server.Addr(),
		"in_memory", cfg.Database.InMemory(),
		"necro_window", cfg.Aggregation.NecroWindow,
		"site_counters", cfg.Aggregation.SiteCounters)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Storage
	var (
		runner storage.TxRunner
		health server.HealthChecker
	)
	if cfg.Database.InMemory() {
		slog.Warn("No database.dsn configured, aggregates are kept in memory only")
		runner = memory.New()
	} else {
		dbAdapter, err := postgres.NewAdapter(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer dbAdapter.Close()

		if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}
		if err := dbAdapter.ValidateSchema(ctx); err != nil {
			slog.Error("Aggregate schema is not ready", "error", err)
			os.Exit(1)
		}
		runner, health = dbAdapter, dbAdapter
	}

	// 3. Initialize Engine
	window, err := cfg.Aggregation.Window()
	if err != nil {
		slog.Error("Invalid aggregation.necro_window", "error", err)
		os.Exit(1)
	}
	engine := aggregation.NewEngine(aggregation.Options{
		NecroWindow:  window,
		SiteCounters: cfg.Aggregation.SiteCounters,
	})
	dispatcher := aggregation.NewDispatcher(engine)

	// 4. Initialize Ingestion
	collector := metrics.New()
	ingestionSvc := ingestion.NewService(runner, dispatcher, collector, ingestion.RetryPolicy{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}, cfg.Server.MaxBodySizeMB)

	// 5. Initialize Server
	srv := server.New(cfg.Server.Addr(), health, cfg.Server.Mode, collector)
	ingestionSvc.RegisterRoutes(srv.Engine)

	// 6. Run until a signal arrives or the server fails.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}
	slog.Info("Shutdown complete")
}
