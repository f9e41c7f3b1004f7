package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/rpattn/opsdash/internal/bulkwrite"
	"github.com/rpattn/opsdash/internal/config"
	"github.com/rpattn/opsdash/internal/db"
	"github.com/rpattn/opsdash/internal/export"
	"github.com/rpattn/opsdash/internal/hotcache"
	"github.com/rpattn/opsdash/internal/ingestion"
	"github.com/rpattn/opsdash/internal/logging"
	"github.com/rpattn/opsdash/internal/repository"
	"github.com/rpattn/opsdash/internal/schema"
	"github.com/rpattn/opsdash/internal/settings"
)

// app holds the wired process dependencies shared by the subcommands.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	logFile  io.Closer
	manager  *db.Manager
	registry *schema.Registry
	service  *ingestion.Service
	exporter *export.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, logFile := logging.New(cfg.Log)

	manager := db.NewManager(cfg.Database, logger.With("component", "db"))
	store := settings.NewStore(repository.NewSettingsRepository(manager))

	registry := schema.NewRegistry(store)
	if err := registry.Load(ctx); err != nil {
		// Schemas fall back to the built-in defaults when the store is unreachable.
		logger.Warn("using default schemas", "error", err)
	}

	facts := repository.NewFactRepository(manager, logger.With("component", "repository"))
	logs := repository.NewIngestionLogRepository(manager)

	service := ingestion.NewService(facts, logs, registry, store, hotcache.New(), serviceOptions(cfg.Pipeline), logger.With("component", "ingestion"))

	return &app{
		cfg:      cfg,
		logger:   logger,
		logFile:  logFile,
		manager:  manager,
		registry: registry,
		service:  service,
		exporter: export.NewService(facts, registry, logger.With("component", "export")),
	}, nil
}

func serviceOptions(p config.PipelineConfig) ingestion.Options {
	return ingestion.Options{
		HotWindowDays:      p.HotWindowDays,
		DetectionThreshold: p.DetectionThreshold,
		HistoryRetention:   p.HistoryRetention,
		HeaderScanRows:     p.HeaderScanRows,
		Writer: bulkwrite.Options{
			InitialBatchSize: p.InitialBatchSize,
			MaxBatchSize:     p.MaxBatchSize,
			GrowthFactor:     p.GrowthFactor,
			Throttle:         p.Throttle,
			Cooldown:         p.Cooldown,
		},
	}
}

func (a *app) Close() {
	a.manager.Close()
	_ = a.logFile.Close()
}
