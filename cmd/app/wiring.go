package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mauv0809/energy-feeds/internal/ckan"
	"github.com/mauv0809/energy-feeds/internal/config"
	"github.com/mauv0809/energy-feeds/internal/db"
	"github.com/mauv0809/energy-feeds/internal/fetch"
	"github.com/mauv0809/energy-feeds/internal/handlers"
	"github.com/mauv0809/energy-feeds/internal/logging"
	"github.com/mauv0809/energy-feeds/internal/metrics"
	"github.com/mauv0809/energy-feeds/internal/ons"
	"github.com/mauv0809/energy-feeds/internal/pipeline"
)

// destination is what the pipeline and the system endpoints need from a store.
type destination interface {
	pipeline.Writer
	handlers.Store
}

// env is the shared setup of every command.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	getter *fetch.Client
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	return &env{
		cfg:    cfg,
		logger: logger,
		getter: fetch.New(cfg.Fetch(), logger),
	}, nil
}

// migrate provisions the destination relations.
func (e *env) migrate(ctx context.Context) error {
	dsn := e.cfg.DatabaseURL
	if e.cfg.Store == db.StoreSQLite {
		dsn = e.cfg.SQLitePath
	}
	sqlDB, err := db.OpenMigrationDB(e.cfg.Store, dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return db.Migrate(ctx, sqlDB, e.cfg.Store, e.logger)
}

// openStore migrates and opens the configured destination.
func (e *env) openStore(ctx context.Context) (destination, func(), error) {
	if e.cfg.Store == db.StoreSQLite {
		s, err := db.OpenSQLite(e.cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, s.DB(), db.StoreSQLite, e.logger); err != nil {
			s.Close()
			return nil, nil, err
		}
		e.logger.Info("sqlite store ready", slog.String("path", e.cfg.SQLitePath))
		return s, func() { s.Close() }, nil
	}

	if err := e.migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("migrating: %w", err)
	}
	// One connection per concurrent unit in each of the two pipelines.
	pool, err := db.Connect(ctx, e.cfg.DatabaseURL, int32(2*e.cfg.Workers+1))
	if err != nil {
		return nil, nil, err
	}
	e.logger.Info("connected to database")
	return db.NewRepository(pool), pool.Close, nil
}

func (e *env) portal(institution string) (*ckan.Client, error) {
	host, err := e.cfg.PortalHost(institution)
	if err != nil {
		return nil, err
	}
	return ckan.New(e.getter, host, e.cfg.PageSize, e.logger), nil
}

func (e *env) orchestrator(store pipeline.Writer, reg prometheus.Registerer) *pipeline.Orchestrator {
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	return pipeline.NewOrchestrator(
		ons.New(e.getter, e.cfg.ONSBase, e.logger),
		ckan.New(e.getter, e.cfg.CCEEHost, e.cfg.PageSize, e.logger),
		store,
		pipeline.Options{Workers: e.cfg.Workers, Metrics: m, Logger: e.logger},
	)
}
