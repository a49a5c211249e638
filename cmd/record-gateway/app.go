package main

import (
	"context"
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/triage-ai/palisade/services/record_gateway/internal/command"
	"github.com/triage-ai/palisade/services/record_gateway/internal/config"
	"github.com/triage-ai/palisade/services/record_gateway/internal/dispatch"
	"github.com/triage-ai/palisade/services/record_gateway/internal/metrics"
	"github.com/triage-ai/palisade/services/record_gateway/internal/ratelimit"
	"github.com/triage-ai/palisade/services/record_gateway/internal/remote"
	"github.com/triage-ai/palisade/services/record_gateway/internal/storage"
	"go.uber.org/zap"
)

// app is the wired command pipeline shared by serve and call.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *prometheus.Registry
	limiter    *ratelimit.Limiter
	dispatcher *dispatch.Dispatcher
	writer     storage.EventWriter
	db         *sql.DB // nil without POSTGRES_DSN
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	m := metrics.MustNewMetrics(a.registry)

	var err error
	a.limiter, err = ratelimit.New(cfg.RateLimitPerSec, ratelimit.WithObserver(m))
	if err != nil {
		return nil, err
	}
	m.RegisterInFlight(a.limiter.InFlight)

	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL:  cfg.APIURL,
		BaseID:   cfg.BaseID,
		Token:    cfg.APIToken,
		Timeout:  cfg.RequestTimeout(),
		Limiter:  a.limiter,
		Observer: m,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	validator, err := command.NewValidator()
	if err != nil {
		return nil, err
	}
	collections, err := cfg.Collections()
	if err != nil {
		return nil, err
	}

	if cfg.PostgresDSN != "" {
		a.db, err = storage.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Warn("postgres connection failed", zap.Error(err))
			a.db = nil
		} else {
			logger.Info("postgres connected")
		}
	}
	a.writer = a.buildWriter(ctx)

	a.dispatcher, err = dispatch.New(dispatch.Config{
		Validator:   validator,
		Collections: collections,
		Gateway:     remote.NewGateway(client),
		Writer:      a.writer,
		Observer:    m,
		Logger:      logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// buildWriter picks the audit sink: ClickHouse, then Postgres, then the log.
func (a *app) buildWriter(ctx context.Context) storage.EventWriter {
	if a.cfg.ClickHouseDSN != "" {
		w, err := storage.NewClickHouseWriter(a.cfg.ClickHouseDSN, a.logger)
		if err == nil {
			a.logger.Info("clickhouse writer connected")
			return w
		}
		a.logger.Warn("clickhouse connection failed, falling back", zap.Error(err))
	}
	if a.db != nil {
		if err := storage.EnsurePostgresSchema(ctx, a.db); err != nil {
			a.logger.Warn("postgres schema setup failed, falling back to log writer", zap.Error(err))
		} else {
			a.logger.Info("postgres writer connected")
			return storage.NewPostgresWriter(a.db, a.logger)
		}
	}
	a.logger.Info("using log writer for command events")
	return storage.NewLogWriter(a.logger)
}

// Close flushes the audit writer, then releases the database.
func (a *app) Close() {
	if a.writer != nil {
		a.writer.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
