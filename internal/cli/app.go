package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devrev/bqsync/internal/cache"
	"github.com/devrev/bqsync/internal/config"
	"github.com/devrev/bqsync/internal/handler"
	"github.com/devrev/bqsync/internal/health"
	"github.com/devrev/bqsync/internal/metrics"
	"github.com/devrev/bqsync/internal/service"
	"github.com/devrev/bqsync/internal/store"
	"github.com/devrev/bqsync/internal/warehouse"
)

const healthCheckTimeout = 5 * time.Second

// App holds the constructed client handles and services for one process
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Syncer   handler.Syncer
	Explorer handler.Explorer
	Health   *health.HealthChecker

	closers []func() error
}

// Bootstrap builds an App from configuration
type Bootstrap func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error)

// NewApp connects to the warehouse, the relational store and the cache backend.
// Every handle opened before a failure is closed again.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewMetrics(nil),
		Health:  health.NewHealthChecker(healthCheckTimeout, logger),
	}
	ready := false
	defer func() {
		if !ready {
			app.Close()
		}
	}()

	executor, err := warehouse.NewBigQueryExecutor(ctx, warehouse.BigQueryOptions{
		ProjectID:       cfg.Warehouse.ProjectID,
		CredentialsFile: cfg.Warehouse.CredentialsFile,
		Location:        cfg.Warehouse.Location,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create warehouse client: %w", err)
	}
	app.closers = append(app.closers, executor.Close)

	relational, err := store.NewPostgresRelationalStore(ctx, store.PostgresOptions{
		URL:             cfg.Database.URL,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.closers = append(app.closers, func() error {
		relational.Close()
		return nil
	})

	var resultCache *cache.ResultCache
	if cfg.Cache.Enabled {
		kv, err := newKVStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, kv.Close)
		app.Health.Register(cfg.Cache.Backend, kv.Ping)

		resultCache = cache.NewResultCache(kv, cache.Options{
			DefaultTTL:         cfg.Cache.DefaultTTL,
			KeyPrefix:          cfg.Cache.KeyPrefix,
			FingerprintContent: cfg.Cache.FingerprintContent,
		}, app.Metrics, logger)
	}

	warehouseService := service.NewWarehouseService(executor, resultCache, cfg.Cache.DefaultTTL, app.Metrics, logger)
	app.Explorer = warehouseService
	app.Syncer = service.NewSyncService(executor, relational, cfg.Sync.ChunkSize, app.Metrics, logger)

	app.Health.Register(health.CheckWarehouse, warehouseService.Health)
	app.Health.Register("postgres", relational.Ping)

	ready = true
	return app, nil
}

func newKVStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.KeyValueStore, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		return store.NewMemoryKVStore(cfg.Cache.MemoryMaxEntries, cfg.Cache.MemoryCleanup, nil, logger), nil
	case config.CacheBackendRedis:
		kv, err := store.NewRedisKVStore(ctx, store.RedisOptions{
			URL:          cfg.Redis.URL,
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxRetries:   cfg.Redis.MaxRetries,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to cache: %w", err)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Close releases every handle in reverse order of creation
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("Failed to close client", zap.Error(err))
		}
	}
	a.closers = nil
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	// stdout carries command output
	zapCfg.OutputPaths = []string{"stderr"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
