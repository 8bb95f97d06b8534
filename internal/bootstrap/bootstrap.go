// Package bootstrap assembles the settlement service and its infrastructure
// from configuration. Both the HTTP server and ledgerctl start from here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/event"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// App is the wired settlement stack
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Database *persistence.Database
	Service  *appsettlement.SettlementService
	Exporter *appsettlement.LedgerExporter
	Cache    cache.ClosableBalanceCache
	Bus      *event.InMemoryEventBus
}

// New opens the database and wires the service with its cache, event bus,
// authorizer, metrics and export storage. meter may be nil.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, meter metric.Meter) (*App, error) {
	loc, err := cfg.Settlement.Location()
	if err != nil {
		return nil, fmt.Errorf("settlement timezone %q: %w", cfg.Settlement.Timezone, err)
	}

	gormLog := logger.NewGormLogger(log, logger.GormConfigFor(cfg.Log.Level, cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.Open(ctx, &cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: log, Database: db}

	if cfg.Telemetry.Enabled {
		if err := telemetry.InstrumentDB(db.DB, telemetry.DBConfig{
			Tracing:         cfg.Telemetry.DBTraceEnabled,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, meter, log); err != nil {
			_ = app.Close(ctx)
			return nil, err
		}
	}

	seq, err := persistence.NewSnowflakeSequencer(cfg.Settlement.NodeID)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.Service = appsettlement.NewSettlementService(
		persistence.NewGormTransactionScope(db.DB, seq),
		persistence.NewGormSettlementRepositories(db.DB, seq),
		appsettlement.ServiceConfig{Location: loc},
		log.Named("settlement"),
	)
	app.Service.SetAuthorizer(auth.ClaimsAuthorizer{})

	app.Cache, err = cache.NewBalanceCacheFactory(cfg.Redis, cfg.Settlement.BalanceCacheTTL,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(true),
	).Create()
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.Service.SetBalanceCache(app.Cache)

	app.Bus = event.NewInMemoryEventBus(log.Named("events"))
	app.Bus.Subscribe(appsettlement.NewBalanceCacheInvalidator(app.Cache, log), settlement.EventTypeAgentLedgerChanged)
	if err := app.Bus.Start(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.Service.SetEventPublisher(app.Bus)

	if meter != nil {
		metrics, err := telemetry.NewSettlementMetrics(meter)
		if err != nil {
			_ = app.Close(ctx)
			return nil, err
		}
		app.Service.SetMetrics(metrics)
	}

	store, err := newObjectStore(ctx, cfg, log)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.Exporter = appsettlement.NewLedgerExporter(app.Service, store, cfg.Storage.Prefix, log.Named("export"))

	return app, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (appsettlement.ObjectStore, error) {
	if !cfg.Storage.Enabled {
		log.Warn("object storage disabled, ledger exports are kept in memory")
		return storage.NewMemoryObjectStorage(), nil
	}
	s3, err := storage.NewS3ObjectStorage(&cfg.Storage,
		storage.WithLogger(log),
		storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
	)
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3, nil
}

// Ping checks the database
func (a *App) Ping(ctx context.Context) error {
	return a.Database.Ping(ctx)
}

// Close releases everything New acquired
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Bus != nil {
		errs = append(errs, a.Bus.Stop(ctx))
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Database != nil {
		errs = append(errs, a.Database.Close())
	}
	return errors.Join(errs...)
}
