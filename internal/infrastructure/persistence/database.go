package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/storefront/backend/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database owns the GORM handle for the settlement store and its pool.
type Database struct {
	DB   *gorm.DB
	pool *sql.DB
}

// Open connects to PostgreSQL, applies the pool limits and pings. Writes
// never rely on GORM's implicit transaction; GormTransactionScope opens
// one per operation.
func Open(ctx context.Context, cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	if gormLogger == nil {
		gormLogger = logger.Discard
	}
	return openWith(ctx, postgres.Open(cfg.DSN()), cfg, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
}

func openWith(ctx context.Context, dialector gorm.Dialector, cfg *config.DatabaseConfig, gcfg *gorm.Config) (*Database, error) {
	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open settlement database: %w", err)
	}
	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("settlement database pool: %w", err)
	}

	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping settlement database %s/%s: %w", cfg.Host, cfg.DBName, err)
	}
	return &Database{DB: db, pool: pool}, nil
}

// Ping is the readiness probe used by /health.
func (d *Database) Ping(ctx context.Context) error {
	return d.pool.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.pool.Close()
}
