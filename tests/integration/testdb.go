// Package integration runs the settlement stack against a real PostgreSQL
// started with testcontainers and migrated with the embedded schema.
package integration

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/storefront/backend/internal/infrastructure/migration"
	"github.com/storefront/backend/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// settlementTables are emptied between tests, children first.
var settlementTables = []string{"return_records", "ledger_entries", "order_items", "orders", "agents"}

var pg struct {
	sync.Mutex
	container *tcpostgres.PostgresContainer
	dsn       string
}

// TestDB is a connection to the migrated settlement database
type TestDB struct {
	DB *gorm.DB
	t  *testing.T
}

// NewSharedTestDB returns a connection to the package container, starting
// and migrating it on first use.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration tests need docker")
	}

	dsn := startPostgres(t)
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 testGormLogger(),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	pool, err := db.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(20)
	t.Cleanup(func() { _ = pool.Close() })

	return &TestDB{DB: db, t: t}
}

func startPostgres(t *testing.T) string {
	pg.Lock()
	defer pg.Unlock()
	if pg.container != nil {
		return pg.dsn
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("settlement_test"),
		tcpostgres.WithUsername("settlement"),
		tcpostgres.WithPassword("settlement"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer pool.Close()
	m, err := migration.New(pool, migrations.FS, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Up(), "migrate settlement schema")

	pg.container, pg.dsn = container, dsn
	return dsn
}

func testGormLogger() logger.Interface {
	if os.Getenv("TEST_DB_DEBUG") != "" {
		return logger.Default.LogMode(logger.Info)
	}
	return logger.Discard
}

// TruncateAll empties the settlement tables
func (tdb *TestDB) TruncateAll() {
	tdb.t.Helper()
	stmt := "TRUNCATE TABLE " + strings.Join(settlementTables, ", ") + " RESTART IDENTITY CASCADE"
	require.NoError(tdb.t, tdb.DB.Exec(stmt).Error)
}

// CleanupSharedContainer stops the container; TestMain calls it after m.Run.
func CleanupSharedContainer() {
	pg.Lock()
	defer pg.Unlock()
	if pg.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = pg.container.Terminate(ctx)
	pg.container, pg.dsn = nil, ""
}
