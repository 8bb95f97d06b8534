package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/storefront/backend/internal/infrastructure/config"
)

func openMock(t *testing.T, cfg *config.DatabaseConfig, expect func(sqlmock.Sqlmock)) (*Database, sqlmock.Sqlmock, error) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	expect(mock)

	db, err := openWith(context.Background(),
		postgres.New(postgres.Config{Conn: conn, DriverName: "postgres"}),
		cfg,
		&gorm.Config{Logger: logger.Discard, SkipDefaultTransaction: true, DisableAutomaticPing: true},
	)
	return db, mock, err
}

func TestOpenWith_AppliesPoolLimits(t *testing.T) {
	cfg := &config.DatabaseConfig{Host: "db", DBName: "settlement", MaxOpenConns: 12, MaxIdleConns: 3, ConnMaxLifetime: 5}
	db, mock, err := openMock(t, cfg, func(m sqlmock.Sqlmock) { m.ExpectPing() })
	require.NoError(t, err)

	assert.Equal(t, 12, db.pool.Stats().MaxOpenConnections)

	mock.ExpectPing()
	assert.NoError(t, db.Ping(context.Background()))

	mock.ExpectClose()
	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenWith_PingFailureClosesPool(t *testing.T) {
	cfg := &config.DatabaseConfig{Host: "db", DBName: "settlement", MaxOpenConns: 1, MaxIdleConns: 1}
	_, mock, err := openMock(t, cfg, func(m sqlmock.Sqlmock) {
		m.ExpectPing().WillReturnError(errors.New("connection refused"))
		m.ExpectClose()
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping settlement database db/settlement")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_PingReportsOutage(t *testing.T) {
	db, mock, err := openMock(t, &config.DatabaseConfig{MaxOpenConns: 1, MaxIdleConns: 1}, func(m sqlmock.Sqlmock) { m.ExpectPing() })
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	assert.EqualError(t, db.Ping(context.Background()), "gone")
	assert.NoError(t, mock.ExpectationsWereMet())
}
