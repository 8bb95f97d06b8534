package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

const lockAgent = `SELECT * FROM "agents" WHERE id = $1 FOR UPDATE`

func traceLock(l gormlogger.Interface, ctx context.Context, elapsed time.Duration, err error) {
	l.Trace(ctx, time.Now().Add(-elapsed), func() (string, int64) { return lockAgent, 1 }, err)
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), GormConfig{Level: gormlogger.Warn})

		traceLock(l, context.Background(), time.Millisecond, errors.New("deadlock detected"))

		logs := recorded.FilterMessage("sql error").All()
		require.Len(t, logs, 1)
		assert.Equal(t, "deadlock detected", logs[0].ContextMap()["error"])
		assert.Equal(t, "SELECT", logs[0].ContextMap()["op"])
	})

	t.Run("record not found is dropped unless asked for", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		traceLock(NewGormLogger(zap.New(core), GormConfig{Level: gormlogger.Info}),
			context.Background(), time.Millisecond, gormlogger.ErrRecordNotFound)
		assert.Equal(t, 0, recorded.Len())

		traceLock(NewGormLogger(zap.New(core), GormConfig{Level: gormlogger.Info, LogNotFound: true}),
			context.Background(), time.Millisecond, gormlogger.ErrRecordNotFound)
		assert.Equal(t, 1, recorded.FilterMessage("sql error").Len())
	})

	t.Run("slow lock wait", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), GormConfig{Level: gormlogger.Warn, SlowThreshold: 10 * time.Millisecond})

		traceLock(l, context.Background(), 50*time.Millisecond, nil)

		require.Equal(t, 1, recorded.Len())
		entry := recorded.All()[0]
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		assert.Equal(t, "slow sql", entry.Message)
	})

	t.Run("fast statement below info is skipped", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), GormConfig{Level: gormlogger.Warn, SlowThreshold: time.Second})

		traceLock(l, context.Background(), time.Millisecond, nil)
		assert.Equal(t, 0, recorded.Len())
	})

	t.Run("statement carries request id", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), GormConfig{Level: gormlogger.Info})
		ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-9")

		traceLock(l, ctx, time.Millisecond, nil)

		logs := recorded.FilterMessage("sql").All()
		require.Len(t, logs, 1)
		assert.Equal(t, "req-9", logs[0].ContextMap()["request_id"])
	})

	t.Run("silent", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), GormConfig{Level: gormlogger.Info}).LogMode(gormlogger.Silent)

		traceLock(l, context.Background(), time.Second, errors.New("x"))
		assert.Equal(t, 0, recorded.Len())
	})
}

func TestGormConfigFor(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, GormConfigFor("silent", 0).Level)
	assert.Equal(t, gormlogger.Error, GormConfigFor("error", 0).Level)
	assert.Equal(t, gormlogger.Info, GormConfigFor("DEBUG", 0).Level)
	assert.Equal(t, gormlogger.Warn, GormConfigFor("info", 0).Level)

	cfg := GormConfigFor("warn", 250*time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowThreshold)
	assert.False(t, cfg.LogNotFound)
}
