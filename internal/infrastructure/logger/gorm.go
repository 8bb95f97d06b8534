package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig tunes the GORM adapter.
type GormConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration // zero disables slow statement warnings
	LogNotFound   bool
}

// GormConfigFor derives the GORM settings from the application log level.
// Statements are only traced at debug; lock waits on agent rows surface as
// slow statements at warn.
func GormConfigFor(level string, slow time.Duration) GormConfig {
	cfg := GormConfig{SlowThreshold: slow}
	switch strings.ToLower(level) {
	case "silent":
		cfg.Level = gormlogger.Silent
	case "error", "fatal":
		cfg.Level = gormlogger.Error
	case "debug":
		cfg.Level = gormlogger.Info
	default:
		cfg.Level = gormlogger.Warn
	}
	return cfg
}

type gormLogger struct {
	log *zap.Logger
	cfg GormConfig
}

// NewGormLogger returns a gorm logger writing to l
func NewGormLogger(l *zap.Logger, cfg GormConfig) gormlogger.Interface {
	return &gormLogger{log: l.Named("gorm"), cfg: cfg}
}

func (g *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.cfg.Level = level
	return &cp
}

func (g *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if g.cfg.Level >= gormlogger.Info {
		withTrace(ctx, g.log).Info(fmt.Sprintf(msg, data...))
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if g.cfg.Level >= gormlogger.Warn {
		withTrace(ctx, g.log).Warn(fmt.Sprintf(msg, data...))
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if g.cfg.Level >= gormlogger.Error {
		withTrace(ctx, g.log).Error(fmt.Sprintf(msg, data...))
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.cfg.Level <= gormlogger.Silent {
		return
	}
	if err != nil && !g.cfg.LogNotFound && errors.Is(err, gormlogger.ErrRecordNotFound) {
		return
	}

	elapsed := time.Since(begin)
	slow := g.cfg.SlowThreshold > 0 && elapsed > g.cfg.SlowThreshold
	switch {
	case err != nil && g.cfg.Level >= gormlogger.Error:
	case slow && g.cfg.Level >= gormlogger.Warn:
	case g.cfg.Level >= gormlogger.Info:
	default:
		return
	}

	stmt, rows := fc()
	fields := []zap.Field{
		zap.String("op", statementVerb(stmt)),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
		zap.String("sql", stmt),
	}
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}

	log := withTrace(ctx, g.log)
	switch {
	case err != nil:
		log.Error("sql error", append(fields, zap.Error(err))...)
	case slow:
		log.Warn("slow sql", append(fields, zap.Duration("threshold", g.cfg.SlowThreshold))...)
	default:
		log.Debug("sql", fields...)
	}
}

func statementVerb(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, ' '); i > 0 {
		stmt = stmt[:i]
	}
	return strings.ToUpper(stmt)
}
