package cache

import (
	"fmt"
	"io"
	"time"

	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ClosableBalanceCache is a BalanceCache that owns resources
type ClosableBalanceCache interface {
	appsettlement.BalanceCache
	io.Closer
}

// BalanceCacheFactory picks the balance cache backend from configuration
type BalanceCacheFactory struct {
	redisConfig           config.RedisConfig
	ttl                   time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// BalanceCacheFactoryOption is a functional option for configuring the factory
type BalanceCacheFactoryOption func(*BalanceCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) BalanceCacheFactoryOption {
	return func(f *BalanceCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory cache. Default is true.
func WithInMemoryFallback(allow bool) BalanceCacheFactoryOption {
	return func(f *BalanceCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewBalanceCacheFactory creates a new factory
func NewBalanceCacheFactory(cfg config.RedisConfig, ttl time.Duration, opts ...BalanceCacheFactoryOption) *BalanceCacheFactory {
	f := &BalanceCacheFactory{
		redisConfig:           cfg,
		ttl:                   ttl,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the Redis cache when enabled and reachable, otherwise the
// in-memory one
func (f *BalanceCacheFactory) Create() (ClosableBalanceCache, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("using in-memory balance cache")
		return NewInMemoryBalanceCache(f.ttl), nil
	}

	c, err := NewRedisBalanceCache(f.redisConfig, f.ttl)
	if err == nil {
		f.logger.Info("using Redis balance cache", zap.String("addr", f.redisConfig.Addr()))
		return c, nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis balance cache unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory balance cache. "+
		"Instances will not share invalidations.",
		zap.Error(err),
	)
	return NewInMemoryBalanceCache(f.ttl), nil
}
