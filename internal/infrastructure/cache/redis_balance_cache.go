package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/infrastructure/config"
)

const defaultBalanceKeyPrefix = "settlement:balance:"

// RedisBalanceCache keeps all-time agent balances in Redis so every
// instance sees the same invalidations
type RedisBalanceCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisBalanceCache connects to Redis and verifies the connection
func NewRedisBalanceCache(cfg config.RedisConfig, ttl time.Duration) (*RedisBalanceCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisBalanceCacheWithClient(client, "", ttl), nil
}

// NewRedisBalanceCacheWithClient wraps an existing client
func NewRedisBalanceCacheWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisBalanceCache {
	if keyPrefix == "" {
		keyPrefix = defaultBalanceKeyPrefix
	}
	return &RedisBalanceCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (c *RedisBalanceCache) key(agentID uuid.UUID) string {
	return c.keyPrefix + agentID.String()
}

// Get returns the cached balance, ok=false on a miss
func (c *RedisBalanceCache) Get(ctx context.Context, agentID uuid.UUID) (*appsettlement.CachedBalance, bool, error) {
	raw, err := c.client.Get(ctx, c.key(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read balance cache: %w", err)
	}

	var v appsettlement.CachedBalance
	if err := json.Unmarshal(raw, &v); err != nil || v.Version == 0 {
		// A value written by an older layout is treated as a miss
		_ = c.client.Del(ctx, c.key(agentID)).Err()
		return nil, false, nil
	}
	return &v, true, nil
}

// Set stores the balance with the configured TTL
func (c *RedisBalanceCache) Set(ctx context.Context, agentID uuid.UUID, v appsettlement.CachedBalance) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode balance: %w", err)
	}
	if err := c.client.Set(ctx, c.key(agentID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write balance cache: %w", err)
	}
	return nil
}

// Invalidate drops the agent's cached balance
func (c *RedisBalanceCache) Invalidate(ctx context.Context, agentID uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(agentID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate balance cache: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisBalanceCache) Close() error {
	return c.client.Close()
}

var _ appsettlement.BalanceCache = (*RedisBalanceCache)(nil)
