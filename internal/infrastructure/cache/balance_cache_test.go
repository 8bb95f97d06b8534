package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBalance() appsettlement.CachedBalance {
	return appsettlement.CachedBalance{
		Version: 3,
		Balance: settlement.Balance{
			Owed:       decimal.RequireFromString("110.00"),
			Receivable: decimal.RequireFromString("110.00"),
			EntryCount: 1,
		},
	}
}

func TestInMemoryBalanceCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss then hit", func(t *testing.T) {
		c := NewInMemoryBalanceCache(time.Minute)
		defer c.Close()
		id := uuid.New()

		_, ok, err := c.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Set(ctx, id, sampleBalance()))
		got, ok, err := c.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 3, got.Version)
		assert.True(t, got.Balance.Receivable.Equal(decimal.RequireFromString("110")))
	})

	t.Run("returned balance is a copy", func(t *testing.T) {
		c := NewInMemoryBalanceCache(time.Minute)
		defer c.Close()
		id := uuid.New()
		require.NoError(t, c.Set(ctx, id, sampleBalance()))

		got, _, _ := c.Get(ctx, id)
		got.Balance.Receivable = decimal.Zero

		again, _, _ := c.Get(ctx, id)
		assert.False(t, again.Balance.Receivable.IsZero())
	})

	t.Run("invalidate", func(t *testing.T) {
		c := NewInMemoryBalanceCache(time.Minute)
		defer c.Close()
		id := uuid.New()
		require.NoError(t, c.Set(ctx, id, sampleBalance()))
		require.NoError(t, c.Invalidate(ctx, id))

		_, ok, _ := c.Get(ctx, id)
		assert.False(t, ok)
	})

	t.Run("expired entries miss and are swept", func(t *testing.T) {
		c := NewInMemoryBalanceCache(time.Minute)
		defer c.Close()
		base := time.Now()
		c.now = func() time.Time { return base }
		id := uuid.New()
		require.NoError(t, c.Set(ctx, id, sampleBalance()))

		c.now = func() time.Time { return base.Add(2 * time.Minute) }
		_, ok, _ := c.Get(ctx, id)
		assert.False(t, ok)

		c.sweep()
		assert.Equal(t, 0, c.Len())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		c := NewInMemoryBalanceCache(time.Minute)
		assert.NoError(t, c.Close())
		assert.NoError(t, c.Close())
	})
}

func TestRedisBalanceCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisBalanceCacheWithClient(client, "", time.Minute)
	defer c.Close()

	assert.Equal(t, "settlement:balance:"+uuid.Nil.String(), c.key(uuid.Nil))

	_, ok, err := c.Get(context.Background(), uuid.New())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "failed to read balance cache")
	assert.ErrorContains(t, c.Set(context.Background(), uuid.New(), sampleBalance()), "failed to write balance cache")
}

func TestBalanceCacheFactory(t *testing.T) {
	t.Run("redis disabled uses memory", func(t *testing.T) {
		c, err := NewBalanceCacheFactory(config.RedisConfig{Enabled: false}, time.Minute).Create()
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryBalanceCache{}, c)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		c, err := NewBalanceCacheFactory(cfg, time.Minute).Create()
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryBalanceCache{}, c)
	})

	t.Run("unreachable redis without fallback fails", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		_, err := NewBalanceCacheFactory(cfg, time.Minute, WithInMemoryFallback(false)).Create()
		assert.Error(t, err)
	})
}
