package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
)

type balanceEntry struct {
	value     appsettlement.CachedBalance
	expiresAt time.Time
}

// InMemoryBalanceCache is a process-local BalanceCache for single-instance
// deployments and tests. Expired entries are swept in the background.
type InMemoryBalanceCache struct {
	mu        sync.RWMutex
	entries   map[uuid.UUID]balanceEntry
	ttl       time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryBalanceCache creates the cache and starts its sweeper
func NewInMemoryBalanceCache(ttl time.Duration) *InMemoryBalanceCache {
	c := &InMemoryBalanceCache{
		entries:  make(map[uuid.UUID]balanceEntry),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.cleanupLoop()
	return c
}

// Get returns the cached balance if present and not expired
func (c *InMemoryBalanceCache) Get(_ context.Context, agentID uuid.UUID) (*appsettlement.CachedBalance, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[agentID]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	v := e.value
	return &v, true, nil
}

// Set stores a balance
func (c *InMemoryBalanceCache) Set(_ context.Context, agentID uuid.UUID, v appsettlement.CachedBalance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[agentID] = balanceEntry{value: v, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Invalidate drops an agent's entry
func (c *InMemoryBalanceCache) Invalidate(_ context.Context, agentID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, agentID)
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *InMemoryBalanceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *InMemoryBalanceCache) cleanupLoop() {
	defer c.wg.Done()

	interval := c.ttl
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopChan:
			return
		}
	}
}

func (c *InMemoryBalanceCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
		}
	}
}

// Close stops the sweeper
func (c *InMemoryBalanceCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
	return nil
}

var _ appsettlement.BalanceCache = (*InMemoryBalanceCache)(nil)
