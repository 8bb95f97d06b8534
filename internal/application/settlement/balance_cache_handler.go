package settlement

import (
	"context"
	"fmt"

	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// BalanceCacheInvalidator drops an agent's cached balance whenever its
// ledger changes
type BalanceCacheInvalidator struct {
	cache  BalanceCache
	logger *zap.Logger
}

// NewBalanceCacheInvalidator creates a new BalanceCacheInvalidator
func NewBalanceCacheInvalidator(cache BalanceCache, logger *zap.Logger) *BalanceCacheInvalidator {
	return &BalanceCacheInvalidator{cache: cache, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *BalanceCacheInvalidator) EventTypes() []string {
	return []string{settlement.EventTypeAgentLedgerChanged}
}

// Handle processes an AgentLedgerChangedEvent
func (h *BalanceCacheInvalidator) Handle(ctx context.Context, event shared.DomainEvent) error {
	changed, ok := event.(*settlement.AgentLedgerChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			settlement.EventTypeAgentLedgerChanged, event.EventType())
	}

	if err := h.cache.Invalidate(ctx, changed.AgentID); err != nil {
		h.logger.Error("failed to invalidate balance cache",
			zap.String("agent_id", changed.AgentID.String()),
			zap.Error(err))
		return err
	}

	h.logger.Debug("balance cache invalidated",
		zap.String("agent_id", changed.AgentID.String()),
		zap.String("operation", changed.Operation))
	return nil
}

// Ensure BalanceCacheInvalidator implements EventHandler
var _ shared.EventHandler = (*BalanceCacheInvalidator)(nil)
