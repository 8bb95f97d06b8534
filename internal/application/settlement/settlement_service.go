package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ServiceConfig holds the settings the settlement service needs
type ServiceConfig struct {
	// Location is the business timezone used to turn instants into
	// attribution days. Defaults to UTC.
	Location *time.Location
	// Now overrides the clock, mainly for tests
	Now func() time.Time
}

// SettlementService runs every operation that touches an agent's ledger.
// Writes happen inside one TransactionScope.Execute call that locks the
// agent row first; reads go straight to the repositories.
type SettlementService struct {
	scope          TransactionScope
	repos          TransactionalRepositories
	loc            *time.Location
	now            func() time.Time
	logger         *zap.Logger
	eventPublisher shared.EventPublisher
	authorizer     Authorizer
	balanceCache   BalanceCache
	metrics        MetricsRecorder
}

// NewSettlementService creates a new SettlementService. repos serves
// unlocked reads; scope serves writes.
func NewSettlementService(
	scope TransactionScope,
	repos TransactionalRepositories,
	cfg ServiceConfig,
	logger *zap.Logger,
) *SettlementService {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementService{
		scope:      scope,
		repos:      repos,
		loc:        loc,
		now:        now,
		logger:     logger,
		authorizer: denyAuthorizer,
		metrics:    noopMetrics{},
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *SettlementService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetAuthorizer sets the authorizer consulted by Settle. Without one,
// Settle is always refused.
func (s *SettlementService) SetAuthorizer(authorizer Authorizer) {
	if authorizer == nil {
		authorizer = denyAuthorizer
	}
	s.authorizer = authorizer
}

// SetBalanceCache enables cache-aside reads for all-time balances. The cache
// is invalidated through AgentLedgerChanged events, so a BalanceCacheInvalidator
// must be subscribed to the same publisher.
func (s *SettlementService) SetBalanceCache(cache BalanceCache) {
	s.balanceCache = cache
}

// SetMetrics sets the business metrics recorder
func (s *SettlementService) SetMetrics(recorder MetricsRecorder) {
	if recorder == nil {
		recorder = noopMetrics{}
	}
	s.metrics = recorder
}

// Location returns the business timezone
func (s *SettlementService) Location() *time.Location {
	return s.loc
}

// Today returns the current civil day in the business timezone
func (s *SettlementService) Today() time.Time {
	return settlement.DayOf(s.now(), s.loc)
}

type eventSource interface {
	TakeEvents() []shared.DomainEvent
}

// ledgerTx is the state of one locked per-agent operation
type ledgerTx struct {
	ctx      context.Context
	repos    TransactionalRepositories
	agent    *settlement.Agent
	now      time.Time
	dirty    bool
	appended []*settlement.LedgerEntry
	sources  []eventSource
}

// append persists an entry and marks the projection stale
func (tx *ledgerTx) append(entry *settlement.LedgerEntry) error {
	if err := tx.repos.Ledger().Append(tx.ctx, entry); err != nil {
		return err
	}
	tx.appended = append(tx.appended, entry)
	tx.dirty = true
	return nil
}

// track collects an aggregate whose events are published after commit
func (tx *ledgerTx) track(src eventSource) {
	tx.sources = append(tx.sources, src)
}

// lockOrder locks an order row and confirms it still belongs to expected.
// Must be called after the agent row is locked.
func (tx *ledgerTx) lockOrder(orderID uuid.UUID, expected *uuid.UUID) (*settlement.Order, error) {
	order, err := tx.repos.Orders().FindByIDForUpdate(tx.ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !sameAgent(order.AgentID, expected) {
		return nil, shared.NewDomainError("CONCURRENCY_CONFLICT", "Order was reassigned by another operation")
	}
	return order, nil
}

func sameAgent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// withAgent runs fn inside one transaction holding the agent's row lock.
// If fn changed the ledger, the agent projection is re-folded before commit.
// Domain events and metrics are emitted only after a successful commit.
func (s *SettlementService) withAgent(ctx context.Context, agentID uuid.UUID, operation string, fn func(tx *ledgerTx) error) (*ledgerTx, error) {
	return s.withResolvedAgent(ctx, operation, func(context.Context, TransactionalRepositories) (uuid.UUID, error) {
		return agentID, nil
	}, fn)
}

// withResolvedAgent is withAgent for operations that only know the order:
// resolve runs inside the transaction, before any lock, to find the agent.
func (s *SettlementService) withResolvedAgent(
	ctx context.Context,
	operation string,
	resolve func(ctx context.Context, repos TransactionalRepositories) (uuid.UUID, error),
	fn func(tx *ledgerTx) error,
) (*ledgerTx, error) {
	start := time.Now()
	var state *ledgerTx
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		agentID, err := resolve(ctx, repos)
		if err != nil {
			return err
		}
		agent, err := repos.Agents().FindByIDForUpdate(ctx, agentID)
		if err != nil {
			return err
		}
		state = &ledgerTx{
			ctx:   ctx,
			repos: repos,
			agent: agent,
			now:   s.now(),
		}
		if err := fn(state); err != nil {
			return err
		}
		if !state.dirty {
			return nil
		}
		return s.refreshProjection(ctx, repos, agent, operation)
	})
	s.metrics.RecordOperation(ctx, operation, time.Since(start), err)
	if err != nil {
		s.logFailure(operation, err)
		return nil, err
	}

	for _, e := range state.appended {
		s.metrics.RecordEntry(ctx, e.Type, e.Amount)
	}
	for _, src := range state.sources {
		s.publishDomainEvents(ctx, src)
	}
	s.publishDomainEvents(ctx, state.agent)
	return state, nil
}

// refreshProjection re-folds the agent's full ledger and stores the totals
func (s *SettlementService) refreshProjection(ctx context.Context, repos TransactionalRepositories, agent *settlement.Agent, operation string) error {
	entries, err := repos.Ledger().Query(ctx, agent.ID, settlement.LedgerQuery{})
	if err != nil {
		return err
	}
	agent.ApplyBalance(settlement.ComputeBalance(entries, nil), operation)
	return repos.Agents().UpdateProjection(ctx, agent)
}

// publishDomainEvents publishes and clears the pending events of src
func (s *SettlementService) publishDomainEvents(ctx context.Context, src eventSource) {
	if s.eventPublisher == nil {
		return
	}
	events := src.TakeEvents()
	if len(events) == 0 {
		return
	}
	// Publish errors are logged by the event bus, not propagated
	_ = s.eventPublisher.Publish(ctx, events...)
}

func (s *SettlementService) logFailure(operation string, err error) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		s.logger.Debug("settlement operation rejected",
			zap.String("operation", operation),
			zap.String("code", domainErr.Code),
			zap.String("reason", domainErr.Message))
		return
	}
	s.logger.Error("settlement operation failed",
		zap.String("operation", operation),
		zap.Error(err))
}
