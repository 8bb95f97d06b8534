package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
)

// Authorizer gates irreversible operations. Implementations usually inspect
// the caller identity carried in ctx.
type Authorizer interface {
	AuthorizeSettle(ctx context.Context, agentID uuid.UUID) error
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, agentID uuid.UUID) error

// AuthorizeSettle calls f
func (f AuthorizerFunc) AuthorizeSettle(ctx context.Context, agentID uuid.UUID) error {
	return f(ctx, agentID)
}

// AllowAllAuthorizer permits every settlement. Use only for trusted callers.
var AllowAllAuthorizer = AuthorizerFunc(func(context.Context, uuid.UUID) error { return nil })

// denyAuthorizer is used when no authorizer is configured
var denyAuthorizer = AuthorizerFunc(func(context.Context, uuid.UUID) error {
	return shared.NewDomainError("FORBIDDEN", "Settlement requires authorization")
})

// CachedBalance is an all-time balance tagged with the agent version it
// was folded at. Every ledger change bumps the version, so an entry whose
// version differs from the agent row is stale.
type CachedBalance struct {
	Version int                `json:"version"`
	Balance settlement.Balance `json:"balance"`
}

// BalanceCache stores all-time balances for dashboard reads
type BalanceCache interface {
	Get(ctx context.Context, agentID uuid.UUID) (*CachedBalance, bool, error)
	Set(ctx context.Context, agentID uuid.UUID, entry CachedBalance) error
	Invalidate(ctx context.Context, agentID uuid.UUID) error
}

// MetricsRecorder receives business metrics for settlement operations
type MetricsRecorder interface {
	RecordOperation(ctx context.Context, operation string, duration time.Duration, err error)
	RecordEntry(ctx context.Context, entryType settlement.EntryType, amount decimal.Decimal)
}

type noopMetrics struct{}

func (noopMetrics) RecordOperation(context.Context, string, time.Duration, error)      {}
func (noopMetrics) RecordEntry(context.Context, settlement.EntryType, decimal.Decimal) {}

// Operation names, used for metrics labels and ledger-change events
const (
	OpAssignToAgent       = "assign_to_agent"
	OpAdjustAgentShipping = "adjust_agent_shipping"
	OpMarkDelivered       = "mark_delivered"
	OpRegisterReturn      = "register_return"
	OpRecordPayment       = "record_advance_payment"
	OpResetDelivered      = "reset_delivered"
	OpResetReturns        = "reset_returns"
	OpResetAdvance        = "reset_advance"
	OpSettle              = "settle"
	OpReschedule          = "reschedule"
	OpRebuildProjection   = "rebuild_projection"
)

func invalidDate(value string) error {
	return shared.NewDomainError("INVALID_DATE", "Invalid date "+value+", expected YYYY-MM-DD")
}

func invalidEntryType(value string) error {
	return shared.NewDomainError("VALIDATION_ERROR", "Unknown ledger entry type "+value)
}
