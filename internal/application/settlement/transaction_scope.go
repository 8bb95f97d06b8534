package settlement

import (
	"context"

	"github.com/storefront/backend/internal/domain/settlement"
)

// TransactionScope provides transactional access to settlement repositories.
// Every settlement operation runs inside exactly one Execute call, so order
// state, ledger entries and the agent projection commit or roll back together.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all settlement repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// Lock order: an operation locks the agent row (Agents().FindByIDForUpdate)
// before any order row, which keeps concurrent operations on one agent from
// deadlocking.
type TransactionalRepositories interface {
	Agents() settlement.AgentRepository
	Orders() settlement.OrderRepository
	Ledger() settlement.LedgerEntryRepository
	Returns() settlement.ReturnRecordRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	repos TransactionalRepositories
}

// NewNoOpTransactionScope creates a NoOpTransactionScope over the given repositories.
func NewNoOpTransactionScope(repos TransactionalRepositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s.repos)
}

// Repositories is a plain TransactionalRepositories value
type Repositories struct {
	AgentRepo  settlement.AgentRepository
	OrderRepo  settlement.OrderRepository
	LedgerRepo settlement.LedgerEntryRepository
	ReturnRepo settlement.ReturnRecordRepository
}

// Agents returns the agent repository
func (r Repositories) Agents() settlement.AgentRepository { return r.AgentRepo }

// Orders returns the order repository
func (r Repositories) Orders() settlement.OrderRepository { return r.OrderRepo }

// Ledger returns the ledger entry repository
func (r Repositories) Ledger() settlement.LedgerEntryRepository { return r.LedgerRepo }

// Returns returns the return record repository
func (r Repositories) Returns() settlement.ReturnRecordRepository { return r.ReturnRepo }

// Ensure NoOpTransactionScope implements TransactionScope
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = Repositories{}
