package persistence

import (
	"context"

	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/domain/settlement"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Every repository handed to fn shares the same *gorm.DB transaction.
type GormTransactionScope struct {
	db  *gorm.DB
	seq Sequencer
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, seq Sequencer) *GormTransactionScope {
	return &GormTransactionScope{db: db, seq: seq}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appsettlement.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormSettlementRepositories(tx, s.seq))
	})
}

// GormSettlementRepositories bundles the settlement repositories over one
// *gorm.DB, which may be a transaction or the root pool.
type GormSettlementRepositories struct {
	db  *gorm.DB
	seq Sequencer
}

// NewGormSettlementRepositories creates repositories bound to db
func NewGormSettlementRepositories(db *gorm.DB, seq Sequencer) *GormSettlementRepositories {
	return &GormSettlementRepositories{db: db, seq: seq}
}

// Agents returns the agent repository scoped to db.
func (r *GormSettlementRepositories) Agents() settlement.AgentRepository {
	return NewGormAgentRepository(r.db)
}

// Orders returns the order repository scoped to db.
func (r *GormSettlementRepositories) Orders() settlement.OrderRepository {
	return NewGormOrderRepository(r.db, r.seq)
}

// Ledger returns the ledger entry repository scoped to db.
func (r *GormSettlementRepositories) Ledger() settlement.LedgerEntryRepository {
	return NewGormLedgerEntryRepository(r.db, r.seq)
}

// Returns returns the return record repository scoped to db.
func (r *GormSettlementRepositories) Returns() settlement.ReturnRecordRepository {
	return NewGormReturnRecordRepository(r.db)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appsettlement.TransactionScope = (*GormTransactionScope)(nil)

// Ensure GormSettlementRepositories implements TransactionalRepositories
var _ appsettlement.TransactionalRepositories = (*GormSettlementRepositories)(nil)
