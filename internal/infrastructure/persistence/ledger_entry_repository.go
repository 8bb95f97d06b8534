package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormLedgerEntryRepository implements the append-only LedgerEntryRepository using GORM
type GormLedgerEntryRepository struct {
	db  *gorm.DB
	seq Sequencer
}

// NewGormLedgerEntryRepository creates a new GormLedgerEntryRepository
func NewGormLedgerEntryRepository(db *gorm.DB, seq Sequencer) *GormLedgerEntryRepository {
	return &GormLedgerEntryRepository{db: db, seq: seq}
}

// Append validates and inserts an entry
func (r *GormLedgerEntryRepository) Append(ctx context.Context, entry *settlement.LedgerEntry) error {
	if !valueobject.IsMoney(entry.Amount) {
		return shared.NewDomainError("VALIDATION_ERROR", "Ledger amount must be a finite value with at most 2 decimal places")
	}
	if !entry.Type.IsValid() {
		return shared.NewDomainError("VALIDATION_ERROR", "Invalid ledger entry type")
	}

	db := r.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.AgentModel{}).Where("id = ?", entry.AgentID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.NewDomainError("NOT_FOUND", "Agent not found")
	}

	if entry.Sequence == 0 {
		entry.Sequence = r.seq.Next()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return db.Create(models.LedgerEntryModelFromDomain(entry)).Error
}

// Query returns an agent's entries ordered by record time
func (r *GormLedgerEntryRepository) Query(ctx context.Context, agentID uuid.UUID, q settlement.LedgerQuery) ([]*settlement.LedgerEntry, error) {
	query := r.db.WithContext(ctx).Where("agent_id = ?", agentID)
	if q.Day != nil {
		query = query.Where("attribution_date = ?", settlement.NormalizeDay(*q.Day))
	}
	if len(q.Types) > 0 {
		query = query.Where("entry_type IN ?", q.Types)
	}
	if q.OrderID != nil {
		query = query.Where("order_id = ?", *q.OrderID)
	}
	return r.find(query.Order("created_at ASC, sequence ASC"))
}

// FindByOrder returns all entries tied to an order
func (r *GormLedgerEntryRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*settlement.LedgerEntry, error) {
	return r.find(r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, sequence ASC"))
}

// FindByDay returns every entry attributed to day, across agents
func (r *GormLedgerEntryRepository) FindByDay(ctx context.Context, day time.Time) ([]*settlement.LedgerEntry, error) {
	return r.find(r.db.WithContext(ctx).
		Where("attribution_date = ?", settlement.NormalizeDay(day)).
		Order("agent_id ASC, created_at ASC, sequence ASC"))
}

// List pages through entries with filtering, most recent first
func (r *GormLedgerEntryRepository) List(ctx context.Context, filter settlement.LedgerEntryFilter) ([]*settlement.LedgerEntry, int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&models.LedgerEntryModel{})
	if filter.AgentID != nil {
		query = query.Where("agent_id = ?", *filter.AgentID)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Type != nil {
		query = query.Where("entry_type = ?", *filter.Type)
	}
	if filter.DateFrom != nil {
		query = query.Where("attribution_date >= ?", settlement.NormalizeDay(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		query = query.Where("attribution_date <= ?", settlement.NormalizeDay(*filter.DateTo))
	}

	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	entries, err := r.find(query.Order("created_at DESC, sequence DESC"))
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ReattributeOrder moves every entry of an order to day
func (r *GormLedgerEntryRepository) ReattributeOrder(ctx context.Context, orderID uuid.UUID, day time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.LedgerEntryModel{}).
		Where("order_id = ?", orderID).
		Update("attribution_date", settlement.NormalizeDay(day))
	return result.RowsAffected, result.Error
}

// DeletePayments removes the agent's outstanding Payment entries
func (r *GormLedgerEntryRepository) DeletePayments(ctx context.Context, agentID uuid.UUID) (int64, decimal.Decimal, error) {
	db := r.db.WithContext(ctx)
	payments, err := r.find(db.Where("agent_id = ? AND entry_type = ?", agentID, settlement.EntryTypePayment))
	if err != nil {
		return 0, decimal.Zero, err
	}
	if len(payments) == 0 {
		return 0, decimal.Zero, nil
	}

	ids := make([]uuid.UUID, len(payments))
	sum := decimal.Zero
	for i, p := range payments {
		ids[i] = p.ID
		sum = sum.Add(p.Amount)
	}
	result := db.Where("id IN ?", ids).Delete(&models.LedgerEntryModel{})
	if result.Error != nil {
		return 0, decimal.Zero, result.Error
	}
	return result.RowsAffected, sum, nil
}

func (r *GormLedgerEntryRepository) find(query *gorm.DB) ([]*settlement.LedgerEntry, error) {
	var entryModels []models.LedgerEntryModel
	if err := query.Find(&entryModels).Error; err != nil {
		return nil, err
	}
	entries := make([]*settlement.LedgerEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = entryModels[i].ToDomain()
	}
	return entries, nil
}

// Ensure GormLedgerEntryRepository implements LedgerEntryRepository
var _ settlement.LedgerEntryRepository = (*GormLedgerEntryRepository)(nil)
