package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormReturnRecordRepository implements ReturnRecordRepository using GORM
type GormReturnRecordRepository struct {
	db *gorm.DB
}

// NewGormReturnRecordRepository creates a new GormReturnRecordRepository
func NewGormReturnRecordRepository(db *gorm.DB) *GormReturnRecordRepository {
	return &GormReturnRecordRepository{db: db}
}

// Create persists a return record
func (r *GormReturnRecordRepository) Create(ctx context.Context, record *settlement.ReturnRecord) error {
	return r.db.WithContext(ctx).Create(models.ReturnRecordModelFromDomain(record)).Error
}

// FindByOrder returns the records of an order
func (r *GormReturnRecordRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*settlement.ReturnRecord, error) {
	return r.find(r.db.WithContext(ctx).Where("order_id = ?", orderID))
}

// FindByOrders returns the records of several orders
func (r *GormReturnRecordRepository) FindByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]*settlement.ReturnRecord, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	return r.find(r.db.WithContext(ctx).Where("order_id IN ?", orderIDs))
}

func (r *GormReturnRecordRepository) find(query *gorm.DB) ([]*settlement.ReturnRecord, error) {
	var recordModels []models.ReturnRecordModel
	if err := query.Order("created_at ASC").Find(&recordModels).Error; err != nil {
		return nil, err
	}
	records := make([]*settlement.ReturnRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, nil
}

// Ensure GormReturnRecordRepository implements ReturnRecordRepository
var _ settlement.ReturnRecordRepository = (*GormReturnRecordRepository)(nil)
