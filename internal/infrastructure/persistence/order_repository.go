package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db  *gorm.DB
	seq Sequencer
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB, seq Sequencer) *GormOrderRepository {
	return &GormOrderRepository{db: db, seq: seq}
}

// Create persists a new order with its items and assigns its sequence number
func (r *GormOrderRepository) Create(ctx context.Context, order *settlement.Order) error {
	if order.SequenceNumber == 0 {
		order.SequenceNumber = r.seq.Next()
	}
	return r.db.WithContext(ctx).Create(models.OrderModelFromDomain(order)).Error
}

// FindByID finds an order with its items
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.Order, error) {
	return r.findOne(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds an order and locks its row
func (r *GormOrderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*settlement.Order, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormOrderRepository) findOne(db *gorm.DB, id uuid.UUID) (*settlement.Order, error) {
	var model models.OrderModel
	if err := db.Preload("Items", orderItemsByLine).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByAgentForUpdate locks and returns the agent's orders in the given statuses
func (r *GormOrderRepository) FindByAgentForUpdate(ctx context.Context, agentID uuid.UUID, statuses ...settlement.OrderStatus) ([]*settlement.Order, error) {
	query := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", orderItemsByLine).
		Where("agent_id = ?", agentID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	return r.find(query.Order("sequence_number ASC"))
}

// FindCarriedByAgent returns every order currently assigned to the agent or
// referenced by one of its ledger entries. The second set covers orders whose
// agent was cleared by a return without shipping.
func (r *GormOrderRepository) FindCarriedByAgent(ctx context.Context, agentID uuid.UUID) ([]*settlement.Order, error) {
	db := r.db.WithContext(ctx)
	entryOrders := db.Model(&models.LedgerEntryModel{}).
		Select("order_id").
		Where("agent_id = ? AND order_id IS NOT NULL", agentID)

	return r.find(db.Preload("Items", orderItemsByLine).
		Where("agent_id = ? OR id IN (?)", agentID, entryOrders).
		Order("sequence_number ASC"))
}

// FindAll lists orders with filtering
func (r *GormOrderRepository) FindAll(ctx context.Context, filter settlement.OrderFilter) ([]*settlement.Order, int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&models.OrderModel{})
	if filter.AgentID != nil {
		query = query.Where("agent_id = ?", *filter.AgentID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	order := orderClause(filter.SortBy, filter.SortOrder, OrderSortFields, "sequence_number", "DESC", "sequence_number")
	orders, err := r.find(query.Preload("Items", orderItemsByLine).Order(order))
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *GormOrderRepository) find(query *gorm.DB) ([]*settlement.Order, error) {
	var orderModels []models.OrderModel
	if err := query.Find(&orderModels).Error; err != nil {
		return nil, err
	}
	orders := make([]*settlement.Order, len(orderModels))
	for i := range orderModels {
		orders[i] = orderModels[i].ToDomain()
	}
	return orders, nil
}

// Save updates an order's mutable fields. Concurrent status edits resolve
// last-write-wins.
func (r *GormOrderRepository) Save(ctx context.Context, order *settlement.Order) error {
	model := models.OrderModelFromDomain(order)
	result := r.db.WithContext(ctx).Model(&models.OrderModel{}).
		Where("id = ?", order.ID).
		Updates(model.MutableColumns())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func orderItemsByLine(db *gorm.DB) *gorm.DB {
	return db.Order("line_no ASC")
}

// Ensure GormOrderRepository implements OrderRepository
var _ settlement.OrderRepository = (*GormOrderRepository)(nil)
