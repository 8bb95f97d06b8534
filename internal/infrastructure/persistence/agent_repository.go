package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAgentRepository implements AgentRepository using GORM
type GormAgentRepository struct {
	db *gorm.DB
}

// NewGormAgentRepository creates a new GormAgentRepository
func NewGormAgentRepository(db *gorm.DB) *GormAgentRepository {
	return &GormAgentRepository{db: db}
}

// FindByID finds an agent by ID
func (r *GormAgentRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.Agent, error) {
	return r.findOne(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds an agent and locks its row (SELECT ... FOR UPDATE)
func (r *GormAgentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*settlement.Agent, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormAgentRepository) findOne(db *gorm.DB, id uuid.UUID) (*settlement.Agent, error) {
	var model models.AgentModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists agents with filtering
func (r *GormAgentRepository) FindAll(ctx context.Context, filter settlement.AgentFilter) ([]*settlement.Agent, int64, error) {
	var agentModels []models.AgentModel
	var total int64

	query := r.db.WithContext(ctx).Model(&models.AgentModel{})
	if filter.Search != "" {
		query = query.Where("name_key LIKE ? OR phone LIKE ?",
			"%"+settlement.NameKey(filter.Search)+"%", "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	order := orderClause(filter.SortBy, filter.SortOrder, AgentSortFields, "serial_number", "ASC", "serial_number")
	if err := query.Order(order).Find(&agentModels).Error; err != nil {
		return nil, 0, err
	}

	agents := make([]*settlement.Agent, len(agentModels))
	for i := range agentModels {
		agents[i] = agentModels[i].ToDomain()
	}
	return agents, total, nil
}

// ListIDs returns every agent ID
func (r *GormAgentRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.AgentModel{}).
		Order("serial_number ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ExistsBySerialNumber checks whether a serial number is taken
func (r *GormAgentRepository) ExistsBySerialNumber(ctx context.Context, serialNumber int) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.AgentModel{}).
		Where("serial_number = ?", serialNumber).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates an agent
func (r *GormAgentRepository) Save(ctx context.Context, agent *settlement.Agent) error {
	return r.db.WithContext(ctx).Save(models.AgentModelFromDomain(agent)).Error
}

// UpdateProjection writes only the cached ledger totals
func (r *GormAgentRepository) UpdateProjection(ctx context.Context, agent *settlement.Agent) error {
	result := r.db.WithContext(ctx).Model(&models.AgentModel{}).
		Where("id = ?", agent.ID).
		Updates(map[string]interface{}{
			"total_owed": agent.TotalOwed,
			"total_paid": agent.TotalPaid,
			"version":    agent.Version,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormAgentRepository implements AgentRepository
var _ settlement.AgentRepository = (*GormAgentRepository)(nil)
