package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// AggregateModel holds the columns shared by agents and orders. Version is
// compared on every save and bumped by one.
type AggregateModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	Version   int       `gorm:"not null;default:1"`
}

func (m *AggregateModel) toRoot(root *shared.BaseAggregateRoot) {
	root.ID = m.ID
	root.CreatedAt = m.CreatedAt
	root.UpdatedAt = m.UpdatedAt
	root.Version = m.Version
}

func (m *AggregateModel) fromRoot(root shared.BaseAggregateRoot) {
	m.ID = root.ID
	m.CreatedAt = root.CreatedAt
	m.UpdatedAt = root.UpdatedAt
	m.Version = root.Version
}
