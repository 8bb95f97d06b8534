package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/settlement"
	"gorm.io/datatypes"
)

// AgentModel is the persistence model for the Agent aggregate.
// TotalOwed and TotalPaid are a rebuildable projection of ledger_entries.
type AgentModel struct {
	AggregateModel
	Name         string          `gorm:"type:varchar(100);not null"`
	NameKey      string          `gorm:"type:varchar(100);not null;index:idx_agent_name_key"`
	Phone        string          `gorm:"type:varchar(50)"`
	SerialNumber int             `gorm:"not null;uniqueIndex:idx_agent_serial"`
	Active       bool            `gorm:"not null;default:true"`
	TotalOwed    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalPaid    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (AgentModel) TableName() string {
	return "agents"
}

// ToDomain converts the persistence model to a domain Agent
func (m *AgentModel) ToDomain() *settlement.Agent {
	a := &settlement.Agent{
		Name:         m.Name,
		NameKey:      m.NameKey,
		Phone:        m.Phone,
		SerialNumber: m.SerialNumber,
		Active:       m.Active,
		TotalOwed:    m.TotalOwed,
		TotalPaid:    m.TotalPaid,
	}
	m.toRoot(&a.BaseAggregateRoot)
	return a
}

// FromDomain populates the persistence model from a domain Agent
func (m *AgentModel) FromDomain(a *settlement.Agent) {
	m.fromRoot(a.BaseAggregateRoot)
	m.Name = a.Name
	m.NameKey = a.NameKey
	m.Phone = a.Phone
	m.SerialNumber = a.SerialNumber
	m.Active = a.Active
	m.TotalOwed = a.TotalOwed
	m.TotalPaid = a.TotalPaid
}

// AgentModelFromDomain creates a new persistence model from a domain Agent
func AgentModelFromDomain(a *settlement.Agent) *AgentModel {
	m := &AgentModel{}
	m.FromDomain(a)
	return m
}

// OrderModel is the persistence model for the Order aggregate
type OrderModel struct {
	AggregateModel
	SequenceNumber       int64                  `gorm:"not null;uniqueIndex:idx_order_sequence"`
	CustomerID           uuid.UUID              `gorm:"type:uuid;not null;index:idx_order_customer"`
	AgentID              *uuid.UUID             `gorm:"type:uuid;index:idx_order_agent_status,priority:1"`
	Status               settlement.OrderStatus `gorm:"type:varchar(40);not null;index:idx_order_agent_status,priority:2"`
	Discount             decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	CustomerChargeAmount decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	CustomerShippingCost decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	AgentShippingCost    decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	DeliveredAmount      decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	AssignedAt           *time.Time
	OriginalAssignedAt   *time.Time
	Items                []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *settlement.Order {
	o := &settlement.Order{
		SequenceNumber:       m.SequenceNumber,
		CustomerID:           m.CustomerID,
		AgentID:              m.AgentID,
		Status:               m.Status,
		Discount:             m.Discount,
		CustomerChargeAmount: m.CustomerChargeAmount,
		CustomerShippingCost: m.CustomerShippingCost,
		AgentShippingCost:    m.AgentShippingCost,
		DeliveredAmount:      m.DeliveredAmount,
		AssignedAt:           m.AssignedAt,
		OriginalAssignedAt:   m.OriginalAssignedAt,
		Items:                make([]settlement.OrderItem, len(m.Items)),
	}
	m.toRoot(&o.BaseAggregateRoot)
	for i, it := range m.Items {
		o.Items[i] = it.ToDomain()
	}
	return o
}

// FromDomain populates the persistence model from a domain Order
func (m *OrderModel) FromDomain(o *settlement.Order) {
	m.fromRoot(o.BaseAggregateRoot)
	m.SequenceNumber = o.SequenceNumber
	m.CustomerID = o.CustomerID
	m.AgentID = o.AgentID
	m.Status = o.Status
	m.Discount = o.Discount
	m.CustomerChargeAmount = o.CustomerChargeAmount
	m.CustomerShippingCost = o.CustomerShippingCost
	m.AgentShippingCost = o.AgentShippingCost
	m.DeliveredAmount = o.DeliveredAmount
	m.AssignedAt = o.AssignedAt
	m.OriginalAssignedAt = o.OriginalAssignedAt
	m.Items = make([]OrderItemModel, len(o.Items))
	for i, it := range o.Items {
		m.Items[i] = OrderItemModel{
			ID:        uuid.New(),
			OrderID:   o.ID,
			LineNo:    i + 1,
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
}

// OrderModelFromDomain creates a new persistence model from a domain Order
func OrderModelFromDomain(o *settlement.Order) *OrderModel {
	m := &OrderModel{}
	m.FromDomain(o)
	return m
}

// MutableColumns returns the columns an order update may touch. Items are
// written once at creation.
func (m *OrderModel) MutableColumns() map[string]interface{} {
	return map[string]interface{}{
		"agent_id":             m.AgentID,
		"status":               m.Status,
		"agent_shipping_cost":  m.AgentShippingCost,
		"delivered_amount":     m.DeliveredAmount,
		"assigned_at":          m.AssignedAt,
		"original_assigned_at": m.OriginalAssignedAt,
		"version":              m.Version,
		"updated_at":           m.UpdatedAt,
	}
}

// OrderItemModel is the persistence model for an order line
type OrderItemModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_order_item_order"`
	LineNo    int             `gorm:"not null"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null"`
	Name      string          `gorm:"type:varchar(200);not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(18,2);not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the persistence model to a domain OrderItem
func (m *OrderItemModel) ToDomain() settlement.OrderItem {
	return settlement.OrderItem{
		ProductID: m.ProductID,
		Name:      m.Name,
		Quantity:  m.Quantity,
		UnitPrice: m.UnitPrice,
	}
}

// LedgerEntryModel is the persistence model for an immutable LedgerEntry.
// It has no UpdatedAt: rows are inserted once and never updated except for
// attribution_date during a reschedule.
type LedgerEntryModel struct {
	ID              uuid.UUID            `gorm:"type:uuid;primary_key"`
	Sequence        int64                `gorm:"not null;uniqueIndex:idx_ledger_sequence"`
	AgentID         uuid.UUID            `gorm:"type:uuid;not null;index:idx_ledger_agent_day,priority:1"`
	OrderID         *uuid.UUID           `gorm:"type:uuid;index:idx_ledger_order"`
	EntryType       settlement.EntryType `gorm:"type:varchar(30);not null"`
	Amount          decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	AttributionDate time.Time            `gorm:"type:date;not null;index:idx_ledger_agent_day,priority:2;index:idx_ledger_day"`
	PeriodStart     *time.Time           `gorm:"type:date"`
	PeriodEnd       *time.Time           `gorm:"type:date"`
	Note            string               `gorm:"type:varchar(500)"`
	CreatedAt       time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain LedgerEntry
func (m *LedgerEntryModel) ToDomain() *settlement.LedgerEntry {
	e := &settlement.LedgerEntry{
		ID:              m.ID,
		Sequence:        m.Sequence,
		AgentID:         m.AgentID,
		OrderID:         m.OrderID,
		Type:            m.EntryType,
		Amount:          m.Amount,
		AttributionDate: settlement.NormalizeDay(m.AttributionDate),
		Note:            m.Note,
		CreatedAt:       m.CreatedAt,
	}
	if m.PeriodStart != nil {
		d := settlement.NormalizeDay(*m.PeriodStart)
		e.PeriodStart = &d
	}
	if m.PeriodEnd != nil {
		d := settlement.NormalizeDay(*m.PeriodEnd)
		e.PeriodEnd = &d
	}
	return e
}

// LedgerEntryModelFromDomain creates a new persistence model from a domain LedgerEntry
func LedgerEntryModelFromDomain(e *settlement.LedgerEntry) *LedgerEntryModel {
	return &LedgerEntryModel{
		ID:              e.ID,
		Sequence:        e.Sequence,
		AgentID:         e.AgentID,
		OrderID:         e.OrderID,
		EntryType:       e.Type,
		Amount:          e.Amount,
		AttributionDate: e.AttributionDate,
		PeriodStart:     e.PeriodStart,
		PeriodEnd:       e.PeriodEnd,
		Note:            e.Note,
		CreatedAt:       e.CreatedAt,
	}
}

// ReturnRecordModel is the persistence model for a ReturnRecord
type ReturnRecordModel struct {
	ID             uuid.UUID                                    `gorm:"type:uuid;primary_key"`
	OrderID        uuid.UUID                                    `gorm:"type:uuid;not null;index:idx_return_order"`
	CustomerID     uuid.UUID                                    `gorm:"type:uuid;not null"`
	AgentID        *uuid.UUID                                   `gorm:"type:uuid;index:idx_return_agent"`
	ReturnAmount   decimal.Decimal                              `gorm:"type:decimal(18,2);not null"`
	Items          datatypes.JSONSlice[settlement.ReturnedItem] `gorm:"not null"`
	RemoveShipping bool                                         `gorm:"not null;default:false"`
	Note           string                                       `gorm:"type:varchar(500)"`
	CreatedAt      time.Time                                    `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReturnRecordModel) TableName() string {
	return "return_records"
}

// ToDomain converts the persistence model to a domain ReturnRecord
func (m *ReturnRecordModel) ToDomain() *settlement.ReturnRecord {
	return &settlement.ReturnRecord{
		ID:             m.ID,
		OrderID:        m.OrderID,
		CustomerID:     m.CustomerID,
		AgentID:        m.AgentID,
		ReturnAmount:   m.ReturnAmount,
		Items:          append([]settlement.ReturnedItem(nil), m.Items...),
		RemoveShipping: m.RemoveShipping,
		Note:           m.Note,
		CreatedAt:      m.CreatedAt,
	}
}

// ReturnRecordModelFromDomain creates a new persistence model from a domain ReturnRecord
func ReturnRecordModelFromDomain(r *settlement.ReturnRecord) *ReturnRecordModel {
	return &ReturnRecordModel{
		ID:             r.ID,
		OrderID:        r.OrderID,
		CustomerID:     r.CustomerID,
		AgentID:        r.AgentID,
		ReturnAmount:   r.ReturnAmount,
		Items:          datatypes.JSONSlice[settlement.ReturnedItem](r.Items),
		RemoveShipping: r.RemoveShipping,
		Note:           r.Note,
		CreatedAt:      r.CreatedAt,
	}
}

// AllSettlementModels lists the models in dependency order for AutoMigrate
func AllSettlementModels() []interface{} {
	return []interface{}{
		&AgentModel{},
		&OrderModel{},
		&OrderItemModel{},
		&LedgerEntryModel{},
		&ReturnRecordModel{},
	}
}
