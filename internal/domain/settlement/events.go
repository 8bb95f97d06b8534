package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/shared"
)

// Aggregate type constants
const (
	AggregateTypeAgent = "Agent"
	AggregateTypeOrder = "Order"
)

// Event type constants
const (
	EventTypeAgentCreated          = "AgentCreated"
	EventTypeAgentLedgerChanged    = "AgentLedgerChanged"
	EventTypeOrderAssigned         = "OrderAssigned"
	EventTypeOrderShippingAdjusted = "OrderShippingAdjusted"
	EventTypeOrderDelivered        = "OrderDelivered"
	EventTypeOrderReturned         = "OrderReturned"
	EventTypeOrderRescheduled      = "OrderRescheduled"
)

// AgentCreatedEvent is published when a new agent is registered
type AgentCreatedEvent struct {
	shared.BaseDomainEvent
	AgentID      uuid.UUID `json:"agent_id"`
	Name         string    `json:"name"`
	SerialNumber int       `json:"serial_number"`
}

// NewAgentCreatedEvent creates a new AgentCreatedEvent
func NewAgentCreatedEvent(a *Agent) *AgentCreatedEvent {
	return &AgentCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAgentCreated, AggregateTypeAgent, a.ID),
		AgentID:         a.ID,
		Name:            a.Name,
		SerialNumber:    a.SerialNumber,
	}
}

// AgentLedgerChangedEvent is published after any write to an agent's ledger.
// Read models keyed by agent use it to invalidate.
type AgentLedgerChangedEvent struct {
	shared.BaseDomainEvent
	AgentID   uuid.UUID       `json:"agent_id"`
	Operation string          `json:"operation"`
	TotalOwed decimal.Decimal `json:"total_owed"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}

// NewAgentLedgerChangedEvent creates a new AgentLedgerChangedEvent
func NewAgentLedgerChangedEvent(a *Agent, operation string) *AgentLedgerChangedEvent {
	return &AgentLedgerChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAgentLedgerChanged, AggregateTypeAgent, a.ID),
		AgentID:         a.ID,
		Operation:       operation,
		TotalOwed:       a.TotalOwed,
		TotalPaid:       a.TotalPaid,
	}
}

// OrderAssignedEvent is published when an order is handed to an agent
type OrderAssignedEvent struct {
	shared.BaseDomainEvent
	OrderID           uuid.UUID       `json:"order_id"`
	AgentID           uuid.UUID       `json:"agent_id"`
	AgentShippingCost decimal.Decimal `json:"agent_shipping_cost"`
	AssignedAt        time.Time       `json:"assigned_at"`
}

// NewOrderAssignedEvent creates a new OrderAssignedEvent
func NewOrderAssignedEvent(o *Order) *OrderAssignedEvent {
	return &OrderAssignedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeOrderAssigned, AggregateTypeOrder, o.ID),
		OrderID:           o.ID,
		AgentID:           *o.AgentID,
		AgentShippingCost: o.AgentShippingCost,
		AssignedAt:        *o.AssignedAt,
	}
}

// OrderShippingAdjustedEvent is published when the agent shipping cost changes
type OrderShippingAdjustedEvent struct {
	shared.BaseDomainEvent
	OrderID uuid.UUID       `json:"order_id"`
	OldCost decimal.Decimal `json:"old_cost"`
	NewCost decimal.Decimal `json:"new_cost"`
}

// NewOrderShippingAdjustedEvent creates a new OrderShippingAdjustedEvent
func NewOrderShippingAdjustedEvent(o *Order, oldCost decimal.Decimal) *OrderShippingAdjustedEvent {
	return &OrderShippingAdjustedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderShippingAdjusted, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		OldCost:         oldCost,
		NewCost:         o.AgentShippingCost,
	}
}

// OrderDeliveredEvent is published when an order is delivered
type OrderDeliveredEvent struct {
	shared.BaseDomainEvent
	OrderID uuid.UUID       `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// NewOrderDeliveredEvent creates a new OrderDeliveredEvent
func NewOrderDeliveredEvent(o *Order) *OrderDeliveredEvent {
	return &OrderDeliveredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderDelivered, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		Amount:          o.DeliveredAmount,
	}
}

// OrderReturnedEvent is published when goods come back on an order
type OrderReturnedEvent struct {
	shared.BaseDomainEvent
	OrderID        uuid.UUID       `json:"order_id"`
	ReturnID       uuid.UUID       `json:"return_id"`
	Amount         decimal.Decimal `json:"amount"`
	Status         OrderStatus     `json:"status"`
	RemoveShipping bool            `json:"remove_shipping"`
}

// NewOrderReturnedEvent creates a new OrderReturnedEvent
func NewOrderReturnedEvent(o *Order, r *ReturnRecord) *OrderReturnedEvent {
	return &OrderReturnedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderReturned, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		ReturnID:        r.ID,
		Amount:          r.ReturnAmount,
		Status:          o.Status,
		RemoveShipping:  r.RemoveShipping,
	}
}

// OrderRescheduledEvent is published when an order's attribution day moves
type OrderRescheduledEvent struct {
	shared.BaseDomainEvent
	OrderID  uuid.UUID `json:"order_id"`
	FromDate time.Time `json:"from_date"`
	ToDate   time.Time `json:"to_date"`
}

// NewOrderRescheduledEvent creates a new OrderRescheduledEvent
func NewOrderRescheduledEvent(o *Order, from, to time.Time) *OrderRescheduledEvent {
	return &OrderRescheduledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderRescheduled, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		FromDate:        from,
		ToDate:          to,
	}
}
