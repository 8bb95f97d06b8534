package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/settlement"
)

// CreateAgentRequest represents a request to register a delivery agent
type CreateAgentRequest struct {
	Name         string `json:"name" binding:"required,max=100"`
	Phone        string `json:"phone" binding:"max=50"`
	SerialNumber int    `json:"serial_number" binding:"required,gt=0"`
}

// AgentResponse represents an agent in API responses
type AgentResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Phone        string          `json:"phone,omitempty"`
	SerialNumber int             `json:"serial_number"`
	Active       bool            `json:"active"`
	TotalOwed    decimal.Decimal `json:"total_owed"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Receivable   decimal.Decimal `json:"receivable"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Version      int             `json:"version"`
}

// AgentListFilter represents filter options for the agent list
type AgentListFilter struct {
	Search    string `form:"search" binding:"max=100"`
	Active    *bool  `form:"active"`
	SortBy    string `form:"sort_by" binding:"omitempty,oneof=serial_number name_key created_at total_owed total_paid"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// CreateOrderItemInput is one line of a new order
type CreateOrderItemInput struct {
	ProductID uuid.UUID       `json:"product_id" binding:"required"`
	Name      string          `json:"name" binding:"required,max=200"`
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"money"`
}

// CreateOrderRequest represents a request to create a pending order
type CreateOrderRequest struct {
	CustomerID           uuid.UUID              `json:"customer_id" binding:"required"`
	Items                []CreateOrderItemInput `json:"items" binding:"required,min=1,dive"`
	Discount             decimal.Decimal        `json:"discount" binding:"money"`
	CustomerShippingCost decimal.Decimal        `json:"customer_shipping_cost" binding:"money"`
}

// OrderItemResponse represents an order line in API responses
type OrderItemResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID                   uuid.UUID           `json:"id"`
	SequenceNumber       int64               `json:"sequence_number,string"`
	CustomerID           uuid.UUID           `json:"customer_id"`
	AgentID              *uuid.UUID          `json:"agent_id,omitempty"`
	Status               string              `json:"status"`
	Items                []OrderItemResponse `json:"items"`
	Subtotal             decimal.Decimal     `json:"subtotal"`
	Discount             decimal.Decimal     `json:"discount"`
	CustomerChargeAmount decimal.Decimal     `json:"customer_charge_amount"`
	CustomerShippingCost decimal.Decimal     `json:"customer_shipping_cost"`
	CustomerTotal        decimal.Decimal     `json:"customer_total"`
	AgentShippingCost    decimal.Decimal     `json:"agent_shipping_cost"`
	AgentDue             decimal.Decimal     `json:"agent_due"`
	DeliveredAmount      decimal.Decimal     `json:"delivered_amount"`
	AssignedAt           *time.Time          `json:"assigned_at,omitempty"`
	OriginalAssignedAt   *time.Time          `json:"original_assigned_at,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	Version              int                 `json:"version"`
}

// OrderListFilter represents filter options for the order list
type OrderListFilter struct {
	AgentID   *uuid.UUID `form:"agent_id"`
	Status    string     `form:"status" binding:"omitempty,oneof=pending shipped delivered delivered_with_modification returned partially_returned return_no_shipping cancelled"`
	SortBy    string     `form:"sort_by" binding:"omitempty,oneof=sequence_number created_at assigned_at status customer_charge_amount"`
	SortOrder string     `form:"sort_order" binding:"omitempty,oneof=asc desc"`
	Page      int        `form:"page" binding:"omitempty,min=1"`
	PageSize  int        `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// AssignOrderRequest represents a request to hand an order to an agent
type AssignOrderRequest struct {
	AgentID           uuid.UUID       `json:"agent_id" binding:"required"`
	AgentShippingCost decimal.Decimal `json:"agent_shipping_cost" binding:"money"`
}

// AdjustShippingRequest represents a request to change the agent shipping cost
type AdjustShippingRequest struct {
	AgentShippingCost decimal.Decimal `json:"agent_shipping_cost" binding:"money"`
}

// ReturnLineInput is one returned line
type ReturnLineInput struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"gte=0"`
}

// RegisterReturnRequest represents a request to register returned goods
type RegisterReturnRequest struct {
	Items          []ReturnLineInput `json:"items" binding:"required,min=1,dive"`
	RemoveShipping bool              `json:"remove_shipping"`
	Note           string            `json:"note" binding:"max=500"`
}

// Lines converts the request items into domain return lines
func (r RegisterReturnRequest) Lines() []settlement.ReturnLine {
	lines := make([]settlement.ReturnLine, len(r.Items))
	for i, it := range r.Items {
		lines[i] = settlement.ReturnLine{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return lines
}

// ReturnRecordResponse represents a return record in API responses
type ReturnRecordResponse struct {
	ID             uuid.UUID                 `json:"id"`
	OrderID        uuid.UUID                 `json:"order_id"`
	CustomerID     uuid.UUID                 `json:"customer_id"`
	AgentID        *uuid.UUID                `json:"agent_id,omitempty"`
	ReturnAmount   decimal.Decimal           `json:"return_amount"`
	Items          []settlement.ReturnedItem `json:"items"`
	RemoveShipping bool                      `json:"remove_shipping"`
	Note           string                    `json:"note,omitempty"`
	OrderStatus    string                    `json:"order_status"`
	CreatedAt      time.Time                 `json:"created_at"`
}

// RecordPaymentRequest represents an advance payment by an agent.
// Date defaults to today.
type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"money"`
	Date   string          `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Note   string          `json:"note" binding:"max=500"`
}

// RescheduleRequest represents a request to move an order's attribution day
type RescheduleRequest struct {
	Date string `json:"date" binding:"required,datetime=2006-01-02"`
}

// LedgerEntryResponse represents a ledger entry in API responses
type LedgerEntryResponse struct {
	ID              uuid.UUID       `json:"id"`
	Sequence        int64           `json:"sequence,string"`
	AgentID         uuid.UUID       `json:"agent_id"`
	OrderID         *uuid.UUID      `json:"order_id,omitempty"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	AttributionDate string          `json:"attribution_date"`
	PeriodStart     *string         `json:"period_start,omitempty"`
	PeriodEnd       *string         `json:"period_end,omitempty"`
	Note            string          `json:"note,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// LedgerListFilter represents filter options for ledger history
type LedgerListFilter struct {
	Date     string     `form:"date" binding:"omitempty,datetime=2006-01-02"`
	Type     string     `form:"type" binding:"omitempty,oneof=OWED PAYMENT DELIVERED RETURN MODIFICATION DELIVERED_RESET RETURN_RESET"`
	OrderID  *uuid.UUID `form:"order_id"`
	Page     int        `form:"page" binding:"omitempty,min=1"`
	PageSize int        `form:"page_size" binding:"omitempty,min=1,max=200"`
}

// BalanceResponse is a folded balance for one agent
type BalanceResponse struct {
	AgentID uuid.UUID `json:"agent_id"`
	Date    *string   `json:"date,omitempty"`
	settlement.Balance
}

// SettlementResult summarizes a settlement
type SettlementResult struct {
	AgentID         uuid.UUID       `json:"agent_id"`
	OrdersSettled   int             `json:"orders_settled"`
	DeliveredAmount decimal.Decimal `json:"delivered_amount"`
	PaymentsCleared int64           `json:"payments_cleared"`
	PaymentsAmount  decimal.Decimal `json:"payments_amount"`
	SettledAt       time.Time       `json:"settled_at"`
}

// ResetResult summarizes a reset operation. Entry is nil when the reset
// had nothing to close.
type ResetResult struct {
	AgentID        uuid.UUID            `json:"agent_id"`
	Kind           string               `json:"kind"`
	Entry          *LedgerEntryResponse `json:"entry,omitempty"`
	EntriesRemoved int64                `json:"entries_removed"`
	AmountCleared  decimal.Decimal      `json:"amount_cleared"`
}

// RebuildResult summarizes a projection rebuild
type RebuildResult struct {
	Agents  int `json:"agents"`
	Updated int `json:"updated"`
}

// DayCheck is one cross-check comparison
type DayCheck struct {
	Date       string          `json:"date,omitempty"`
	FromLedger decimal.Decimal `json:"from_ledger"`
	FromOrders decimal.Decimal `json:"from_orders"`
	OK         bool            `json:"ok"`
}

// VerifyReport is the result of checking one agent's ledger against
// order state and the cached projection
type VerifyReport struct {
	AgentID        uuid.UUID  `json:"agent_id"`
	AllTime        DayCheck   `json:"all_time"`
	Days           []DayCheck `json:"days"`
	ProjectionOwed bool       `json:"projection_owed_ok"`
	ProjectionPaid bool       `json:"projection_paid_ok"`
	OK             bool       `json:"ok"`
}

// ToAgentResponse converts a domain Agent to AgentResponse
func ToAgentResponse(a *settlement.Agent) AgentResponse {
	return AgentResponse{
		ID:           a.ID,
		Name:         a.Name,
		Phone:        a.Phone,
		SerialNumber: a.SerialNumber,
		Active:       a.Active,
		TotalOwed:    a.TotalOwed,
		TotalPaid:    a.TotalPaid,
		Receivable:   a.Receivable(),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		Version:      a.Version,
	}
}

// ToOrderResponse converts a domain Order to OrderResponse
func ToOrderResponse(o *settlement.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Total:     it.Total(),
		}
	}
	return OrderResponse{
		ID:                   o.ID,
		SequenceNumber:       o.SequenceNumber,
		CustomerID:           o.CustomerID,
		AgentID:              o.AgentID,
		Status:               o.Status.String(),
		Items:                items,
		Subtotal:             o.Subtotal(),
		Discount:             o.Discount,
		CustomerChargeAmount: o.CustomerChargeAmount,
		CustomerShippingCost: o.CustomerShippingCost,
		CustomerTotal:        o.CustomerTotal(),
		AgentShippingCost:    o.AgentShippingCost,
		AgentDue:             o.AgentDue(),
		DeliveredAmount:      o.DeliveredAmount,
		AssignedAt:           o.AssignedAt,
		OriginalAssignedAt:   o.OriginalAssignedAt,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
		Version:              o.Version,
	}
}

// ToReturnRecordResponse converts a ReturnRecord to ReturnRecordResponse
func ToReturnRecordResponse(r *settlement.ReturnRecord, status settlement.OrderStatus) ReturnRecordResponse {
	return ReturnRecordResponse{
		ID:             r.ID,
		OrderID:        r.OrderID,
		CustomerID:     r.CustomerID,
		AgentID:        r.AgentID,
		ReturnAmount:   r.ReturnAmount,
		Items:          r.Items,
		RemoveShipping: r.RemoveShipping,
		Note:           r.Note,
		OrderStatus:    status.String(),
		CreatedAt:      r.CreatedAt,
	}
}

// ToLedgerEntryResponse converts a LedgerEntry to LedgerEntryResponse
func ToLedgerEntryResponse(e *settlement.LedgerEntry) LedgerEntryResponse {
	resp := LedgerEntryResponse{
		ID:              e.ID,
		Sequence:        e.Sequence,
		AgentID:         e.AgentID,
		OrderID:         e.OrderID,
		Type:            e.Type.String(),
		Amount:          e.Amount,
		AttributionDate: e.AttributionDate.Format(time.DateOnly),
		Note:            e.Note,
		CreatedAt:       e.CreatedAt,
	}
	if e.PeriodStart != nil {
		s := e.PeriodStart.Format(time.DateOnly)
		resp.PeriodStart = &s
	}
	if e.PeriodEnd != nil {
		s := e.PeriodEnd.Format(time.DateOnly)
		resp.PeriodEnd = &s
	}
	return resp
}

// ToLedgerEntryResponses converts a slice of entries
func ToLedgerEntryResponses(entries []*settlement.LedgerEntry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = ToLedgerEntryResponse(e)
	}
	return out
}
