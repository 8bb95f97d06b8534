package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
)

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	OrderStatusPending                   OrderStatus = "pending"
	OrderStatusShipped                   OrderStatus = "shipped"
	OrderStatusDelivered                 OrderStatus = "delivered"
	OrderStatusDeliveredWithModification OrderStatus = "delivered_with_modification"
	OrderStatusReturned                  OrderStatus = "returned"
	OrderStatusPartiallyReturned         OrderStatus = "partially_returned"
	OrderStatusReturnNoShipping          OrderStatus = "return_no_shipping"
	OrderStatusCancelled                 OrderStatus = "cancelled"
)

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusDeliveredWithModification, OrderStatusReturned,
		OrderStatusPartiallyReturned, OrderStatusReturnNoShipping,
		OrderStatusCancelled:
		return true
	}
	return false
}

// IsDelivered returns true for both delivered statuses
func (s OrderStatus) IsDelivered() bool {
	return s == OrderStatusDelivered || s == OrderStatusDeliveredWithModification
}

// CanReturn returns true if goods can still come back on the order
func (s OrderStatus) CanReturn() bool {
	return s == OrderStatusShipped || s.IsDelivered()
}

// SettleableStatuses are closed out by a settlement
var SettleableStatuses = []OrderStatus{OrderStatusPending, OrderStatusShipped}

// OrderItem is a line on an order
type OrderItem struct {
	ProductID uuid.UUID
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total returns UnitPrice × Quantity
func (i OrderItem) Total() decimal.Decimal {
	return valueobject.LineTotal(i.UnitPrice, i.Quantity)
}

// Order is a customer order as seen by the settlement ledger.
// AssignedAt is the attribution instant; OriginalAssignedAt is the first
// assignment and bounds how far back the order can be rescheduled.
type Order struct {
	shared.BaseAggregateRoot
	SequenceNumber       int64
	CustomerID           uuid.UUID
	AgentID              *uuid.UUID
	Status               OrderStatus
	Items                []OrderItem
	Discount             decimal.Decimal
	CustomerChargeAmount decimal.Decimal
	CustomerShippingCost decimal.Decimal
	AgentShippingCost    decimal.Decimal
	DeliveredAmount      decimal.Decimal
	AssignedAt           *time.Time
	OriginalAssignedAt   *time.Time
}

// NewOrder creates a pending order. The customer charge is the item subtotal
// less discount, floored at zero.
func NewOrder(customerID uuid.UUID, items []OrderItem, discount, customerShipping decimal.Decimal) (*Order, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if len(items) == 0 {
		return nil, shared.NewDomainError("INVALID_ITEMS", "Order must have at least one item")
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, it := range items {
		if it.ProductID == uuid.Nil {
			return nil, shared.NewDomainError("INVALID_ITEMS", "Item product ID cannot be empty")
		}
		if _, dup := seen[it.ProductID]; dup {
			return nil, shared.NewDomainError("INVALID_ITEMS", fmt.Sprintf("Product %s appears on more than one line", it.ProductID))
		}
		seen[it.ProductID] = struct{}{}
		if it.Quantity <= 0 {
			return nil, shared.NewDomainError("INVALID_QUANTITY", "Item quantity must be positive")
		}
		if it.UnitPrice.IsNegative() || !valueobject.IsMoney(it.UnitPrice) {
			return nil, shared.NewDomainError("INVALID_AMOUNT", "Item unit price must be a non-negative amount with at most 2 decimal places")
		}
	}
	if discount.IsNegative() || !valueobject.IsMoney(discount) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Discount must be a non-negative amount with at most 2 decimal places")
	}
	if customerShipping.IsNegative() || !valueobject.IsMoney(customerShipping) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Customer shipping must be a non-negative amount with at most 2 decimal places")
	}

	o := &Order{
		BaseAggregateRoot:    shared.NewBaseAggregateRoot(),
		CustomerID:           customerID,
		Status:               OrderStatusPending,
		Items:                append([]OrderItem(nil), items...),
		Discount:             discount,
		CustomerShippingCost: customerShipping,
		AgentShippingCost:    decimal.Zero,
		DeliveredAmount:      decimal.Zero,
	}
	o.CustomerChargeAmount = valueobject.MaxZero(o.Subtotal().Sub(discount))
	return o, nil
}

// Subtotal returns the sum of item totals before discount
func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Total())
	}
	return total
}

// CustomerTotal is what the customer pays, shipping included
func (o *Order) CustomerTotal() decimal.Decimal {
	return o.CustomerChargeAmount.Add(o.CustomerShippingCost)
}

// AgentDue is what the agent must hand over for the order
func (o *Order) AgentDue() decimal.Decimal {
	return o.CustomerChargeAmount.Add(o.CustomerShippingCost).Sub(o.AgentShippingCost)
}

// IsAssigned returns true once the order has been handed to an agent
func (o *Order) IsAssigned() bool {
	return o.AssignedAt != nil
}

// AttributionDay is the civil day all of the order's ledger entries carry
func (o *Order) AttributionDay(loc *time.Location) (time.Time, error) {
	if o.AssignedAt == nil {
		return time.Time{}, shared.NewDomainError("NOT_ASSIGNED", "Order has not been assigned to an agent")
	}
	return DayOf(*o.AssignedAt, loc), nil
}

// AssignTo hands the order to an agent and returns the Owed amount
func (o *Order) AssignTo(agentID uuid.UUID, agentShipping decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if o.IsAssigned() || o.AgentID != nil {
		return decimal.Zero, shared.NewDomainError("ALREADY_ASSIGNED", "Order is already assigned to an agent")
	}
	if o.Status != OrderStatusPending {
		return decimal.Zero, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot assign order in %s status", o.Status))
	}
	if agentShipping.IsNegative() || !valueobject.IsMoney(agentShipping) {
		return decimal.Zero, shared.NewDomainError("INVALID_AMOUNT", "Agent shipping must be a non-negative amount with at most 2 decimal places")
	}

	o.AgentID = &agentID
	o.AgentShippingCost = agentShipping
	o.Status = OrderStatusShipped
	assigned := now
	o.AssignedAt = &assigned
	original := now
	o.OriginalAssignedAt = &original
	o.Touch()

	o.Raise(NewOrderAssignedEvent(o))
	return o.AgentDue(), nil
}

// ChangeAgentShipping sets a new agent shipping cost and returns the
// Modification amount, -(newCost - oldCost). A zero diff changes nothing.
func (o *Order) ChangeAgentShipping(newCost decimal.Decimal) (decimal.Decimal, error) {
	if !o.IsAssigned() || o.AgentID == nil {
		return decimal.Zero, shared.NewDomainError("NOT_ASSIGNED", "Order has not been assigned to an agent")
	}
	if newCost.IsNegative() || !valueobject.IsMoney(newCost) {
		return decimal.Zero, shared.NewDomainError("INVALID_AMOUNT", "Agent shipping must be a non-negative amount with at most 2 decimal places")
	}
	switch o.Status {
	case OrderStatusShipped, OrderStatusDelivered, OrderStatusDeliveredWithModification:
	default:
		return decimal.Zero, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot adjust shipping on order in %s status", o.Status))
	}

	diff := newCost.Sub(o.AgentShippingCost).Neg()
	if diff.IsZero() {
		return diff, nil
	}
	old := o.AgentShippingCost
	o.AgentShippingCost = newCost
	if o.Status == OrderStatusDelivered {
		o.Status = OrderStatusDeliveredWithModification
	}
	o.Touch()

	o.Raise(NewOrderShippingAdjustedEvent(o, old))
	return diff, nil
}

// Deliver marks a shipped order delivered and returns the Delivered amount
func (o *Order) Deliver() (decimal.Decimal, error) {
	if o.Status != OrderStatusShipped {
		return decimal.Zero, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot deliver order in %s status", o.Status))
	}
	amount := o.AgentDue()
	o.Status = OrderStatusDelivered
	o.DeliveredAmount = amount
	o.Touch()

	o.Raise(NewOrderDeliveredEvent(o))
	return amount, nil
}

// CloseForSettlement moves a pending or shipped order to delivered.
// It returns the Delivered amount and true when a ledger entry is owed,
// which is the case only for orders that were shipped.
func (o *Order) CloseForSettlement() (decimal.Decimal, bool, error) {
	switch o.Status {
	case OrderStatusShipped:
		amount, err := o.Deliver()
		return amount, err == nil, err
	case OrderStatusPending:
		o.Status = OrderStatusDelivered
		o.Touch()
		return decimal.Zero, false, nil
	default:
		return decimal.Zero, false, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot settle order in %s status", o.Status))
	}
}

// ApplyReturn records returned goods and returns the ReturnRecord to persist.
// Quantities outside [0, line quantity] are rejected. Lines not mentioned
// count as nothing returned.
func (o *Order) ApplyReturn(lines []ReturnLine, removeShipping bool, note string) (*ReturnRecord, error) {
	if !o.Status.CanReturn() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot register a return on order in %s status", o.Status))
	}
	if !o.IsAssigned() || o.AgentID == nil {
		return nil, shared.NewDomainError("NOT_ASSIGNED", "Order has not been assigned to an agent")
	}

	requested := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if _, dup := requested[l.ProductID]; dup {
			return nil, shared.NewDomainError("INVALID_RETURN_QUANTITY", fmt.Sprintf("Product %s listed more than once", l.ProductID))
		}
		requested[l.ProductID] = l.Quantity
	}

	items := make([]ReturnedItem, 0, len(lines))
	amount := decimal.Zero
	allReturned := true
	matched := 0
	for _, it := range o.Items {
		qty, ok := requested[it.ProductID]
		if !ok {
			allReturned = false
			continue
		}
		matched++
		if qty < 0 || qty > it.Quantity {
			return nil, shared.NewDomainError("INVALID_RETURN_QUANTITY",
				fmt.Sprintf("Return quantity for %s must be between 0 and %d", it.Name, it.Quantity))
		}
		if qty < it.Quantity {
			allReturned = false
		}
		if qty == 0 {
			continue
		}
		amount = amount.Add(valueobject.LineTotal(it.UnitPrice, qty))
		items = append(items, ReturnedItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  qty,
			UnitPrice: it.UnitPrice,
		})
	}
	if matched != len(requested) {
		return nil, shared.NewDomainError("INVALID_RETURN_QUANTITY", "Return references a product that is not on the order")
	}
	if len(items) == 0 {
		return nil, shared.NewDomainError("INVALID_RETURN_QUANTITY", "Return must include at least one unit")
	}

	record := &ReturnRecord{
		ID:             uuid.New(),
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		AgentID:        o.AgentID,
		ReturnAmount:   amount,
		Items:          items,
		RemoveShipping: removeShipping,
		Note:           note,
		CreatedAt:      time.Now(),
	}

	switch {
	case removeShipping:
		o.Status = OrderStatusReturnNoShipping
		o.AgentID = nil
	case allReturned:
		o.Status = OrderStatusReturned
	default:
		o.Status = OrderStatusPartiallyReturned
	}
	o.Touch()

	o.Raise(NewOrderReturnedEvent(o, record))
	return record, nil
}

// Reschedule moves the attribution day to newDay, keeping the time of day.
// newDay must fall within [original assignment day, today].
func (o *Order) Reschedule(newDay, now time.Time, loc *time.Location) error {
	if o.AssignedAt == nil || o.OriginalAssignedAt == nil {
		return shared.NewDomainError("NOT_ASSIGNED", "Order has not been assigned to an agent")
	}
	newDay = NormalizeDay(newDay)
	earliest := DayOf(*o.OriginalAssignedAt, loc)
	today := DayOf(now, loc)
	if newDay.Before(earliest) || newDay.After(today) {
		return shared.NewDomainError("INVALID_DATE",
			fmt.Sprintf("Date must be between %s and %s", earliest.Format(time.DateOnly), today.Format(time.DateOnly)))
	}

	previous := DayOf(*o.AssignedAt, loc)
	moved := withDay(*o.AssignedAt, newDay, loc)
	o.AssignedAt = &moved
	o.Touch()

	o.Raise(NewOrderRescheduledEvent(o, previous, newDay))
	return nil
}

// Cancel cancels a pending order. Assigned orders carry ledger entries and
// are closed through delivery or return instead.
func (o *Order) Cancel() error {
	if o.Status != OrderStatusPending || o.IsAssigned() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel order in %s status", o.Status))
	}
	o.Status = OrderStatusCancelled
	o.Touch()
	return nil
}
