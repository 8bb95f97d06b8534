package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// CreateOrder creates a pending, unassigned order
func (s *SettlementService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error) {
	items := make([]settlement.OrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = settlement.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	order, err := settlement.NewOrder(req.CustomerID, items, req.Discount, req.CustomerShippingCost)
	if err != nil {
		return nil, err
	}

	if err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Orders().Create(ctx, order)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.Int64("sequence_number", order.SequenceNumber),
		zap.String("charge", order.CustomerChargeAmount.String()))
	resp := ToOrderResponse(order)
	return &resp, nil
}

// GetOrder retrieves an order by ID
func (s *SettlementService) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	order, err := s.repos.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(order)
	return &resp, nil
}

// ListOrders lists orders with filtering
func (s *SettlementService) ListOrders(ctx context.Context, filter OrderListFilter) ([]OrderResponse, int64, error) {
	f := settlement.OrderFilter{
		AgentID:   filter.AgentID,
		SortBy:    filter.SortBy,
		SortOrder: filter.SortOrder,
		Page:      filter.Page,
		PageSize:  filter.PageSize,
	}
	if filter.Status != "" {
		status := settlement.OrderStatus(filter.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewDomainError("VALIDATION_ERROR", "Unknown order status")
		}
		f.Status = &status
	}
	orders, total, err := s.repos.Orders().FindAll(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = ToOrderResponse(o)
	}
	return out, total, nil
}

// ListReturns lists the return records of an order
func (s *SettlementService) ListReturns(ctx context.Context, orderID uuid.UUID) ([]ReturnRecordResponse, error) {
	order, err := s.repos.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	records, err := s.repos.Returns().FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]ReturnRecordResponse, len(records))
	for i, r := range records {
		out[i] = ToReturnRecordResponse(r, order.Status)
	}
	return out, nil
}

// CancelOrder cancels a pending, unassigned order. It has no ledger effect.
func (s *SettlementService) CancelOrder(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	var order *settlement.Order
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		order, err = repos.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.Cancel(); err != nil {
			return err
		}
		return repos.Orders().Save(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled", zap.String("order_id", orderID.String()))
	resp := ToOrderResponse(order)
	return &resp, nil
}

// AssignToAgent hands a pending order to an agent and records what the
// agent now owes for it
func (s *SettlementService) AssignToAgent(ctx context.Context, orderID, agentID uuid.UUID, agentShippingCost decimal.Decimal) (*OrderResponse, error) {
	var order *settlement.Order
	_, err := s.withAgent(ctx, agentID, OpAssignToAgent, func(tx *ledgerTx) error {
		if err := tx.agent.EnsureActive(); err != nil {
			return err
		}
		var err error
		order, err = tx.repos.Orders().FindByIDForUpdate(tx.ctx, orderID)
		if err != nil {
			return err
		}
		owed, err := order.AssignTo(agentID, agentShippingCost, tx.now)
		if err != nil {
			return err
		}
		if err := tx.repos.Orders().Save(tx.ctx, order); err != nil {
			return err
		}
		tx.track(order)
		return s.appendOrderEntry(tx, order, settlement.EntryTypeOwed, owed)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order assigned",
		zap.String("order_id", orderID.String()),
		zap.String("agent_id", agentID.String()),
		zap.String("agent_due", order.AgentDue().String()))
	resp := ToOrderResponse(order)
	return &resp, nil
}

// AdjustAgentShipping changes the agent shipping cost of an assigned order and
// records the difference as a Modification. An unchanged cost is a no-op.
func (s *SettlementService) AdjustAgentShipping(ctx context.Context, orderID uuid.UUID, newCost decimal.Decimal) (*OrderResponse, error) {
	order, err := s.withOrder(ctx, orderID, OpAdjustAgentShipping, func(tx *ledgerTx, order *settlement.Order) error {
		diff, err := order.ChangeAgentShipping(newCost)
		if err != nil {
			return err
		}
		if diff.IsZero() {
			return nil
		}
		if err := tx.repos.Orders().Save(tx.ctx, order); err != nil {
			return err
		}
		return s.appendOrderEntry(tx, order, settlement.EntryTypeModification, diff)
	})
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(order)
	return &resp, nil
}

// MarkDelivered marks a shipped order delivered and records the amount the
// agent collected
func (s *SettlementService) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	order, err := s.withOrder(ctx, orderID, OpMarkDelivered, func(tx *ledgerTx, order *settlement.Order) error {
		amount, err := order.Deliver()
		if err != nil {
			return err
		}
		if err := tx.repos.Orders().Save(tx.ctx, order); err != nil {
			return err
		}
		return s.appendOrderEntry(tx, order, settlement.EntryTypeDelivered, amount)
	})
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(order)
	return &resp, nil
}

// RegisterReturn records goods coming back on an order. The returned value
// reduces what the agent owes.
func (s *SettlementService) RegisterReturn(ctx context.Context, orderID uuid.UUID, lines []settlement.ReturnLine, removeShipping bool, note string) (*ReturnRecordResponse, error) {
	var record *settlement.ReturnRecord
	order, err := s.withOrder(ctx, orderID, OpRegisterReturn, func(tx *ledgerTx, order *settlement.Order) error {
		var err error
		record, err = order.ApplyReturn(lines, removeShipping, note)
		if err != nil {
			return err
		}
		record.CreatedAt = tx.now
		if err := tx.repos.Orders().Save(tx.ctx, order); err != nil {
			return err
		}
		if err := tx.repos.Returns().Create(tx.ctx, record); err != nil {
			return err
		}
		day, err := order.AttributionDay(s.loc)
		if err != nil {
			return err
		}
		entry, err := settlement.NewLedgerEntry(tx.agent.ID, settlement.EntryTypeReturn, record.ReturnAmount.Neg(), day)
		if err != nil {
			return err
		}
		return tx.append(entry.WithOrder(order.ID).WithNote(note).WithCreatedAt(tx.now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("return registered",
		zap.String("order_id", orderID.String()),
		zap.String("amount", record.ReturnAmount.String()),
		zap.String("status", order.Status.String()))
	resp := ToReturnRecordResponse(record, order.Status)
	return &resp, nil
}

// Reschedule moves an order and all of its ledger entries to another
// attribution day within [original assignment day, today]
func (s *SettlementService) Reschedule(ctx context.Context, orderID uuid.UUID, newDate time.Time) (*OrderResponse, error) {
	order, err := s.withOrder(ctx, orderID, OpReschedule, func(tx *ledgerTx, order *settlement.Order) error {
		if err := order.Reschedule(newDate, tx.now, s.loc); err != nil {
			return err
		}
		if err := tx.repos.Orders().Save(tx.ctx, order); err != nil {
			return err
		}
		moved, err := tx.repos.Ledger().ReattributeOrder(tx.ctx, order.ID, newDate)
		if err != nil {
			return err
		}
		tx.dirty = tx.dirty || moved > 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(order)
	return &resp, nil
}

// withOrder runs fn for an order already carried by an agent. The order is
// read without a lock to find its agent, then the agent row and the order row
// are locked in that order and the assignment is checked again.
func (s *SettlementService) withOrder(ctx context.Context, orderID uuid.UUID, operation string, fn func(tx *ledgerTx, order *settlement.Order) error) (*settlement.Order, error) {
	var (
		expected *uuid.UUID
		locked   *settlement.Order
	)
	resolve := func(ctx context.Context, repos TransactionalRepositories) (uuid.UUID, error) {
		order, err := repos.Orders().FindByID(ctx, orderID)
		if err != nil {
			return uuid.Nil, err
		}
		expected = order.AgentID
		if order.AgentID != nil {
			return *order.AgentID, nil
		}
		return s.formerAgent(ctx, repos, order)
	}

	_, err := s.withResolvedAgent(ctx, operation, resolve, func(tx *ledgerTx) error {
		order, err := tx.lockOrder(orderID, expected)
		if err != nil {
			return err
		}
		locked = order
		if err := fn(tx, order); err != nil {
			return err
		}
		tx.track(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locked, nil
}

// formerAgent finds the agent of an order whose assignment was cleared by a
// return without shipping, through the order's ledger entries
func (s *SettlementService) formerAgent(ctx context.Context, repos TransactionalRepositories, order *settlement.Order) (uuid.UUID, error) {
	if !order.IsAssigned() {
		return uuid.Nil, shared.NewDomainError("NOT_ASSIGNED", "Order has not been assigned to an agent")
	}
	entries, err := repos.Ledger().FindByOrder(ctx, order.ID)
	if err != nil {
		return uuid.Nil, err
	}
	if len(entries) == 0 {
		return uuid.Nil, shared.NewDomainError("NOT_ASSIGNED", "Order has no ledger history")
	}
	return entries[0].AgentID, nil
}
