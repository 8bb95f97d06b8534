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

// CreateAgent registers a new delivery agent
func (s *SettlementService) CreateAgent(ctx context.Context, req CreateAgentRequest) (*AgentResponse, error) {
	agent, err := settlement.NewAgent(req.Name, req.Phone, req.SerialNumber)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		exists, err := repos.Agents().ExistsBySerialNumber(ctx, req.SerialNumber)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewDomainError("ALREADY_EXISTS", "An agent with this serial number already exists")
		}
		return repos.Agents().Save(ctx, agent)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("agent created",
		zap.String("agent_id", agent.ID.String()),
		zap.Int("serial_number", agent.SerialNumber))
	s.publishDomainEvents(ctx, agent)

	resp := ToAgentResponse(agent)
	return &resp, nil
}

// GetAgent retrieves an agent by ID
func (s *SettlementService) GetAgent(ctx context.Context, agentID uuid.UUID) (*AgentResponse, error) {
	agent, err := s.repos.Agents().FindByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	resp := ToAgentResponse(agent)
	return &resp, nil
}

// ListAgents lists agents, matching Search against the normalized name
func (s *SettlementService) ListAgents(ctx context.Context, filter AgentListFilter) ([]AgentResponse, int64, error) {
	agents, total, err := s.repos.Agents().FindAll(ctx, settlement.AgentFilter{
		Search:    filter.Search,
		Active:    filter.Active,
		SortBy:    filter.SortBy,
		SortOrder: filter.SortOrder,
		Page:      filter.Page,
		PageSize:  filter.PageSize,
	})
	if err != nil {
		return nil, 0, err
	}
	out := make([]AgentResponse, len(agents))
	for i, a := range agents {
		out[i] = ToAgentResponse(a)
	}
	return out, total, nil
}

// DeactivateAgent stops an agent from receiving new orders. The agent's
// ledger is untouched.
func (s *SettlementService) DeactivateAgent(ctx context.Context, agentID uuid.UUID) (*AgentResponse, error) {
	tx, err := s.withAgent(ctx, agentID, "deactivate_agent", func(tx *ledgerTx) error {
		tx.agent.Deactivate()
		return tx.repos.Agents().Save(tx.ctx, tx.agent)
	})
	if err != nil {
		return nil, err
	}
	resp := ToAgentResponse(tx.agent)
	return &resp, nil
}

// RecordAdvancePayment records money handed over by the agent before
// settlement. A zero date means today; future dates are rejected.
func (s *SettlementService) RecordAdvancePayment(ctx context.Context, agentID uuid.UUID, amount decimal.Decimal, date time.Time, note string) (*LedgerEntryResponse, error) {
	today := s.Today()
	day := today
	if !date.IsZero() {
		day = settlement.NormalizeDay(date)
	}
	if day.After(today) {
		return nil, shared.NewDomainError("INVALID_DATE", "Payment date cannot be in the future")
	}
	entry, err := settlement.NewLedgerEntry(agentID, settlement.EntryTypePayment, amount, day)
	if err != nil {
		return nil, err
	}
	entry.WithNote(note)

	if _, err := s.withAgent(ctx, agentID, OpRecordPayment, func(tx *ledgerTx) error {
		return tx.append(entry.WithCreatedAt(tx.now))
	}); err != nil {
		return nil, err
	}

	s.logger.Info("advance payment recorded",
		zap.String("agent_id", agentID.String()),
		zap.String("amount", entry.Amount.String()),
		zap.String("date", day.Format(time.DateOnly)))
	resp := ToLedgerEntryResponse(entry)
	return &resp, nil
}

// ResetDelivered closes out the agent's running delivered figure with a
// DeliveredReset entry. Does nothing when deliveredNet is already zero.
func (s *SettlementService) ResetDelivered(ctx context.Context, agentID uuid.UUID) (*ResetResult, error) {
	return s.reset(ctx, agentID, OpResetDelivered, settlement.EntryTypeDelivered, settlement.EntryTypeDeliveredReset,
		func(b settlement.Balance) decimal.Decimal { return b.DeliveredNet })
}

// ResetReturns closes out the agent's running returns figure with a
// ReturnReset entry. Does nothing when remainingReturns is already zero.
func (s *SettlementService) ResetReturns(ctx context.Context, agentID uuid.UUID) (*ResetResult, error) {
	return s.reset(ctx, agentID, OpResetReturns, settlement.EntryTypeReturn, settlement.EntryTypeReturnReset,
		func(b settlement.Balance) decimal.Decimal { return b.RemainingReturns })
}

func (s *SettlementService) reset(
	ctx context.Context,
	agentID uuid.UUID,
	operation string,
	covered, resetType settlement.EntryType,
	net func(settlement.Balance) decimal.Decimal,
) (*ResetResult, error) {
	result := &ResetResult{AgentID: agentID, Kind: resetType.String(), AmountCleared: decimal.Zero}

	_, err := s.withAgent(ctx, agentID, operation, func(tx *ledgerTx) error {
		entries, err := tx.repos.Ledger().Query(tx.ctx, agentID, settlement.LedgerQuery{})
		if err != nil {
			return err
		}
		amount := net(settlement.ComputeBalance(entries, nil))
		if amount.IsZero() {
			return nil
		}

		today := settlement.DayOf(tx.now, s.loc)
		entry, err := settlement.NewLedgerEntry(agentID, resetType, amount, today)
		if err != nil {
			return err
		}
		entry.WithPeriod(resetPeriodStart(entries, covered, resetType, today), today).WithCreatedAt(tx.now)
		if err := tx.append(entry); err != nil {
			return err
		}
		resp := ToLedgerEntryResponse(entry)
		result.Entry = &resp
		result.AmountCleared = amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Entry != nil {
		s.logger.Info("ledger reset",
			zap.String("agent_id", agentID.String()),
			zap.String("kind", result.Kind),
			zap.String("amount", result.AmountCleared.String()))
	}
	return result, nil
}

// resetPeriodStart is the day after the previous reset of the same kind, or
// the earliest covered entry when there is none, never later than today.
func resetPeriodStart(entries []*settlement.LedgerEntry, covered, resetType settlement.EntryType, today time.Time) time.Time {
	var lastEnd, earliest *time.Time
	for _, e := range entries {
		switch e.Type {
		case resetType:
			if e.PeriodEnd != nil && (lastEnd == nil || e.PeriodEnd.After(*lastEnd)) {
				end := *e.PeriodEnd
				lastEnd = &end
			}
		case covered:
			if earliest == nil || e.AttributionDate.Before(*earliest) {
				d := e.AttributionDate
				earliest = &d
			}
		}
	}

	start := today
	switch {
	case lastEnd != nil:
		start = lastEnd.AddDate(0, 0, 1)
	case earliest != nil:
		start = *earliest
	}
	if start.After(today) {
		return today
	}
	return start
}

// ResetAdvance deletes the agent's outstanding Payment entries
func (s *SettlementService) ResetAdvance(ctx context.Context, agentID uuid.UUID) (*ResetResult, error) {
	result := &ResetResult{AgentID: agentID, Kind: settlement.EntryTypePayment.String(), AmountCleared: decimal.Zero}

	_, err := s.withAgent(ctx, agentID, OpResetAdvance, func(tx *ledgerTx) error {
		count, sum, err := tx.repos.Ledger().DeletePayments(tx.ctx, agentID)
		if err != nil {
			return err
		}
		result.EntriesRemoved = count
		result.AmountCleared = sum
		tx.dirty = tx.dirty || count > 0
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.EntriesRemoved > 0 {
		s.logger.Info("advance payments cleared",
			zap.String("agent_id", agentID.String()),
			zap.Int64("count", result.EntriesRemoved),
			zap.String("amount", result.AmountCleared.String()))
	}
	return result, nil
}

// Settle closes out everything the agent is carrying: pending and shipped
// orders become delivered (shipped ones get a Delivered entry) and every
// Payment entry is deleted. The authorizer is consulted before anything
// is read or written. Irreversible.
func (s *SettlementService) Settle(ctx context.Context, agentID uuid.UUID) (*SettlementResult, error) {
	if err := s.authorizer.AuthorizeSettle(ctx, agentID); err != nil {
		s.logger.Warn("settlement refused",
			zap.String("agent_id", agentID.String()),
			zap.Error(err))
		return nil, err
	}

	result := &SettlementResult{AgentID: agentID, DeliveredAmount: decimal.Zero, PaymentsAmount: decimal.Zero}
	tx, err := s.withAgent(ctx, agentID, OpSettle, func(tx *ledgerTx) error {
		orders, err := tx.repos.Orders().FindByAgentForUpdate(tx.ctx, agentID, settlement.SettleableStatuses...)
		if err != nil {
			return err
		}
		for _, order := range orders {
			amount, needsEntry, err := order.CloseForSettlement()
			if err != nil {
				return err
			}
			if err := tx.repos.Orders().Save(tx.ctx, order); err != nil {
				return err
			}
			tx.track(order)
			result.OrdersSettled++
			if !needsEntry {
				continue
			}
			if err := s.appendOrderEntry(tx, order, settlement.EntryTypeDelivered, amount); err != nil {
				return err
			}
			result.DeliveredAmount = result.DeliveredAmount.Add(amount)
		}

		count, sum, err := tx.repos.Ledger().DeletePayments(tx.ctx, agentID)
		if err != nil {
			return err
		}
		result.PaymentsCleared = count
		result.PaymentsAmount = sum
		// Settlement always refreshes the projection, even with nothing to close.
		tx.dirty = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.SettledAt = tx.now
	s.logger.Info("agent settled",
		zap.String("agent_id", agentID.String()),
		zap.Int("orders", result.OrdersSettled),
		zap.String("delivered", result.DeliveredAmount.String()),
		zap.Int64("payments_cleared", result.PaymentsCleared),
		zap.String("payments_amount", result.PaymentsAmount.String()))
	return result, nil
}

// appendOrderEntry appends an entry tied to order, dated on its attribution day
func (s *SettlementService) appendOrderEntry(tx *ledgerTx, order *settlement.Order, entryType settlement.EntryType, amount decimal.Decimal) error {
	day, err := order.AttributionDay(s.loc)
	if err != nil {
		return err
	}
	entry, err := settlement.NewLedgerEntry(tx.agent.ID, entryType, amount, day)
	if err != nil {
		return err
	}
	return tx.append(entry.WithOrder(order.ID).WithCreatedAt(tx.now))
}
