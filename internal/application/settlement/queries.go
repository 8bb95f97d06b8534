package settlement

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/settlement"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GetBalance folds the agent's ledger without taking locks. With day set only
// entries attributed to that day count; otherwise the balance is all-time and
// may be served from the balance cache.
func (s *SettlementService) GetBalance(ctx context.Context, agentID uuid.UUID, day *time.Time) (*BalanceResponse, error) {
	agent, err := s.repos.Agents().FindByID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	resp := &BalanceResponse{AgentID: agentID}
	if day != nil {
		d := settlement.NormalizeDay(*day)
		day = &d
		label := d.Format(time.DateOnly)
		resp.Date = &label
	}

	if day == nil && s.balanceCache != nil {
		cached, ok, err := s.balanceCache.Get(ctx, agentID)
		switch {
		case err != nil:
			s.logger.Warn("balance cache read failed", zap.String("agent_id", agentID.String()), zap.Error(err))
		case ok && cached.Version == agent.Version:
			resp.Balance = cached.Balance
			return resp, nil
		}
	}

	entries, err := s.repos.Ledger().Query(ctx, agentID, settlement.LedgerQuery{Day: day})
	if err != nil {
		return nil, err
	}
	resp.Balance = settlement.ComputeBalance(entries, day)

	if day == nil && s.balanceCache != nil {
		// Tagged with the version read above: a write committed since then
		// bumps the agent version and turns this entry into a miss.
		entry := CachedBalance{Version: agent.Version, Balance: resp.Balance}
		if err := s.balanceCache.Set(ctx, agentID, entry); err != nil {
			s.logger.Warn("balance cache write failed", zap.String("agent_id", agentID.String()), zap.Error(err))
		}
	}
	return resp, nil
}

// GetLedger pages through an agent's entries, most recent first
func (s *SettlementService) GetLedger(ctx context.Context, agentID uuid.UUID, filter LedgerListFilter) ([]LedgerEntryResponse, int64, error) {
	if _, err := s.repos.Agents().FindByID(ctx, agentID); err != nil {
		return nil, 0, err
	}

	f := settlement.LedgerEntryFilter{
		AgentID:  &agentID,
		OrderID:  filter.OrderID,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if filter.Date != "" {
		day, err := settlement.ParseDay(filter.Date)
		if err != nil {
			return nil, 0, invalidDate(filter.Date)
		}
		f.DateFrom = &day
		f.DateTo = &day
	}
	if filter.Type != "" {
		t := settlement.EntryType(filter.Type)
		if !t.IsValid() {
			return nil, 0, invalidEntryType(filter.Type)
		}
		f.Type = &t
	}

	entries, total, err := s.repos.Ledger().List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return ToLedgerEntryResponses(entries), total, nil
}

// LedgerForDay returns every entry attributed to day across all agents
func (s *SettlementService) LedgerForDay(ctx context.Context, day time.Time) ([]LedgerEntryResponse, error) {
	entries, err := s.repos.Ledger().FindByDay(ctx, day)
	if err != nil {
		return nil, err
	}
	return ToLedgerEntryResponses(entries), nil
}

// RebuildProjection re-folds one agent's ledger under its row lock and
// reports whether the stored totals had drifted
func (s *SettlementService) RebuildProjection(ctx context.Context, agentID uuid.UUID) (bool, error) {
	updated := false
	_, err := s.withAgent(ctx, agentID, OpRebuildProjection, func(tx *ledgerTx) error {
		entries, err := tx.repos.Ledger().Query(tx.ctx, agentID, settlement.LedgerQuery{})
		if err != nil {
			return err
		}
		b := settlement.ComputeBalance(entries, nil)
		if tx.agent.TotalOwed.Equal(b.ProjectedOwed()) && tx.agent.TotalPaid.Equal(b.ProjectedPaid()) {
			return nil
		}
		updated = true
		tx.dirty = true
		return nil
	})
	return updated, err
}

// RebuildProjections re-folds every agent. Each agent is rebuilt in its own
// transaction so a long run never holds more than one agent lock.
func (s *SettlementService) RebuildProjections(ctx context.Context) (*RebuildResult, error) {
	ids, err := s.repos.Agents().ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	result := &RebuildResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		updated, err := s.RebuildProjection(ctx, id)
		if err != nil {
			return result, err
		}
		result.Agents++
		if updated {
			result.Updated++
			s.logger.Warn("agent projection drift repaired", zap.String("agent_id", id.String()))
		}
	}

	s.logger.Info("projections rebuilt",
		zap.Int("agents", result.Agents),
		zap.Int("updated", result.Updated))
	return result, nil
}

// VerifyAgent recomputes the agent's receivable from order state and compares
// it with the ledger, all-time and for every day present in the ledger. It
// also checks the cached projection against a fresh fold.
func (s *SettlementService) VerifyAgent(ctx context.Context, agentID uuid.UUID) (*VerifyReport, error) {
	agent, err := s.repos.Agents().FindByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repos.Ledger().Query(ctx, agentID, settlement.LedgerQuery{})
	if err != nil {
		return nil, err
	}
	orders, err := s.repos.Orders().FindCarriedByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	orderIDs := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.ID
	}
	returns, err := s.repos.Returns().FindByOrders(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	check := func(day *time.Time) DayCheck {
		b := settlement.ComputeBalance(entries, day)
		fromOrders := settlement.ReceivableFromOrders(orders, returns, b.Paid, day, s.loc)
		c := DayCheck{
			FromLedger: b.Receivable,
			FromOrders: fromOrders,
			OK:         b.Receivable.Equal(fromOrders),
		}
		if day != nil {
			c.Date = day.Format(time.DateOnly)
		}
		return c
	}

	all := settlement.ComputeBalance(entries, nil)
	report := &VerifyReport{
		AgentID:        agentID,
		AllTime:        check(nil),
		ProjectionOwed: agent.TotalOwed.Equal(all.ProjectedOwed()),
		ProjectionPaid: agent.TotalPaid.Equal(all.ProjectedPaid()),
	}
	report.OK = report.AllTime.OK && report.ProjectionOwed && report.ProjectionPaid

	for _, day := range distinctDays(entries, orders, s.loc) {
		d := day
		c := check(&d)
		report.Days = append(report.Days, c)
		report.OK = report.OK && c.OK
	}
	return report, nil
}

// VerifyAll runs VerifyAgent for every agent with at most concurrency
// checks in flight
func (s *SettlementService) VerifyAll(ctx context.Context, concurrency int) ([]VerifyReport, error) {
	ids, err := s.repos.Agents().ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	reports := make([]VerifyReport, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			report, err := s.VerifyAgent(gctx, id)
			if err != nil {
				return err
			}
			reports[i] = *report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range reports {
		if !r.OK {
			failed++
			s.logger.Error("ledger cross-check failed", zap.String("agent_id", r.AgentID.String()))
		}
	}
	s.logger.Info("ledger verification finished",
		zap.Int("agents", len(reports)),
		zap.Int("failed", failed))
	return reports, nil
}

// distinctDays lists every attribution day seen in the entries or implied by
// the orders, ascending
func distinctDays(entries []*settlement.LedgerEntry, orders []*settlement.Order, loc *time.Location) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, e := range entries {
		seen[settlement.NormalizeDay(e.AttributionDate)] = struct{}{}
	}
	for _, o := range orders {
		if o.AssignedAt != nil {
			seen[settlement.DayOf(*o.AssignedAt, loc)] = struct{}{}
		}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}
