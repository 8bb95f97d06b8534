package settlement

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
)

// Balance is the point-in-time result of folding an agent's ledger.
// Receivable >= 0 means the agent owes the business; negative means the
// business owes the agent.
type Balance struct {
	Owed             decimal.Decimal `json:"owed"`
	Paid             decimal.Decimal `json:"paid"`
	Delivered        decimal.Decimal `json:"delivered"`
	Returns          decimal.Decimal `json:"returns"` // signed, <= 0
	Modifications    decimal.Decimal `json:"modifications"`
	NetRequired      decimal.Decimal `json:"net_required"`
	Receivable       decimal.Decimal `json:"receivable"`
	DeliveredResets  decimal.Decimal `json:"delivered_resets"`
	DeliveredNet     decimal.Decimal `json:"delivered_net"`
	ReturnsAbs       decimal.Decimal `json:"returns_abs"`
	ReturnResets     decimal.Decimal `json:"return_resets"`
	RemainingReturns decimal.Decimal `json:"remaining_returns"`
	EntryCount       int             `json:"entry_count"`
}

// ComputeBalance folds entries into a Balance. When day is non-nil only
// entries attributed to that day are considered (daily view); otherwise the
// fold covers all time.
func ComputeBalance(entries []*LedgerEntry, day *time.Time) Balance {
	sums := make(map[EntryType]decimal.Decimal, len(AllEntryTypes))
	count := 0
	for _, e := range entries {
		if e == nil {
			continue
		}
		if day != nil && !e.IsOnDay(*day) {
			continue
		}
		sums[e.Type] = sums[e.Type].Add(e.Amount)
		count++
	}

	b := Balance{
		Owed:            sums[EntryTypeOwed],
		Paid:            sums[EntryTypePayment],
		Delivered:       sums[EntryTypeDelivered],
		Returns:         sums[EntryTypeReturn],
		Modifications:   sums[EntryTypeModification],
		DeliveredResets: sums[EntryTypeDeliveredReset],
		ReturnResets:    sums[EntryTypeReturnReset],
		EntryCount:      count,
	}
	b.NetRequired = b.Owed.Add(b.Modifications).Add(b.Returns)
	b.Receivable = b.NetRequired.Sub(b.Delivered).Sub(b.Paid)
	b.DeliveredNet = valueobject.MaxZero(b.Delivered.Sub(b.DeliveredResets))
	b.ReturnsAbs = b.Returns.Abs()
	b.RemainingReturns = valueobject.MaxZero(b.ReturnsAbs.Sub(b.ReturnResets))
	return b
}

// ProjectedOwed is the value cached as Agent.TotalOwed
func (b Balance) ProjectedOwed() decimal.Decimal {
	return b.NetRequired
}

// ProjectedPaid is the value cached as Agent.TotalPaid
func (b Balance) ProjectedPaid() decimal.Decimal {
	return b.Delivered.Add(b.Paid)
}
