package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceivableFromOrders recomputes an agent's receivable from order state alone,
// without reading Owed/Delivered/Return/Modification entries. paid is the sum
// of the agent's Payment entries in the same window. The result must equal
// ComputeBalance(entries, day).Receivable for a consistent ledger.
//
// orders must contain every order the agent ever carried, including orders
// whose AgentID was cleared by a return without shipping.
func ReceivableFromOrders(orders []*Order, returns []*ReturnRecord, paid decimal.Decimal, day *time.Time, loc *time.Location) decimal.Decimal {
	returned := make(map[uuid.UUID]decimal.Decimal, len(returns))
	for _, r := range returns {
		returned[r.OrderID] = returned[r.OrderID].Add(r.ReturnAmount)
	}

	total := decimal.Zero
	for _, o := range orders {
		if o == nil || !o.IsAssigned() {
			continue
		}
		if day != nil && !SameDay(DayOf(*o.AssignedAt, loc), *day) {
			continue
		}
		total = total.
			Add(o.AgentDue()).
			Sub(o.DeliveredAmount).
			Sub(returned[o.ID])
	}
	return total.Sub(paid)
}
