package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnLine is a caller request to return qty units of one order line
type ReturnLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// ReturnedItem is a line item captured on a ReturnRecord
type ReturnedItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ReturnRecord documents the goods that came back on one order
type ReturnRecord struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	CustomerID     uuid.UUID
	AgentID        *uuid.UUID
	ReturnAmount   decimal.Decimal
	Items          []ReturnedItem
	RemoveShipping bool
	Note           string
	CreatedAt      time.Time
}
