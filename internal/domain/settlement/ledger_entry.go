package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
)

// EntryType tags the meaning of a ledger entry amount
type EntryType string

const (
	// EntryTypeOwed is recorded when an order is handed to an agent
	EntryTypeOwed EntryType = "OWED"
	// EntryTypePayment is an advance payment made by the agent
	EntryTypePayment EntryType = "PAYMENT"
	// EntryTypeDelivered is recorded when the agent delivers an order
	EntryTypeDelivered EntryType = "DELIVERED"
	// EntryTypeReturn is the (negative) value of returned goods
	EntryTypeReturn EntryType = "RETURN"
	// EntryTypeModification corrects a previous Owed amount
	EntryTypeModification EntryType = "MODIFICATION"
	// EntryTypeDeliveredReset closes out the running delivered figure
	EntryTypeDeliveredReset EntryType = "DELIVERED_RESET"
	// EntryTypeReturnReset closes out the running returns figure
	EntryTypeReturnReset EntryType = "RETURN_RESET"
)

// AllEntryTypes lists every entry type in a stable order
var AllEntryTypes = []EntryType{
	EntryTypeOwed,
	EntryTypePayment,
	EntryTypeDelivered,
	EntryTypeReturn,
	EntryTypeModification,
	EntryTypeDeliveredReset,
	EntryTypeReturnReset,
}

// String returns the string representation of EntryType
func (t EntryType) String() string {
	return string(t)
}

// IsValid returns true if the entry type is valid
func (t EntryType) IsValid() bool {
	switch t {
	case EntryTypeOwed,
		EntryTypePayment,
		EntryTypeDelivered,
		EntryTypeReturn,
		EntryTypeModification,
		EntryTypeDeliveredReset,
		EntryTypeReturnReset:
		return true
	}
	return false
}

// IsReset returns true for period-closing entry types
func (t EntryType) IsReset() bool {
	return t == EntryTypeDeliveredReset || t == EntryTypeReturnReset
}

// LedgerEntry is an immutable, signed monetary fact tied to one agent and
// usually one order. Corrections are made with new entries.
type LedgerEntry struct {
	ID              uuid.UUID
	Sequence        int64 // assigned by the store, orders entries sharing a CreatedAt
	AgentID         uuid.UUID
	OrderID         *uuid.UUID
	Type            EntryType
	Amount          decimal.Decimal
	AttributionDate time.Time // civil day, midnight UTC
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	Note            string
	CreatedAt       time.Time
}

// NewLedgerEntry creates a new ledger entry after validating the amount
// against the sign rules of its type.
func NewLedgerEntry(agentID uuid.UUID, entryType EntryType, amount decimal.Decimal, attributionDate time.Time) (*LedgerEntry, error) {
	if agentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_AGENT", "Agent ID cannot be empty")
	}
	if !entryType.IsValid() {
		return nil, shared.NewDomainError("INVALID_ENTRY_TYPE", "Invalid ledger entry type")
	}
	if attributionDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_DATE", "Attribution date is required")
	}
	if err := validateEntryAmount(entryType, amount); err != nil {
		return nil, err
	}

	return &LedgerEntry{
		ID:              uuid.New(),
		AgentID:         agentID,
		Type:            entryType,
		Amount:          valueobject.RoundMoney(amount),
		AttributionDate: NormalizeDay(attributionDate),
		CreatedAt:       time.Now(),
	}, nil
}

func validateEntryAmount(entryType EntryType, amount decimal.Decimal) error {
	if !valueobject.IsMoney(amount) {
		return shared.NewDomainError("INVALID_AMOUNT", "Amount must have at most 2 decimal places")
	}
	switch entryType {
	case EntryTypePayment:
		if !amount.IsPositive() {
			return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
		}
	case EntryTypeReturn:
		if amount.IsPositive() {
			return shared.NewDomainError("INVALID_AMOUNT", "Return amount must not be positive")
		}
	case EntryTypeDeliveredReset, EntryTypeReturnReset:
		if amount.IsNegative() {
			return shared.NewDomainError("INVALID_AMOUNT", "Reset amount must not be negative")
		}
	}
	return nil
}

// WithOrder ties the entry to an order
func (e *LedgerEntry) WithOrder(orderID uuid.UUID) *LedgerEntry {
	e.OrderID = &orderID
	return e
}

// WithNote sets the note for the entry
func (e *LedgerEntry) WithNote(note string) *LedgerEntry {
	e.Note = note
	return e
}

// WithPeriod records the attribution-date range a reset entry closes
func (e *LedgerEntry) WithPeriod(start, end time.Time) *LedgerEntry {
	s, en := NormalizeDay(start), NormalizeDay(end)
	e.PeriodStart = &s
	e.PeriodEnd = &en
	return e
}

// WithCreatedAt overrides the record time
func (e *LedgerEntry) WithCreatedAt(t time.Time) *LedgerEntry {
	e.CreatedAt = t
	return e
}

// IsOnDay reports whether the entry is attributed to day
func (e *LedgerEntry) IsOnDay(day time.Time) bool {
	return SameDay(e.AttributionDate, day)
}
