package settlement

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/shared"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Agent is a delivery agent. TotalOwed and TotalPaid are memoized projections
// of the agent's ledger and are only ever written by ApplyBalance.
type Agent struct {
	shared.BaseAggregateRoot
	Name         string
	NameKey      string // normalized, case-folded name used for search
	Phone        string
	SerialNumber int
	Active       bool
	TotalOwed    decimal.Decimal
	TotalPaid    decimal.Decimal
}

// NewAgent creates a new active agent with zero projections
func NewAgent(name, phone string, serialNumber int) (*Agent, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Agent name cannot be empty")
	}
	if len(name) > 100 {
		return nil, shared.NewDomainError("INVALID_NAME", "Agent name cannot exceed 100 characters")
	}
	if serialNumber <= 0 {
		return nil, shared.NewDomainError("INVALID_SERIAL_NUMBER", "Serial number must be positive")
	}

	agent := &Agent{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		NameKey:           NameKey(name),
		Phone:             strings.TrimSpace(phone),
		SerialNumber:      serialNumber,
		Active:            true,
		TotalOwed:         decimal.Zero,
		TotalPaid:         decimal.Zero,
	}
	agent.Raise(NewAgentCreatedEvent(agent))
	return agent, nil
}

// NormalizeName trims and NFC-normalizes a display name
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// NameKey returns the search key for a name
func NameKey(name string) string {
	return cases.Fold().String(NormalizeName(name))
}

// Receivable returns the cached all-time receivable
func (a *Agent) Receivable() decimal.Decimal {
	return a.TotalOwed.Sub(a.TotalPaid)
}

// ApplyBalance overwrites the cached projections with a freshly folded
// all-time balance and records that the agent's ledger changed.
func (a *Agent) ApplyBalance(b Balance, operation string) {
	a.TotalOwed = b.ProjectedOwed()
	a.TotalPaid = b.ProjectedPaid()
	a.Touch()
	a.Raise(NewAgentLedgerChangedEvent(a, operation))
}

// EnsureActive fails for deactivated agents
func (a *Agent) EnsureActive() error {
	if !a.Active {
		return shared.NewDomainError("AGENT_INACTIVE", "Agent is not active")
	}
	return nil
}

// Deactivate stops the agent from receiving new orders
func (a *Agent) Deactivate() {
	if !a.Active {
		return
	}
	a.Active = false
	a.Touch()
}
