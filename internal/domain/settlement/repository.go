package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AgentFilter contains filter options for listing agents
type AgentFilter struct {
	Search    string
	Active    *bool
	SortBy    string // column name; unknown values fall back to serial order
	SortOrder string // asc or desc
	Page      int
	PageSize  int
}

// AgentRepository defines the interface for agent persistence
type AgentRepository interface {
	// FindByID finds an agent by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Agent, error)

	// FindByIDForUpdate finds an agent and takes a row lock held until the
	// surrounding transaction ends. All per-agent writes go through it first.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Agent, error)

	// FindAll lists agents with filtering
	FindAll(ctx context.Context, filter AgentFilter) ([]*Agent, int64, error)

	// ListIDs returns every agent ID
	ListIDs(ctx context.Context) ([]uuid.UUID, error)

	// ExistsBySerialNumber checks whether a serial number is taken
	ExistsBySerialNumber(ctx context.Context, serialNumber int) (bool, error)

	// Save creates or updates an agent
	Save(ctx context.Context, agent *Agent) error

	// UpdateProjection writes only the cached totals
	UpdateProjection(ctx context.Context, agent *Agent) error
}

// OrderFilter contains filter options for listing orders
type OrderFilter struct {
	AgentID   *uuid.UUID
	Status    *OrderStatus
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// Create persists a new order and assigns its sequence number
	Create(ctx context.Context, order *Order) error

	// FindByID finds an order with its items
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByIDForUpdate finds an order and locks its row
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByAgentForUpdate locks and returns the agent's orders in the given statuses
	FindByAgentForUpdate(ctx context.Context, agentID uuid.UUID, statuses ...OrderStatus) ([]*Order, error)

	// FindCarriedByAgent returns every order currently assigned to the agent
	// or referenced by one of the agent's ledger entries
	FindCarriedByAgent(ctx context.Context, agentID uuid.UUID) ([]*Order, error)

	// FindAll lists orders with filtering
	FindAll(ctx context.Context, filter OrderFilter) ([]*Order, int64, error)

	// Save updates an order's mutable fields
	Save(ctx context.Context, order *Order) error
}

// LedgerQuery narrows an agent's ledger read
type LedgerQuery struct {
	Day     *time.Time
	Types   []EntryType
	OrderID *uuid.UUID
}

// LedgerEntryFilter contains filter options for paging ledger history
type LedgerEntryFilter struct {
	AgentID  *uuid.UUID
	OrderID  *uuid.UUID
	Type     *EntryType
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}

// LedgerEntryRepository is the append-only entry store
type LedgerEntryRepository interface {
	// Append validates and persists an immutable entry. It fails with
	// NOT_FOUND if the agent does not exist.
	Append(ctx context.Context, entry *LedgerEntry) error

	// Query returns an agent's entries ordered by record time
	Query(ctx context.Context, agentID uuid.UUID, q LedgerQuery) ([]*LedgerEntry, error)

	// FindByOrder returns all entries tied to an order
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*LedgerEntry, error)

	// FindByDay returns every entry attributed to day, across agents
	FindByDay(ctx context.Context, day time.Time) ([]*LedgerEntry, error)

	// List pages through entries with filtering
	List(ctx context.Context, filter LedgerEntryFilter) ([]*LedgerEntry, int64, error)

	// ReattributeOrder moves every entry of an order to day and returns the
	// number of entries moved
	ReattributeOrder(ctx context.Context, orderID uuid.UUID, day time.Time) (int64, error)

	// DeletePayments removes the agent's outstanding Payment entries and
	// returns how many were removed and their sum
	DeletePayments(ctx context.Context, agentID uuid.UUID) (int64, decimal.Decimal, error)
}

// ReturnRecordRepository defines the interface for return record persistence
type ReturnRecordRepository interface {
	// Create persists a return record
	Create(ctx context.Context, record *ReturnRecord) error

	// FindByOrder returns the records of an order
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*ReturnRecord, error)

	// FindByOrders returns the records of several orders
	FindByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]*ReturnRecord, error)
}
