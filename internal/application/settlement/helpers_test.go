package settlement_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	db      *gorm.DB
	seq     persistence.Sequencer
	repos   *persistence.GormSettlementRepositories
	clock   *testClock
	service *appsettlement.SettlementService
}

var day1 = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllSettlementModels()...))

	seq, err := persistence.NewSnowflakeSequencer(1)
	require.NoError(t, err)

	env := &testEnv{
		db:    db,
		seq:   seq,
		repos: persistence.NewGormSettlementRepositories(db, seq),
		clock: &testClock{now: day1.Add(9 * time.Hour)},
	}
	env.service = env.newService(persistence.NewGormTransactionScope(db, seq))
	return env
}

func (e *testEnv) newService(scope appsettlement.TransactionScope) *appsettlement.SettlementService {
	svc := appsettlement.NewSettlementService(scope, e.repos, appsettlement.ServiceConfig{
		Location: time.UTC,
		Now:      e.clock.Now,
	}, zap.NewNop())
	svc.SetAuthorizer(appsettlement.AllowAllAuthorizer)
	return svc
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) createAgent(t *testing.T, serial int) uuid.UUID {
	t.Helper()
	agent, err := e.service.CreateAgent(context.Background(), appsettlement.CreateAgentRequest{
		Name:         fmt.Sprintf("Agent %d", serial),
		Phone:        "0100",
		SerialNumber: serial,
	})
	require.NoError(t, err)
	return agent.ID
}

// createOrder creates a single-line order with the given charge
func (e *testEnv) createOrder(t *testing.T, charge, customerShipping string) *appsettlement.OrderResponse {
	t.Helper()
	return e.createOrderWithItems(t, []appsettlement.CreateOrderItemInput{
		{ProductID: uuid.New(), Name: "Item", Quantity: 1, UnitPrice: dec(charge)},
	}, "0", customerShipping)
}

func (e *testEnv) createOrderWithItems(t *testing.T, items []appsettlement.CreateOrderItemInput, discount, customerShipping string) *appsettlement.OrderResponse {
	t.Helper()
	order, err := e.service.CreateOrder(context.Background(), appsettlement.CreateOrderRequest{
		CustomerID:           uuid.New(),
		Items:                items,
		Discount:             dec(discount),
		CustomerShippingCost: dec(customerShipping),
	})
	require.NoError(t, err)
	return order
}

func (e *testEnv) assign(t *testing.T, orderID, agentID uuid.UUID, agentShipping string) {
	t.Helper()
	_, err := e.service.AssignToAgent(context.Background(), orderID, agentID, dec(agentShipping))
	require.NoError(t, err)
}

func (e *testEnv) entries(t *testing.T, agentID uuid.UUID, types ...settlement.EntryType) []*settlement.LedgerEntry {
	t.Helper()
	entries, err := e.repos.Ledger().Query(context.Background(), agentID, settlement.LedgerQuery{Types: types})
	require.NoError(t, err)
	return entries
}

func (e *testEnv) balance(t *testing.T, agentID uuid.UUID, day *time.Time) settlement.Balance {
	t.Helper()
	b, err := e.service.GetBalance(context.Background(), agentID, day)
	require.NoError(t, err)
	return b.Balance
}

func (e *testEnv) requireConsistent(t *testing.T, agentID uuid.UUID) {
	t.Helper()
	report, err := e.service.VerifyAgent(context.Background(), agentID)
	require.NoError(t, err)
	require.True(t, report.OK, "cross-check failed: %+v", report)
}

var errInjected = errors.New("injected failure")

// failingScope wraps a real scope and makes one repository call fail
type failingScope struct {
	inner        appsettlement.TransactionScope
	failOrders   bool
	failPayments bool
}

func (s *failingScope) Execute(ctx context.Context, fn func(repos appsettlement.TransactionalRepositories) error) error {
	return s.inner.Execute(ctx, func(repos appsettlement.TransactionalRepositories) error {
		return fn(&failingRepos{TransactionalRepositories: repos, scope: s})
	})
}

type failingRepos struct {
	appsettlement.TransactionalRepositories
	scope *failingScope
}

func (r *failingRepos) Orders() settlement.OrderRepository {
	return &failingOrderRepo{OrderRepository: r.TransactionalRepositories.Orders(), fail: r.scope.failOrders}
}

func (r *failingRepos) Ledger() settlement.LedgerEntryRepository {
	return &failingLedgerRepo{LedgerEntryRepository: r.TransactionalRepositories.Ledger(), fail: r.scope.failPayments}
}

type failingOrderRepo struct {
	settlement.OrderRepository
	fail bool
}

func (r *failingOrderRepo) Save(ctx context.Context, order *settlement.Order) error {
	if r.fail {
		return errInjected
	}
	return r.OrderRepository.Save(ctx, order)
}

type failingLedgerRepo struct {
	settlement.LedgerEntryRepository
	fail bool
}

func (r *failingLedgerRepo) DeletePayments(ctx context.Context, agentID uuid.UUID) (int64, decimal.Decimal, error) {
	if r.fail {
		return 0, decimal.Zero, errInjected
	}
	return r.LedgerEntryRepository.DeletePayments(ctx, agentID)
}

func (r *failingLedgerRepo) ReattributeOrder(ctx context.Context, orderID uuid.UUID, day time.Time) (int64, error) {
	if r.fail {
		return 0, errInjected
	}
	return r.LedgerEntryRepository.ReattributeOrder(ctx, orderID, day)
}

// memoryBalanceCache is a map-backed BalanceCache
type memoryBalanceCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]appsettlement.CachedBalance
	hits    int
}

func newMemoryBalanceCache() *memoryBalanceCache {
	return &memoryBalanceCache{entries: make(map[uuid.UUID]appsettlement.CachedBalance)}
}

func (c *memoryBalanceCache) Get(_ context.Context, agentID uuid.UUID) (*appsettlement.CachedBalance, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[agentID]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return &v, true, nil
}

func (c *memoryBalanceCache) Set(_ context.Context, agentID uuid.UUID, v appsettlement.CachedBalance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[agentID] = v
	return nil
}

func (c *memoryBalanceCache) Invalidate(_ context.Context, agentID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, agentID)
	return nil
}
