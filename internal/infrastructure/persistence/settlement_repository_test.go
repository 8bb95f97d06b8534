package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDay = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func setupSettlementTestDB(t *testing.T) (*gorm.DB, Sequencer) {
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
	seq, err := NewSnowflakeSequencer(3)
	require.NoError(t, err)
	return db, seq
}

func seedAgent(t *testing.T, db *gorm.DB, serial int) *settlement.Agent {
	t.Helper()
	agent, err := settlement.NewAgent(fmt.Sprintf("Agent %d", serial), "", serial)
	require.NoError(t, err)
	require.NoError(t, NewGormAgentRepository(db).Save(context.Background(), agent))
	return agent
}

func seedOrder(t *testing.T, db *gorm.DB, seq Sequencer) *settlement.Order {
	t.Helper()
	order, err := settlement.NewOrder(uuid.New(), []settlement.OrderItem{
		{ProductID: uuid.New(), Name: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")},
		{ProductID: uuid.New(), Name: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("5")},
	}, decimal.Zero, decimal.NewFromInt(3))
	require.NoError(t, err)
	require.NoError(t, NewGormOrderRepository(db, seq).Create(context.Background(), order))
	return order
}

func newEntry(t *testing.T, agentID uuid.UUID, typ settlement.EntryType, amount string, day time.Time) *settlement.LedgerEntry {
	t.Helper()
	e, err := settlement.NewLedgerEntry(agentID, typ, decimal.RequireFromString(amount), day)
	require.NoError(t, err)
	return e
}

func TestGormLedgerEntryRepository_Append(t *testing.T) {
	db, seq := setupSettlementTestDB(t)
	repo := NewGormLedgerEntryRepository(db, seq)
	ctx := context.Background()
	agent := seedAgent(t, db, 1)

	t.Run("assigns a sequence", func(t *testing.T) {
		e := newEntry(t, agent.ID, settlement.EntryTypeOwed, "10.25", testDay)
		require.NoError(t, repo.Append(ctx, e))
		assert.NotZero(t, e.Sequence)

		stored, err := repo.Query(ctx, agent.ID, settlement.LedgerQuery{})
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "10.25", stored[0].Amount.StringFixed(2))
		assert.True(t, stored[0].AttributionDate.Equal(testDay))
	})

	t.Run("unknown agent", func(t *testing.T) {
		e := newEntry(t, uuid.New(), settlement.EntryTypeOwed, "1", testDay)
		err := repo.Append(ctx, e)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("sub-cent amount", func(t *testing.T) {
		e := newEntry(t, agent.ID, settlement.EntryTypeOwed, "1", testDay)
		e.Amount = decimal.RequireFromString("0.001")
		err := repo.Append(ctx, e)
		require.Error(t, err)
		assert.Equal(t, "VALIDATION_ERROR", shared.CodeOf(err))
	})
}

func TestGormLedgerEntryRepository_QueryOrdering(t *testing.T) {
	db, seq := setupSettlementTestDB(t)
	repo := NewGormLedgerEntryRepository(db, seq)
	ctx := context.Background()
	agent := seedAgent(t, db, 1)
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	types := []settlement.EntryType{settlement.EntryTypeOwed, settlement.EntryTypeModification, settlement.EntryTypeDelivered}
	for _, typ := range types {
		require.NoError(t, repo.Append(ctx, newEntry(t, agent.ID, typ, "5", testDay).WithCreatedAt(at)))
	}
	require.NoError(t, repo.Append(ctx, newEntry(t, agent.ID, settlement.EntryTypePayment, "2", testDay.AddDate(0, 0, 1)).WithCreatedAt(at.Add(-time.Hour))))

	all, err := repo.Query(ctx, agent.ID, settlement.LedgerQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, settlement.EntryTypePayment, all[0].Type)
	for i, typ := range types {
		assert.Equal(t, typ, all[i+1].Type)
	}

	day := testDay
	onDay, err := repo.Query(ctx, agent.ID, settlement.LedgerQuery{Day: &day})
	require.NoError(t, err)
	assert.Len(t, onDay, 3)

	payments, err := repo.Query(ctx, agent.ID, settlement.LedgerQuery{Types: []settlement.EntryType{settlement.EntryTypePayment}})
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	page, total, err := repo.List(ctx, settlement.LedgerEntryFilter{AgentID: &agent.ID, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, page, 2)
	assert.Equal(t, settlement.EntryTypeDelivered, page[0].Type)

	byDay, err := repo.FindByDay(ctx, testDay)
	require.NoError(t, err)
	assert.Len(t, byDay, 3)
}

func TestGormLedgerEntryRepository_ReattributeAndDelete(t *testing.T) {
	db, seq := setupSettlementTestDB(t)
	repo := NewGormLedgerEntryRepository(db, seq)
	ctx := context.Background()
	agent := seedAgent(t, db, 1)
	orderID := uuid.New()

	require.NoError(t, repo.Append(ctx, newEntry(t, agent.ID, settlement.EntryTypeOwed, "30", testDay).WithOrder(orderID)))
	require.NoError(t, repo.Append(ctx, newEntry(t, agent.ID, settlement.EntryTypeReturn, "-10", testDay).WithOrder(orderID)))
	require.NoError(t, repo.Append(ctx, newEntry(t, agent.ID, settlement.EntryTypePayment, "4", testDay)))
	require.NoError(t, repo.Append(ctx, newEntry(t, agent.ID, settlement.EntryTypePayment, "6.5", testDay)))

	next := testDay.AddDate(0, 0, 2)
	moved, err := repo.ReattributeOrder(ctx, orderID, next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	entries, err := repo.FindByOrder(ctx, orderID)
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.AttributionDate.Equal(next))
	}

	count, sum, err := repo.DeletePayments(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "10.50", sum.StringFixed(2))

	count, sum, err = repo.DeletePayments(ctx, agent.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, sum.IsZero())
}

func TestGormOrderRepository_RoundTrip(t *testing.T) {
	db, seq := setupSettlementTestDB(t)
	repo := NewGormOrderRepository(db, seq)
	ctx := context.Background()
	agent := seedAgent(t, db, 1)
	order := seedOrder(t, db, seq)
	assert.NotZero(t, order.SequenceNumber)

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, "A", loaded.Items[0].Name)
	assert.Equal(t, "30.00", loaded.CustomerChargeAmount.StringFixed(2))

	now := time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)
	_, err = loaded.AssignTo(agent.ID, decimal.NewFromInt(2), now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, loaded))

	locked, err := repo.FindByIDForUpdate(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, locked.AgentID)
	assert.Equal(t, agent.ID, *locked.AgentID)
	assert.Equal(t, settlement.OrderStatusShipped, locked.Status)
	assert.True(t, locked.AssignedAt.Equal(now))

	carrying, err := repo.FindByAgentForUpdate(ctx, agent.ID, settlement.SettleableStatuses...)
	require.NoError(t, err)
	assert.Len(t, carrying, 1)

	list, total, err := repo.FindAll(ctx, settlement.OrderFilter{AgentID: &agent.ID, Page: 1, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormOrderRepository_FindCarriedByAgent(t *testing.T) {
	db, seq := setupSettlementTestDB(t)
	repo := NewGormOrderRepository(db, seq)
	ledger := NewGormLedgerEntryRepository(db, seq)
	ctx := context.Background()
	agent := seedAgent(t, db, 1)

	released := seedOrder(t, db, seq)
	_ = seedOrder(t, db, seq)
	require.NoError(t, ledger.Append(ctx, newEntry(t, agent.ID, settlement.EntryTypeOwed, "33", testDay).WithOrder(released.ID)))

	orders, err := repo.FindCarriedByAgent(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, released.ID, orders[0].ID)
}

func TestGormAgentRepository(t *testing.T) {
	db, _ := setupSettlementTestDB(t)
	repo := NewGormAgentRepository(db)
	ctx := context.Background()
	a := seedAgent(t, db, 4)
	_ = seedAgent(t, db, 2)

	exists, err := repo.ExistsBySerialNumber(ctx, 4)
	require.NoError(t, err)
	assert.True(t, exists)

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, a.ID, ids[1])

	a.ApplyBalance(settlement.Balance{
		NetRequired: decimal.RequireFromString("12.34"),
		Delivered:   decimal.RequireFromString("2"),
		Paid:        decimal.RequireFromString("0.34"),
	}, "test")
	require.NoError(t, repo.UpdateProjection(ctx, a))

	loaded, err := repo.FindByIDForUpdate(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.34", loaded.TotalOwed.StringFixed(2))
	assert.Equal(t, "2.34", loaded.TotalPaid.StringFixed(2))

	found, total, err := repo.FindAll(ctx, settlement.AgentFilter{Search: "agent 4"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)

	sorted, _, err := repo.FindAll(ctx, settlement.AgentFilter{SortBy: "total_owed", SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, sorted, 2)
	assert.Equal(t, a.ID, sorted[0].ID)

	bySerial, _, err := repo.FindAll(ctx, settlement.AgentFilter{SortBy: "phone; DROP TABLE agents"})
	require.NoError(t, err)
	require.Len(t, bySerial, 2)
	assert.Equal(t, 2, bySerial[0].SerialNumber)

	missing := &settlement.Agent{}
	missing.ID = uuid.New()
	assert.ErrorIs(t, repo.UpdateProjection(ctx, missing), shared.ErrNotFound)
}

func TestGormReturnRecordRepository(t *testing.T) {
	db, seq := setupSettlementTestDB(t)
	repo := NewGormReturnRecordRepository(db)
	ctx := context.Background()
	order := seedOrder(t, db, seq)

	record := &settlement.ReturnRecord{
		ID:           uuid.New(),
		OrderID:      order.ID,
		CustomerID:   order.CustomerID,
		ReturnAmount: decimal.RequireFromString("12.50"),
		Items: []settlement.ReturnedItem{
			{ProductID: order.Items[0].ProductID, Name: "A", Quantity: 1, UnitPrice: decimal.RequireFromString("12.50")},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, record))

	records, err := repo.FindByOrders(ctx, []uuid.UUID{order.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0].Items, 1)
	assert.Equal(t, "A", records[0].Items[0].Name)
	assert.Equal(t, "12.50", records[0].Items[0].UnitPrice.StringFixed(2))

	none, err := repo.FindByOrders(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormTransactionScope_Rollback(t *testing.T) {
	db, seq := setupSettlementTestDB(t)
	scope := NewGormTransactionScope(db, seq)
	ctx := context.Background()

	boom := fmt.Errorf("boom")
	err := scope.Execute(ctx, func(repos appsettlement.TransactionalRepositories) error {
		agent, err := settlement.NewAgent("Rolled Back", "", 9)
		require.NoError(t, err)
		require.NoError(t, repos.Agents().Save(ctx, agent))
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := NewGormAgentRepository(db).ExistsBySerialNumber(ctx, 9)
	require.NoError(t, err)
	assert.False(t, exists)
}

// newMockLockingDB opens a postgres-dialect GORM DB over sqlmock
func newMockLockingDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return gormDB, mock, mockDB
}

func TestGormAgentRepository_FindByIDForUpdate_LocksRow(t *testing.T) {
	gormDB, mock, mockDB := newMockLockingDB(t)
	defer mockDB.Close()

	id := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "name", "name_key", "serial_number", "active", "total_owed", "total_paid", "version"}).
		AddRow(id, "Ana", "ana", 1, true, "0", "0", 1)
	mock.ExpectQuery(`SELECT \* FROM "agents" WHERE id = \$1 ORDER BY .* LIMIT .* FOR UPDATE`).
		WithArgs(id, 1).
		WillReturnRows(rows)

	agent, err := NewGormAgentRepository(gormDB).FindByIDForUpdate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", agent.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOrderRepository_FindByAgentForUpdate_LocksRows(t *testing.T) {
	gormDB, mock, mockDB := newMockLockingDB(t)
	defer mockDB.Close()

	agentID := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE agent_id = \$1 AND status IN \(\$2,\$3\) ORDER BY sequence_number ASC FOR UPDATE`).
		WithArgs(agentID, settlement.OrderStatusPending, settlement.OrderStatusShipped).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	orders, err := NewGormOrderRepository(gormDB, nil).FindByAgentForUpdate(context.Background(), agentID, settlement.SettleableStatuses...)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}
