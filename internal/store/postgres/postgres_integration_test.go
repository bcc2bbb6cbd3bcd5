//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/service"
	"restopos/backend/internal/store"
	pgstore "restopos/backend/internal/store/postgres"
)

// Seeded catalog from 0002_seed_catalog: every product starts with 50 units.
const (
	nasiGoreng int64 = 1 // 25000
	mieAyam    int64 = 2 // 20000
	esTeh      int64 = 5 // 5000
	seedStock        = 50
)

func setupStore(t *testing.T) *pgstore.Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("restopos_test"),
		tcpostgres.WithUsername("restopos"),
		tcpostgres.WithPassword("restopos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := pgstore.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(zap.NewNop()))
	return s
}

func qty(n int) *int    { return &n }
func id(n int64) *int64 { return &n }

func stockOf(t *testing.T, s *pgstore.Store, productID int64) int {
	t.Helper()
	stock, err := s.GetStockMap(context.Background(), []int64{productID})
	require.NoError(t, err)
	return stock[productID]
}

func TestOrderLifecycleAgainstPostgres(t *testing.T) {
	s := setupStore(t)
	svc := service.New(s, nil, zap.NewNop(), "IDR")
	cashier := service.WithActor(context.Background(), domain.Actor{Username: "kasir", Role: domain.RoleCashier})
	admin := service.WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	lines := []domain.OrderLineRequest{
		{ProductID: nasiGoreng, Quantity: qty(3)},
		{ProductID: esTeh, Quantity: qty(1)},
	}

	t.Run("register pickup completes and books revenue", func(t *testing.T) {
		order, err := svc.CreateOrder(cashier, domain.OrderCreateRequest{PaymentMethod: "cash", Items: lines})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCompleted, order.Status)
		assert.Equal(t, int64(80000), order.FinalAmount.IntPart())

		entries, err := s.ListLedgerEntries(context.Background(), domain.LedgerFilter{RelatedID: id(order.ID)})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.LedgerRevenue, entries[0].Type)
		assert.Equal(t, seedStock-3, stockOf(t, s, nasiGoreng))
		assert.Equal(t, seedStock-1, stockOf(t, s, esTeh))
	})

	var online domain.Order
	t.Run("accepting twice books revenue once", func(t *testing.T) {
		var err error
		online, err = svc.CreateOrder(cashier, domain.OrderCreateRequest{
			Type:          domain.OrderTypeDelivery,
			CustomerID:    id(1001),
			PaymentMethod: "transfer",
			BankID:        id(1),
			Items:         lines,
		})
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusNew, online.Status)

		for i := 0; i < 2; i++ {
			_, err := svc.TransitionOrder(cashier, online.ID, domain.OrderStatusPreparing)
			require.NoError(t, err)
		}
		entries, err := s.ListLedgerEntries(context.Background(), domain.LedgerFilter{RelatedID: id(online.ID)})
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		banks, err := s.ListBanks(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(80000), banks[0].Balance.IntPart())
	})

	t.Run("second active mission is rejected", func(t *testing.T) {
		_, err := svc.TransitionOrder(cashier, online.ID, domain.OrderStatusReady)
		require.NoError(t, err)
		_, err = svc.AssignDriver(cashier, domain.DeliveryAssignRequest{OrderID: online.ID, DriverName: "Joko"})
		require.NoError(t, err)

		_, err = svc.AssignDriver(cashier, domain.DeliveryAssignRequest{OrderID: online.ID, DriverName: "Wati"})
		require.ErrorIs(t, err, store.ErrMissionAlreadyActive)
		missions, err := s.ListMissionsByOrder(context.Background(), online.ID)
		require.NoError(t, err)
		assert.Len(t, missions, 1)
	})

	t.Run("reject restores stock and books refund", func(t *testing.T) {
		before := stockOf(t, s, nasiGoreng)
		rejected, err := svc.TransitionOrder(cashier, online.ID, domain.OrderStatusRejected)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusRejected, rejected.Status)
		assert.Equal(t, before+3, stockOf(t, s, nasiGoreng))

		entries, err := s.ListLedgerEntries(context.Background(), domain.LedgerFilter{RelatedID: id(online.ID), Type: domain.LedgerExpense})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, int64(80000), entries[0].Amount.IntPart())

		missions, err := s.ListMissionsByOrder(context.Background(), online.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.MissionCancelled, missions[0].Status)
	})

	t.Run("insufficient stock rolls back the whole order", func(t *testing.T) {
		before := stockOf(t, s, nasiGoreng)
		_, err := svc.CreateOrder(cashier, domain.OrderCreateRequest{
			PaymentMethod: "cash",
			Items: []domain.OrderLineRequest{
				{ProductID: nasiGoreng, Quantity: qty(1)},
				{ProductID: esTeh, Quantity: qty(seedStock + 1)},
			},
		})
		var stockErr *store.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, "Es Teh", stockErr.ProductName)
		assert.Equal(t, before, stockOf(t, s, nasiGoreng))
	})

	t.Run("concurrent orders never oversell", func(t *testing.T) {
		var wg sync.WaitGroup
		var ok atomic.Int32
		for i := 0; i < seedStock+10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.CreateOrder(cashier, domain.OrderCreateRequest{
					PaymentMethod: "cash",
					Items:         []domain.OrderLineRequest{{ProductID: mieAyam}},
				})
				if err == nil {
					ok.Add(1)
				} else {
					assert.ErrorIs(t, err, store.ErrInsufficientStock)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(seedStock), ok.Load())
		assert.Equal(t, 0, stockOf(t, s, mieAyam))
	})

	t.Run("end of day restarts numbering and keeps the ledger", func(t *testing.T) {
		ledgerBefore, err := s.ListLedgerEntries(context.Background(), domain.LedgerFilter{})
		require.NoError(t, err)

		result, err := svc.ArchiveDay(admin)
		require.NoError(t, err)
		assert.Positive(t, result.ArchivedOrders)
		assert.Equal(t, 1, result.ArchivedMissions)

		orders, err := s.ListOrders(context.Background(), domain.OrderFilter{})
		require.NoError(t, err)
		assert.Empty(t, orders)

		ledgerAfter, err := s.ListLedgerEntries(context.Background(), domain.LedgerFilter{})
		require.NoError(t, err)
		assert.Len(t, ledgerAfter, len(ledgerBefore))

		next, err := svc.CreateOrder(cashier, domain.OrderCreateRequest{PaymentMethod: "cash", Items: []domain.OrderLineRequest{{ProductID: esTeh}}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), next.ID)
	})
}

func TestUsersAndNotificationsAgainstPostgres(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, domain.UserAccount{Username: "admin", Password: "$2a$10$hash", Role: domain.RoleAdmin, Active: true}))
	assert.ErrorIs(t, s.CreateUser(ctx, domain.UserAccount{Username: "admin", Password: "$2a$10$hash", Role: domain.RoleAdmin}), store.ErrConflict)

	require.NoError(t, s.CreateNotification(ctx, domain.Notification{ID: "ntf-1", UserID: 1001, Message: "Order #1 is ready", Link: "/orders/1"}))
	list, err := s.ListNotifications(ctx, 1001, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "/orders/1", list[0].Link)
}
