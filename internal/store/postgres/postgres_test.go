package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

var mockNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestDecrementStockNamesProductWhenGuardFails(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE inventory").
		WithArgs(int64(3), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM products").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Sate Ayam"))
	mock.ExpectRollback()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.DecrementStock(ctx, 3, 5)
	})

	var stockErr *store.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Sate Ayam", stockErr.ProductName)
	assert.Equal(t, 5, stockErr.Requested)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusReportsConflictWhenStatusMoved(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.UpdateOrderStatus(ctx, 7, domain.OrderStatusNew, domain.OrderStatusPreparing, domain.PaymentStatusPaid, mockNow)
	})
	require.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMissionMapsActiveMissionIndex(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO delivery_missions").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "delivery_missions_one_active_idx"})
	mock.ExpectRollback()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.InsertMission(ctx, domain.DeliveryMission{
			OrderID:    4,
			DriverName: "Budi",
			Commission: decimal.NewFromInt(5000),
			Status:     domain.MissionAssigned,
			AssignedAt: mockNow,
		})
		return err
	})
	require.ErrorIs(t, err, store.ErrMissionAlreadyActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRetriesSerializationFailure(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inventory").WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inventory").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		attempts++
		return tx.SetStock(ctx, 1, 12)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxDoesNotRetryOtherErrors(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetDayTruncatesWithIdentityRestart(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"orders", "lines", "missions"}).AddRow(2, 5, 1))
	mock.ExpectExec("TRUNCATE delivery_missions, order_lines, orders RESTART IDENTITY CASCADE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var result domain.ArchiveResult
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		result, err = tx.ResetDay(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ArchivedOrders)
	assert.Equal(t, 5, result.ArchivedLines)
	assert.Equal(t, 1, result.ArchivedMissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustBankBalanceUnknownBank(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE banks").
		WithArgs("Nowhere", decimal.NewFromInt(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "balance"}))
	mock.ExpectRollback()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.AdjustBankBalance(ctx, "Nowhere", decimal.NewFromInt(10))
		return err
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
