package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrMissionAlreadyActive = errors.New("delivery mission already active")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrConflict             = errors.New("conflict")
)

// InsufficientStockError names the product whose guarded decrement failed.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s (requested %d)", name, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Tx is the set of writes that make up one atomic unit. Every method runs
// inside the transaction opened by Repository.WithinTx.
type Tx interface {
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)

	// DecrementStock applies quantity = quantity - qty only when the result
	// stays non-negative and returns *InsufficientStockError otherwise.
	DecrementStock(ctx context.Context, productID int64, qty int) error
	IncrementStock(ctx context.Context, productID int64, qty int) error
	SetStock(ctx context.Context, productID int64, qty int) error

	InsertOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	InsertOrderLine(ctx context.Context, line domain.OrderLine) (*domain.OrderLine, error)
	// GetOrderForUpdate loads the order with its lines and holds it until the
	// unit ends.
	GetOrderForUpdate(ctx context.Context, orderID int64) (*domain.Order, error)
	// UpdateOrderStatus moves the order from -> to and returns ErrConflict when
	// the stored status is no longer from.
	UpdateOrderStatus(ctx context.Context, orderID int64, from domain.OrderStatus, to domain.OrderStatus, paymentStatus domain.PaymentStatus, at time.Time) error

	InsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	GetLedgerEntryForUpdate(ctx context.Context, entryID int64) (*domain.LedgerEntry, error)
	UpdateLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	GetBankByID(ctx context.Context, bankID int64) (*domain.Bank, error)
	AdjustBankBalance(ctx context.Context, bankName string, delta decimal.Decimal) (*domain.Bank, error)

	// InsertMission returns ErrMissionAlreadyActive when the order already has
	// an assigned or picked_up mission.
	InsertMission(ctx context.Context, mission domain.DeliveryMission) (*domain.DeliveryMission, error)
	GetMissionForUpdate(ctx context.Context, missionID int64) (*domain.DeliveryMission, error)
	GetActiveMission(ctx context.Context, orderID int64) (*domain.DeliveryMission, error)
	UpdateMissionStatus(ctx context.Context, missionID int64, status domain.MissionStatus, completedAt *time.Time) error

	// ResetDay empties orders, order lines and delivery missions and restarts
	// their identity sequences at 1.
	ResetDay(ctx context.Context) (domain.ArchiveResult, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListInventory(ctx context.Context) ([]domain.InventoryRecord, error)
	GetStockMap(ctx context.Context, productIDs []int64) (map[int64]int, error)

	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	GetLedgerEntry(ctx context.Context, entryID int64) (*domain.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error)
	ListBanks(ctx context.Context) ([]domain.Bank, error)

	GetMission(ctx context.Context, missionID int64) (*domain.DeliveryMission, error)
	ListMissionsByOrder(ctx context.Context, orderID int64) ([]domain.DeliveryMission, error)

	CreateNotification(ctx context.Context, n domain.Notification) error
	ListNotifications(ctx context.Context, userID int64, limit int) ([]domain.Notification, error)

	SaveDailySummary(ctx context.Context, summary domain.DailySummary) error
	GetDailySummary(ctx context.Context, businessDate string) (*domain.DailySummary, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
