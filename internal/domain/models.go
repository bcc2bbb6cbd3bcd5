package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusNew            OrderStatus = "new"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusRejected       OrderStatus = "rejected"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusPreparing, OrderStatusReady,
		OrderStatusOutForDelivery, OrderStatusCompleted, OrderStatusRejected:
		return true
	default:
		return false
	}
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusRejected
}

type OrderType string

const (
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDelivery OrderType = "delivery"
)

type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusUnpaid PaymentStatus = "unpaid"
)

const (
	PaymentMethodCash        = "cash"
	PaymentMethodCard        = "card"
	PaymentMethodTransfer    = "transfer"
	PaymentMethodHospitality = "hospitality"
)

// PaymentRoutesThroughBank reports whether settling the method moves money
// into a bank account rather than the register drawer.
func PaymentRoutesThroughBank(method string) bool {
	return method == PaymentMethodCard || method == PaymentMethodTransfer
}

func IsSupportedPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodHospitality:
		return true
	default:
		return false
	}
}

type Product struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
}

type InventoryRecord struct {
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	Quantity    int       `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Order struct {
	ID              int64           `json:"id"`
	Status          OrderStatus     `json:"status"`
	Type            OrderType       `json:"type"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	BankID          *int64          `json:"bank_id,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	CustomerID      *int64          `json:"customer_id,omitempty"`
	AddressID       *int64          `json:"address_id,omitempty"`
	CashierUsername string          `json:"cashier_username,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Lines           []OrderLine     `json:"items,omitempty"`
}

type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
	Note        string          `json:"notes,omitempty"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type OrderLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  *int            `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Price     decimal.Decimal `json:"price"`
	Notes     string          `json:"notes,omitempty"`
}

type OrderCreateRequest struct {
	Type           OrderType          `json:"type,omitempty" validate:"omitempty,oneof=pickup delivery"`
	CustomerID     *int64             `json:"customer_id,omitempty"`
	AddressID      *int64             `json:"address_id,omitempty"`
	BankID         *int64             `json:"bank_id,omitempty"`
	PaymentMethod  string             `json:"payment_method" validate:"required"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	TotalAmount    *decimal.Decimal   `json:"total_amount,omitempty"`
	FinalAmount    *decimal.Decimal   `json:"final_amount,omitempty"`
	Notes          string             `json:"notes,omitempty"`
	Items          []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
}

type OrderStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required"`
}

type OrderFilter struct {
	Status     OrderStatus
	CustomerID *int64
	From       time.Time
	To         time.Time
	Limit      int
}

type LedgerType string

const (
	LedgerRevenue LedgerType = "revenue"
	LedgerExpense LedgerType = "expense"
)

type LedgerClassification string

const (
	ClassificationSales       LedgerClassification = "sales"
	ClassificationPurchases   LedgerClassification = "purchases"
	ClassificationExpense     LedgerClassification = "expense"
	ClassificationSalary      LedgerClassification = "salary"
	ClassificationDebtPayment LedgerClassification = "debt_payment"
	ClassificationOther       LedgerClassification = "other"
)

func (c LedgerClassification) Valid() bool {
	switch c {
	case ClassificationSales, ClassificationPurchases, ClassificationExpense,
		ClassificationSalary, ClassificationDebtPayment, ClassificationOther:
		return true
	default:
		return false
	}
}

type LedgerEntry struct {
	ID             int64                `json:"id"`
	Type           LedgerType           `json:"type"`
	Classification LedgerClassification `json:"classification"`
	Amount         decimal.Decimal      `json:"amount"`
	Currency       string               `json:"currency"`
	Description    string               `json:"description"`
	RelatedID      *int64               `json:"related_id,omitempty"`
	BankID         *int64               `json:"bank_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Signed returns the amount with revenue positive and expense negative.
func (e LedgerEntry) Signed() decimal.Decimal {
	if e.Type == LedgerExpense {
		return e.Amount.Neg()
	}
	return e.Amount
}

type LedgerEntryRequest struct {
	Type           LedgerType           `json:"type" validate:"required,oneof=revenue expense"`
	Classification LedgerClassification `json:"classification" validate:"required"`
	Amount         decimal.Decimal      `json:"amount"`
	Currency       string               `json:"currency,omitempty"`
	Description    string               `json:"description"`
	RelatedID      *int64               `json:"related_id,omitempty"`
	BankID         *int64               `json:"bank_id,omitempty"`
}

type LedgerEntryUpdateRequest struct {
	Classification *LedgerClassification `json:"classification,omitempty"`
	Amount         *decimal.Decimal      `json:"amount,omitempty"`
	Description    *string               `json:"description,omitempty"`
}

type LedgerFilter struct {
	Type           LedgerType
	Classification LedgerClassification
	RelatedID      *int64
	From           time.Time
	To             time.Time
	Limit          int
}

type Bank struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

type MissionStatus string

const (
	MissionAssigned  MissionStatus = "assigned"
	MissionPickedUp  MissionStatus = "picked_up"
	MissionDelivered MissionStatus = "delivered"
	MissionCancelled MissionStatus = "cancelled"
)

func (s MissionStatus) Valid() bool {
	switch s {
	case MissionAssigned, MissionPickedUp, MissionDelivered, MissionCancelled:
		return true
	default:
		return false
	}
}

func (s MissionStatus) Active() bool {
	return s == MissionAssigned || s == MissionPickedUp
}

func (s MissionStatus) Terminal() bool {
	return s == MissionDelivered || s == MissionCancelled
}

type DeliveryMission struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	DriverName  string          `json:"driver_name"`
	DriverPhone string          `json:"driver_phone,omitempty"`
	Commission  decimal.Decimal `json:"commission"`
	Status      MissionStatus   `json:"status"`
	AssignedAt  time.Time       `json:"assigned_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type DeliveryAssignRequest struct {
	OrderID     int64           `json:"order_id" validate:"required,gt=0"`
	DriverName  string          `json:"driver_name" validate:"required"`
	DriverPhone string          `json:"driver_phone"`
	Commission  decimal.Decimal `json:"commission"`
}

type DeliveryStatusRequest struct {
	Status MissionStatus `json:"status" validate:"required"`
}

type DeliveryUpdateResponse struct {
	Mission DeliveryMission `json:"mission"`
	Order   Order           `json:"order"`
}

type BankAdjustRequest struct {
	BankName string          `json:"bank_name" validate:"required"`
	Delta    decimal.Decimal `json:"delta"`
}

type StockAdjustRequest struct {
	Delta int `json:"delta"`
}

type StockSetRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type ArchiveResult struct {
	ArchivedOrders   int       `json:"archived_orders"`
	ArchivedLines    int       `json:"archived_lines"`
	ArchivedMissions int       `json:"archived_missions"`
	ArchivedAt       time.Time `json:"archived_at"`
}

type TopItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type CashierPerformance struct {
	Username   string          `json:"username"`
	OrderCount int             `json:"order_count"`
	NetSales   decimal.Decimal `json:"net_sales"`
}

type DailySummary struct {
	BusinessDate       string                     `json:"business_date"`
	NetSales           decimal.Decimal            `json:"net_sales"`
	Refunds            decimal.Decimal            `json:"refunds"`
	OrderCount         int                        `json:"order_count"`
	PaymentTotals      map[string]decimal.Decimal `json:"payment_totals"`
	TopItems           []TopItem                  `json:"top_items"`
	CashierPerformance []CashierPerformance       `json:"cashier_performance"`
	CreatedAt          time.Time                  `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	// CustomerID is set for customer-facing (online channel) tokens.
	CustomerID *int64
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username   string
	Password   string
	Role       string
	CustomerID *int64
	Active     bool
	CreatedAt  time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin    = "admin"
	RoleCashier  = "cashier"
	RoleCustomer = "customer"
)
