package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

// state holds everything a unit of work may touch. WithinTx runs each unit
// against a clone and swaps it in only when the unit succeeds.
type state struct {
	products  map[int64]domain.Product
	inventory map[int64]domain.InventoryRecord
	orders    map[int64]domain.Order
	lines     map[int64][]domain.OrderLine
	ledger    map[int64]domain.LedgerEntry
	banks     map[int64]domain.Bank
	missions  map[int64]domain.DeliveryMission
	auditLogs []domain.AuditLog

	nextOrderID   int64
	nextLineID    int64
	nextLedgerID  int64
	nextMissionID int64
}

func (st *state) clone() *state {
	c := &state{
		products:      make(map[int64]domain.Product, len(st.products)),
		inventory:     make(map[int64]domain.InventoryRecord, len(st.inventory)),
		orders:        make(map[int64]domain.Order, len(st.orders)),
		lines:         make(map[int64][]domain.OrderLine, len(st.lines)),
		ledger:        make(map[int64]domain.LedgerEntry, len(st.ledger)),
		banks:         make(map[int64]domain.Bank, len(st.banks)),
		missions:      make(map[int64]domain.DeliveryMission, len(st.missions)),
		auditLogs:     slices.Clone(st.auditLogs),
		nextOrderID:   st.nextOrderID,
		nextLineID:    st.nextLineID,
		nextLedgerID:  st.nextLedgerID,
		nextMissionID: st.nextMissionID,
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.inventory {
		c.inventory[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.lines {
		c.lines[k] = slices.Clone(v)
	}
	for k, v := range st.ledger {
		c.ledger[k] = v
	}
	for k, v := range st.banks {
		c.banks[k] = v
	}
	for k, v := range st.missions {
		c.missions[k] = v
	}
	return c
}

type Store struct {
	mu            sync.RWMutex
	st            *state
	notifications []domain.Notification
	summaries     map[string]domain.DailySummary
	users         map[string]domain.UserAccount
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_CASHIER_PASSWORD and SEED_CUSTOMER_PASSWORD and
// fall back to fixed defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	customerPwd := envOr("SEED_CUSTOMER_PASSWORD", "customer123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		zap.L().Warn("memory store using default dev credentials")
	}

	customerID := int64(1001)
	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username   string
		password   string
		role       string
		customerID *int64
	}{
		{"admin", adminPwd, domain.RoleAdmin, nil},
		{"cashier", cashierPwd, domain.RoleCashier, nil},
		{"customer", customerPwd, domain.RoleCustomer, &customerID},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:   u.username,
			Password:   string(hash),
			Role:       u.role,
			CustomerID: u.customerID,
			Active:     true,
			CreatedAt:  now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		st: &state{
			products:      map[int64]domain.Product{},
			inventory:     map[int64]domain.InventoryRecord{},
			orders:        map[int64]domain.Order{},
			lines:         map[int64][]domain.OrderLine{},
			ledger:        map[int64]domain.LedgerEntry{},
			banks:         map[int64]domain.Bank{},
			missions:      map[int64]domain.DeliveryMission{},
			nextOrderID:   1,
			nextLineID:    1,
			nextLedgerID:  1,
			nextMissionID: 1,
		},
		summaries: map[string]domain.DailySummary{},
		users:     map[string]domain.UserAccount{},
	}
}

// NewSeeded returns a store with a small menu, stock of 50 per item, two
// banks and the dev accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	menu := []struct {
		name  string
		price int64
	}{
		{"Nasi Goreng", 25000},
		{"Mie Ayam", 20000},
		{"Sate Ayam", 30000},
		{"Ayam Bakar", 35000},
		{"Es Teh", 5000},
		{"Kopi Susu", 15000},
	}
	for i, m := range menu {
		id := int64(i + 1)
		s.st.products[id] = domain.Product{ID: id, Name: m.name, Price: decimal.NewFromInt(m.price), Active: true}
		s.st.inventory[id] = domain.InventoryRecord{ProductID: id, Quantity: 50, UpdatedAt: now}
	}
	s.st.banks[1] = domain.Bank{ID: 1, Name: "BCA", Balance: decimal.Zero}
	s.st.banks[2] = domain.Bank{ID: 2, Name: "Mandiri", Balance: decimal.Zero}
	s.users = seedUsers()
	return s
}

// AddProduct registers a catalog item with an initial stock level.
func (s *Store) AddProduct(product domain.Product, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[product.ID] = product
	s.st.inventory[product.ID] = domain.InventoryRecord{ProductID: product.ID, Quantity: quantity, UpdatedAt: time.Now().UTC()}
}

func (s *Store) AddBank(bank domain.Bank) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.banks[bank.ID] = bank
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.st.clone()
	if err := fn(&memTx{st: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = working
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.st.products))
	for _, p := range s.st.products {
		if p.Active {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return cmpInt64(a.ID, b.ID) })
	return products, nil
}

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.InventoryRecord, 0, len(s.st.inventory))
	for _, rec := range s.st.inventory {
		rec.ProductName = s.st.products[rec.ProductID].Name
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b domain.InventoryRecord) int { return cmpInt64(a.ProductID, b.ProductID) })
	return records, nil
}

func (s *Store) GetStockMap(_ context.Context, productIDs []int64) (map[int64]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stock := make(map[int64]int, len(productIDs))
	for _, id := range productIDs {
		stock[id] = s.st.inventory[id].Quantity
	}
	return stock, nil
}

func (s *Store) GetOrder(_ context.Context, orderID int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.st.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.Lines = slices.Clone(s.st.lines[orderID])
	return &order, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.st.orders))
	for _, order := range s.st.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.CustomerID != nil && (order.CustomerID == nil || *order.CustomerID != *filter.CustomerID) {
			continue
		}
		if !inRange(order.CreatedAt, filter.From, filter.To) {
			continue
		}
		order.Lines = slices.Clone(s.st.lines[order.ID])
		result = append(result, order)
	}
	slices.SortFunc(result, func(a, b domain.Order) int { return cmpInt64(b.ID, a.ID) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) GetLedgerEntry(_ context.Context, entryID int64) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.st.ledger[entryID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &entry, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LedgerEntry, 0, len(s.st.ledger))
	for _, entry := range s.st.ledger {
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		if filter.Classification != "" && entry.Classification != filter.Classification {
			continue
		}
		if filter.RelatedID != nil && (entry.RelatedID == nil || *entry.RelatedID != *filter.RelatedID) {
			continue
		}
		if !inRange(entry.CreatedAt, filter.From, filter.To) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.LedgerEntry) int { return cmpInt64(b.ID, a.ID) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListBanks(_ context.Context) ([]domain.Bank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	banks := make([]domain.Bank, 0, len(s.st.banks))
	for _, b := range s.st.banks {
		banks = append(banks, b)
	}
	slices.SortFunc(banks, func(a, b domain.Bank) int { return cmpInt64(a.ID, b.ID) })
	return banks, nil
}

func (s *Store) GetMission(_ context.Context, missionID int64) (*domain.DeliveryMission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mission, ok := s.st.missions[missionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &mission, nil
}

func (s *Store) ListMissionsByOrder(_ context.Context, orderID int64) ([]domain.DeliveryMission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DeliveryMission, 0, 2)
	for _, m := range s.st.missions {
		if m.OrderID == orderID {
			result = append(result, m)
		}
	}
	slices.SortFunc(result, func(a, b domain.DeliveryMission) int { return cmpInt64(a.ID, b.ID) })
	return result, nil
}

func (s *Store) CreateNotification(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.UserID == 0 || strings.TrimSpace(n.Message) == "" {
		return store.ErrInvalidRequest
	}
	if n.ID == "" {
		n.ID = xid.New("ntf")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID int64, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Notification, 0, 16)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID != userID {
			continue
		}
		result = append(result, s.notifications[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) SaveDailySummary(_ context.Context, summary domain.DailySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if summary.BusinessDate == "" {
		return store.ErrInvalidRequest
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	s.summaries[summary.BusinessDate] = summary
	return nil
}

func (s *Store) GetDailySummary(_ context.Context, businessDate string) (*domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[businessDate]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &summary, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.auditLogs = append(s.st.auditLogs, stampAudit(entry))
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 16)
	for i := len(s.st.auditLogs) - 1; i >= 0; i-- {
		entry := s.st.auditLogs[i]
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRequest
	}
	if _, exists := s.users[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int { return strings.Compare(a.Username, b.Username) })
	return users, nil
}

func stampAudit(entry domain.AuditLog) domain.AuditLog {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return entry
}

// inRange treats a zero bound as open.
func inRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func cmpInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*memTx)(nil)
)
