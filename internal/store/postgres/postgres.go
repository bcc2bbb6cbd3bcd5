package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

const maxTxAttempts = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened pool.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a READ COMMITTED transaction and retries the whole unit
// on serialization failures and deadlocks.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, active
		FROM products
		WHERE active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.product_id, p.name, i.quantity, i.updated_at
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		ORDER BY i.product_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.InventoryRecord, 0, 32)
	for rows.Next() {
		var rec domain.InventoryRecord
		if err := rows.Scan(&rec.ProductID, &rec.ProductName, &rec.Quantity, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) GetStockMap(ctx context.Context, productIDs []int64) (map[int64]int, error) {
	stock := make(map[int64]int, len(productIDs))
	for _, id := range productIDs {
		stock[id] = 0
	}
	if len(productIDs) == 0 {
		return stock, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM inventory
		WHERE product_id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		stock[id] = qty
	}
	return stock, rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, s.db, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[order.ID]
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, 32)
	ids := make([]int64, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	lines, err := loadLines(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

func (s *Store) GetLedgerEntry(ctx context.Context, entryID int64) (*domain.LedgerEntry, error) {
	return scanLedgerEntry(s.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = $1`, entryID))
}

func (s *Store) ListLedgerEntries(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error) {
	where := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Classification != "" {
		args = append(args, string(filter.Classification))
		where = append(where, fmt.Sprintf("classification = $%d", len(args)))
	}
	if filter.RelatedID != nil {
		args = append(args, *filter.RelatedID)
		where = append(where, fmt.Sprintf("related_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 32)
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (s *Store) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, balance FROM banks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	banks := make([]domain.Bank, 0, 8)
	for rows.Next() {
		var b domain.Bank
		if err := rows.Scan(&b.ID, &b.Name, &b.Balance); err != nil {
			return nil, err
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

func (s *Store) GetMission(ctx context.Context, missionID int64) (*domain.DeliveryMission, error) {
	return scanMission(s.db.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM delivery_missions WHERE id = $1`, missionID))
}

func (s *Store) ListMissionsByOrder(ctx context.Context, orderID int64) ([]domain.DeliveryMission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+missionColumns+`
		FROM delivery_missions
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	missions := make([]domain.DeliveryMission, 0, 2)
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) error {
	if n.UserID == 0 || strings.TrimSpace(n.Message) == "" {
		return store.ErrInvalidRequest
	}
	if n.ID == "" {
		n.ID = xid.New("ntf")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, message, link, read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, n.ID, n.UserID, n.Message, n.Link, n.Read, n.CreatedAt)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, message, link, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Notification, 0, limit)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Link, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.CreatedAt = n.CreatedAt.UTC()
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *Store) SaveDailySummary(ctx context.Context, summary domain.DailySummary) error {
	if summary.BusinessDate == "" {
		return store.ErrInvalidRequest
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	paymentTotals, err := json.Marshal(summary.PaymentTotals)
	if err != nil {
		return err
	}
	topItems, err := json.Marshal(summary.TopItems)
	if err != nil {
		return err
	}
	cashiers, err := json.Marshal(summary.CashierPerformance)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_summaries (
			business_date, net_sales, refunds, order_count,
			payment_totals, top_items, cashier_performance, created_at
		)
		VALUES ($1::date,$2,$3,$4,$5::jsonb,$6::jsonb,$7::jsonb,$8)
		ON CONFLICT (business_date) DO UPDATE SET
			net_sales = EXCLUDED.net_sales,
			refunds = EXCLUDED.refunds,
			order_count = EXCLUDED.order_count,
			payment_totals = EXCLUDED.payment_totals,
			top_items = EXCLUDED.top_items,
			cashier_performance = EXCLUDED.cashier_performance,
			created_at = EXCLUDED.created_at
	`, summary.BusinessDate, summary.NetSales, summary.Refunds, summary.OrderCount,
		string(paymentTotals), string(topItems), string(cashiers), summary.CreatedAt)
	return err
}

func (s *Store) GetDailySummary(ctx context.Context, businessDate string) (*domain.DailySummary, error) {
	var summary domain.DailySummary
	var paymentTotals, topItems, cashiers []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT to_char(business_date, 'YYYY-MM-DD'), net_sales, refunds, order_count,
			payment_totals, top_items, cashier_performance, created_at
		FROM daily_summaries
		WHERE business_date = $1::date
	`, businessDate).Scan(
		&summary.BusinessDate, &summary.NetSales, &summary.Refunds, &summary.OrderCount,
		&paymentTotals, &topItems, &cashiers, &summary.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(paymentTotals, &summary.PaymentTotals); err != nil {
		return nil, fmt.Errorf("decode payment totals: %w", err)
	}
	if err := json.Unmarshal(topItems, &summary.TopItems); err != nil {
		return nil, fmt.Errorf("decode top items: %w", err)
	}
	if err := json.Unmarshal(cashiers, &summary.CashierPerformance); err != nil {
		return nil, fmt.Errorf("decode cashier performance: %w", err)
	}
	summary.CreatedAt = summary.CreatedAt.UTC()
	return &summary, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return insertAuditLog(ctx, s.db, entry)
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(
			&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRequest
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, customer_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,$5,now())
	`, user.Username, user.Password, user.Role, nullInt64(user.CustomerID), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, customer_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var customerID sql.NullInt64
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &customerID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CustomerID = int64Ptr(customerID)
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const orderColumns = `id, status, type, payment_method, payment_status, bank_id,
	total_amount, discount_amount, final_amount, customer_id, address_id,
	cashier_username, notes, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var status, orderType, paymentStatus string
	var bankID, customerID, addressID sql.NullInt64
	err := row.Scan(
		&o.ID, &status, &orderType, &o.PaymentMethod, &paymentStatus, &bankID,
		&o.TotalAmount, &o.DiscountAmount, &o.FinalAmount, &customerID, &addressID,
		&o.CashierUsername, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.Type = domain.OrderType(orderType)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.BankID = int64Ptr(bankID)
	o.CustomerID = int64Ptr(customerID)
	o.AddressID = int64Ptr(addressID)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func loadLines(ctx context.Context, q queryer, orderIDs []int64) (map[int64][]domain.OrderLine, error) {
	result := make(map[int64][]domain.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, note
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY id
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.Note); err != nil {
			return nil, err
		}
		result[l.OrderID] = append(result[l.OrderID], l)
	}
	return result, rows.Err()
}

const ledgerColumns = `id, type, classification, amount, currency, description,
	related_id, bank_id, created_at, updated_at`

func scanLedgerEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var entryType, classification string
	var relatedID, bankID sql.NullInt64
	err := row.Scan(
		&e.ID, &entryType, &classification, &e.Amount, &e.Currency, &e.Description,
		&relatedID, &bankID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	e.Type = domain.LedgerType(entryType)
	e.Classification = domain.LedgerClassification(classification)
	e.RelatedID = int64Ptr(relatedID)
	e.BankID = int64Ptr(bankID)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

const missionColumns = `id, order_id, driver_name, driver_phone, commission, status, assigned_at, completed_at`

func scanMission(row rowScanner) (*domain.DeliveryMission, error) {
	var m domain.DeliveryMission
	var status string
	var completedAt sql.NullTime
	err := row.Scan(&m.ID, &m.OrderID, &m.DriverName, &m.DriverPhone, &m.Commission, &status, &m.AssignedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	m.Status = domain.MissionStatus(status)
	m.AssignedAt = m.AssignedAt.UTC()
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		m.CompletedAt = &at
	}
	return &m, nil
}

func insertAuditLog(ctx context.Context, e execer, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func isUniqueViolation(err error) bool {
	return hasCode(err, "23505")
}

func isForeignKeyViolation(err error) bool {
	return hasCode(err, "23503")
}

// isRetryable matches serialization_failure and deadlock_detected.
func isRetryable(err error) bool {
	return hasCode(err, "40001") || hasCode(err, "40P01")
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*pgTx)(nil)
)
