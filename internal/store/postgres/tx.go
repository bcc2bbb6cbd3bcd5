package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	var p domain.Product
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, price, active
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name, &p.Price, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - $2, updated_at = now()
		WHERE product_id = $1 AND quantity >= $2
	`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	stockErr := &store.InsufficientStockError{ProductID: productID, Requested: qty}
	var name string
	if err := t.tx.QueryRowContext(ctx, `SELECT name FROM products WHERE id = $1`, productID).Scan(&name); err == nil {
		stockErr.ProductName = name
	}
	return stockErr
}

func (t *pgTx) IncrementStock(ctx context.Context, productID int64, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (product_id)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = now()
	`, productID, qty)
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

func (t *pgTx) SetStock(ctx context.Context, productID int64, qty int) error {
	if qty < 0 {
		return store.ErrInvalidRequest
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
	`, productID, qty)
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

func (t *pgTx) InsertOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt
	order.Lines = nil

	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			status, type, payment_method, payment_status, bank_id,
			total_amount, discount_amount, final_amount, customer_id, address_id,
			cashier_username, notes, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		RETURNING id
	`,
		string(order.Status), string(order.Type), order.PaymentMethod, string(order.PaymentStatus), nullInt64(order.BankID),
		order.TotalAmount, order.DiscountAmount, order.FinalAmount, nullInt64(order.CustomerID), nullInt64(order.AddressID),
		order.CashierUsername, order.Notes, order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (t *pgTx) InsertOrderLine(ctx context.Context, line domain.OrderLine) (*domain.OrderLine, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO order_lines (order_id, product_id, product_name, quantity, unit_price, note)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, line.OrderID, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice, line.Note).Scan(&line.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := scanOrder(t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, t.tx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[order.ID]
	return order, nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, orderID int64, from domain.OrderStatus, to domain.OrderStatus, paymentStatus domain.PaymentStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $3,
			payment_status = COALESCE(NULLIF($4, ''), payment_status),
			updated_at = $5
		WHERE id = $1 AND status = $2
	`, orderID, string(from), string(to), string(paymentStatus), at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (t *pgTx) InsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if !entry.Amount.IsPositive() {
		return nil, store.ErrInvalidRequest
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UpdatedAt = entry.CreatedAt

	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (
			type, classification, amount, currency, description,
			related_id, bank_id, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		RETURNING id
	`,
		string(entry.Type), string(entry.Classification), entry.Amount, entry.Currency, entry.Description,
		nullInt64(entry.RelatedID), nullInt64(entry.BankID), entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (t *pgTx) GetLedgerEntryForUpdate(ctx context.Context, entryID int64) (*domain.LedgerEntry, error) {
	return scanLedgerEntry(t.tx.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, entryID))
}

func (t *pgTx) UpdateLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	return scanLedgerEntry(t.tx.QueryRowContext(ctx, `
		UPDATE ledger_entries
		SET classification = $2, amount = $3, description = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+ledgerColumns,
		entry.ID, string(entry.Classification), entry.Amount, entry.Description,
	))
}

func (t *pgTx) GetBankByID(ctx context.Context, bankID int64) (*domain.Bank, error) {
	var b domain.Bank
	err := t.tx.QueryRowContext(ctx, `SELECT id, name, balance FROM banks WHERE id = $1`, bankID).Scan(&b.ID, &b.Name, &b.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (t *pgTx) AdjustBankBalance(ctx context.Context, bankName string, delta decimal.Decimal) (*domain.Bank, error) {
	var b domain.Bank
	err := t.tx.QueryRowContext(ctx, `
		UPDATE banks
		SET balance = balance + $2
		WHERE name = $1
		RETURNING id, name, balance
	`, bankName, delta).Scan(&b.ID, &b.Name, &b.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (t *pgTx) InsertMission(ctx context.Context, mission domain.DeliveryMission) (*domain.DeliveryMission, error) {
	if mission.AssignedAt.IsZero() {
		mission.AssignedAt = time.Now().UTC()
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO delivery_missions (order_id, driver_name, driver_phone, commission, status, assigned_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, mission.OrderID, mission.DriverName, mission.DriverPhone, mission.Commission, string(mission.Status), mission.AssignedAt).Scan(&mission.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrMissionAlreadyActive
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &mission, nil
}

func (t *pgTx) GetMissionForUpdate(ctx context.Context, missionID int64) (*domain.DeliveryMission, error) {
	return scanMission(t.tx.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM delivery_missions WHERE id = $1 FOR UPDATE`, missionID))
}

func (t *pgTx) GetActiveMission(ctx context.Context, orderID int64) (*domain.DeliveryMission, error) {
	return scanMission(t.tx.QueryRowContext(ctx, `
		SELECT `+missionColumns+`
		FROM delivery_missions
		WHERE order_id = $1 AND status IN ('assigned', 'picked_up')
		FOR UPDATE
	`, orderID))
}

func (t *pgTx) UpdateMissionStatus(ctx context.Context, missionID int64, status domain.MissionStatus, completedAt *time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE delivery_missions
		SET status = $2, completed_at = $3
		WHERE id = $1
	`, missionID, string(status), nullTime(completedAt))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) ResetDay(ctx context.Context) (domain.ArchiveResult, error) {
	var result domain.ArchiveResult
	err := t.tx.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM orders),
			(SELECT count(*) FROM order_lines),
			(SELECT count(*) FROM delivery_missions)
	`).Scan(&result.ArchivedOrders, &result.ArchivedLines, &result.ArchivedMissions)
	if err != nil {
		return result, err
	}

	if _, err := t.tx.ExecContext(ctx, `TRUNCATE delivery_missions, order_lines, orders RESTART IDENTITY CASCADE`); err != nil {
		return result, err
	}
	result.ArchivedAt = time.Now().UTC()
	return result, nil
}

func (t *pgTx) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return insertAuditLog(ctx, t.tx, entry)
}
