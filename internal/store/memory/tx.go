package memory

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

// memTx writes to the working copy owned by a single WithinTx call. The
// store mutex is already held.
type memTx struct {
	st *state
}

func (t *memTx) GetProduct(_ context.Context, productID int64) (*domain.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}
	rec, ok := t.st.inventory[productID]
	if !ok || rec.Quantity < qty {
		return &store.InsufficientStockError{
			ProductID:   productID,
			ProductName: t.st.products[productID].Name,
			Requested:   qty,
		}
	}
	rec.Quantity -= qty
	rec.UpdatedAt = time.Now().UTC()
	t.st.inventory[productID] = rec
	return nil
}

func (t *memTx) IncrementStock(_ context.Context, productID int64, qty int) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}
	if _, ok := t.st.products[productID]; !ok {
		return store.ErrNotFound
	}
	rec := t.st.inventory[productID]
	rec.ProductID = productID
	rec.Quantity += qty
	rec.UpdatedAt = time.Now().UTC()
	t.st.inventory[productID] = rec
	return nil
}

func (t *memTx) SetStock(_ context.Context, productID int64, qty int) error {
	if qty < 0 {
		return store.ErrInvalidRequest
	}
	if _, ok := t.st.products[productID]; !ok {
		return store.ErrNotFound
	}
	t.st.inventory[productID] = domain.InventoryRecord{ProductID: productID, Quantity: qty, UpdatedAt: time.Now().UTC()}
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	now := time.Now().UTC()
	order.ID = t.st.nextOrderID
	t.st.nextOrderID++
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	order.Lines = nil
	t.st.orders[order.ID] = order
	return &order, nil
}

func (t *memTx) InsertOrderLine(_ context.Context, line domain.OrderLine) (*domain.OrderLine, error) {
	if _, ok := t.st.orders[line.OrderID]; !ok {
		return nil, store.ErrNotFound
	}
	line.ID = t.st.nextLineID
	t.st.nextLineID++
	t.st.lines[line.OrderID] = append(t.st.lines[line.OrderID], line)
	return &line, nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, orderID int64) (*domain.Order, error) {
	order, ok := t.st.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.Lines = slices.Clone(t.st.lines[orderID])
	return &order, nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, orderID int64, from domain.OrderStatus, to domain.OrderStatus, paymentStatus domain.PaymentStatus, at time.Time) error {
	order, ok := t.st.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	if order.Status != from {
		return store.ErrConflict
	}
	order.Status = to
	if paymentStatus != "" {
		order.PaymentStatus = paymentStatus
	}
	order.UpdatedAt = at
	t.st.orders[orderID] = order
	return nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if !entry.Amount.IsPositive() {
		return nil, store.ErrInvalidRequest
	}
	now := time.Now().UTC()
	entry.ID = t.st.nextLedgerID
	t.st.nextLedgerID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = entry.CreatedAt
	t.st.ledger[entry.ID] = entry
	return &entry, nil
}

func (t *memTx) GetLedgerEntryForUpdate(_ context.Context, entryID int64) (*domain.LedgerEntry, error) {
	entry, ok := t.st.ledger[entryID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &entry, nil
}

func (t *memTx) UpdateLedgerEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	current, ok := t.st.ledger[entry.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	current.Classification = entry.Classification
	current.Amount = entry.Amount
	current.Description = entry.Description
	current.UpdatedAt = time.Now().UTC()
	t.st.ledger[entry.ID] = current
	return &current, nil
}

func (t *memTx) GetBankByID(_ context.Context, bankID int64) (*domain.Bank, error) {
	bank, ok := t.st.banks[bankID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &bank, nil
}

func (t *memTx) AdjustBankBalance(_ context.Context, bankName string, delta decimal.Decimal) (*domain.Bank, error) {
	for id, bank := range t.st.banks {
		if bank.Name != bankName {
			continue
		}
		bank.Balance = bank.Balance.Add(delta)
		t.st.banks[id] = bank
		return &bank, nil
	}
	return nil, store.ErrNotFound
}

func (t *memTx) InsertMission(_ context.Context, mission domain.DeliveryMission) (*domain.DeliveryMission, error) {
	if _, ok := t.st.orders[mission.OrderID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range t.st.missions {
		if existing.OrderID == mission.OrderID && existing.Status.Active() {
			return nil, store.ErrMissionAlreadyActive
		}
	}
	mission.ID = t.st.nextMissionID
	t.st.nextMissionID++
	if mission.AssignedAt.IsZero() {
		mission.AssignedAt = time.Now().UTC()
	}
	t.st.missions[mission.ID] = mission
	return &mission, nil
}

func (t *memTx) GetMissionForUpdate(_ context.Context, missionID int64) (*domain.DeliveryMission, error) {
	mission, ok := t.st.missions[missionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &mission, nil
}

func (t *memTx) GetActiveMission(_ context.Context, orderID int64) (*domain.DeliveryMission, error) {
	for _, m := range t.st.missions {
		if m.OrderID == orderID && m.Status.Active() {
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) UpdateMissionStatus(_ context.Context, missionID int64, status domain.MissionStatus, completedAt *time.Time) error {
	mission, ok := t.st.missions[missionID]
	if !ok {
		return store.ErrNotFound
	}
	mission.Status = status
	mission.CompletedAt = completedAt
	t.st.missions[missionID] = mission
	return nil
}

func (t *memTx) ResetDay(_ context.Context) (domain.ArchiveResult, error) {
	result := domain.ArchiveResult{
		ArchivedOrders:   len(t.st.orders),
		ArchivedMissions: len(t.st.missions),
		ArchivedAt:       time.Now().UTC(),
	}
	for _, lines := range t.st.lines {
		result.ArchivedLines += len(lines)
	}

	t.st.orders = map[int64]domain.Order{}
	t.st.lines = map[int64][]domain.OrderLine{}
	t.st.missions = map[int64]domain.DeliveryMission{}
	t.st.nextOrderID = 1
	t.st.nextLineID = 1
	t.st.nextMissionID = 1
	return result, nil
}

func (t *memTx) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	t.st.auditLogs = append(t.st.auditLogs, stampAudit(entry))
	return nil
}
