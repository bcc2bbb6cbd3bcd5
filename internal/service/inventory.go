package service

import (
	"context"
	"fmt"
	"strconv"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	return s.repo.ListInventory(ctx)
}

// AdjustStock applies a relative correction. Increments create the record;
// decrements use the same guard as order intake.
func (s *Service) AdjustStock(ctx context.Context, productID int64, req domain.StockAdjustRequest) (domain.InventoryRecord, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.InventoryRecord{}, err
	}
	if productID < 1 {
		return domain.InventoryRecord{}, invalidf("product id required")
	}
	if req.Delta == 0 {
		return domain.InventoryRecord{}, invalidf("delta must not be zero")
	}

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if req.Delta > 0 {
			return tx.IncrementStock(ctx, productID, req.Delta)
		}
		return tx.DecrementStock(ctx, productID, -req.Delta)
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	s.logAudit(ctx, "stock_adjust", "inventory", strconv.FormatInt(productID, 10), fmt.Sprintf("delta=%d", req.Delta))
	return s.stockRecord(ctx, productID)
}

// SetStock overwrites the stock level after a physical count.
func (s *Service) SetStock(ctx context.Context, productID int64, req domain.StockSetRequest) (domain.InventoryRecord, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.InventoryRecord{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.InventoryRecord{}, err
	}
	if productID < 1 {
		return domain.InventoryRecord{}, invalidf("product id required")
	}

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		return tx.SetStock(ctx, productID, req.Quantity)
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	s.logAudit(ctx, "stock_set", "inventory", strconv.FormatInt(productID, 10), fmt.Sprintf("quantity=%d", req.Quantity))
	return s.stockRecord(ctx, productID)
}

func (s *Service) stockRecord(ctx context.Context, productID int64) (domain.InventoryRecord, error) {
	stock, err := s.repo.GetStockMap(ctx, []int64{productID})
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return domain.InventoryRecord{ProductID: productID, Quantity: stock[productID], UpdatedAt: s.now()}, nil
}
