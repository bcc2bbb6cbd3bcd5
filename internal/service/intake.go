package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

// CreateOrder validates the request, then in one unit inserts the order and
// its lines and takes the stock for every line. Register pickups with no
// customer are settled immediately; everything else starts as new/unpaid and
// is booked when the kitchen accepts it.
//
// The menu price is authoritative. A line price of zero takes the menu price;
// a non-zero price that differs from it, or a total/final amount that does
// not match the computed one, is rejected as invalid rather than honoured.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	if err := s.validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !domain.IsSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Order{}, invalidf("unsupported payment method %q", req.PaymentMethod)
	}
	if domain.PaymentRoutesThroughBank(req.PaymentMethod) && req.BankID == nil {
		return domain.Order{}, invalidf("bank_id required for %s payments", req.PaymentMethod)
	}
	if req.DiscountAmount.IsNegative() {
		return domain.Order{}, invalidf("discount_amount must not be negative")
	}
	if req.Type == "" {
		req.Type = domain.OrderTypePickup
	}

	actor, _ := ActorFromContext(ctx)
	customerID := req.CustomerID
	if actor.Role == domain.RoleCustomer {
		if actor.CustomerID == nil {
			return domain.Order{}, ErrForbidden
		}
		customerID = actor.CustomerID
	}
	immediate := req.Type == domain.OrderTypePickup && customerID == nil

	var created domain.Order
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		lines, total, err := s.priceLines(ctx, tx, req.Items)
		if err != nil {
			return err
		}
		if req.DiscountAmount.GreaterThan(total) {
			return invalidf("discount_amount %s exceeds total %s", req.DiscountAmount, total)
		}
		final := total.Sub(req.DiscountAmount)
		if req.TotalAmount != nil && !req.TotalAmount.Equal(total) {
			return invalidf("total_amount %s does not match computed total %s", req.TotalAmount, total)
		}
		if req.FinalAmount != nil && !req.FinalAmount.Equal(final) {
			return invalidf("final_amount %s does not match computed final %s", req.FinalAmount, final)
		}
		if req.BankID != nil {
			if _, err := tx.GetBankByID(ctx, *req.BankID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return invalidf("bank %d not found", *req.BankID)
				}
				return err
			}
		}

		order := domain.Order{
			Status:          domain.OrderStatusNew,
			Type:            req.Type,
			PaymentMethod:   req.PaymentMethod,
			PaymentStatus:   domain.PaymentStatusUnpaid,
			BankID:          req.BankID,
			TotalAmount:     total,
			DiscountAmount:  req.DiscountAmount,
			FinalAmount:     final,
			CustomerID:      customerID,
			AddressID:       req.AddressID,
			CashierUsername: actor.Username,
			Notes:           strings.TrimSpace(req.Notes),
			CreatedAt:       s.now(),
		}
		if immediate {
			order.Status = domain.OrderStatusCompleted
			order.PaymentStatus = domain.PaymentStatusPaid
		}

		inserted, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		for _, line := range lines {
			line.OrderID = inserted.ID
			saved, err := tx.InsertOrderLine(ctx, line)
			if err != nil {
				return err
			}
			if err := tx.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
			inserted.Lines = append(inserted.Lines, *saved)
		}

		if immediate {
			if err := s.bookOrderRevenue(ctx, tx, *inserted); err != nil {
				return err
			}
		}
		created = *inserted
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.Info("order created",
		zap.Int64("order_id", created.ID),
		zap.String("status", string(created.Status)),
		zap.String("type", string(created.Type)),
		zap.String("payment_method", created.PaymentMethod),
		zap.String("final_amount", created.FinalAmount.StringFixed(2)),
	)
	s.notifyOrder(ctx, created)
	return created, nil
}

// priceLines snapshots the catalog price of every requested line. A client
// price of zero means "use the catalog"; any other value must match it.
func (s *Service) priceLines(ctx context.Context, tx store.Tx, items []domain.OrderLineRequest) ([]domain.OrderLine, decimal.Decimal, error) {
	lines := make([]domain.OrderLine, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		qty := 1
		if item.Quantity != nil {
			qty = *item.Quantity
		}
		if qty < 1 {
			return nil, decimal.Zero, invalidf("quantity must be at least 1")
		}
		if item.Price.IsNegative() {
			return nil, decimal.Zero, invalidf("price must not be negative")
		}

		product, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, decimal.Zero, invalidf("product %d not found", item.ProductID)
			}
			return nil, decimal.Zero, err
		}
		if !product.Active {
			return nil, decimal.Zero, invalidf("product %s is not available", product.Name)
		}
		if !item.Price.IsZero() && !item.Price.Equal(product.Price) {
			return nil, decimal.Zero, invalidf("price for %s does not match menu price %s", product.Name, product.Price)
		}

		line := domain.OrderLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    qty,
			UnitPrice:   product.Price,
			Note:        strings.TrimSpace(item.Notes),
		}
		total = total.Add(line.Subtotal())
		lines = append(lines, line)
	}
	return lines, total, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !canSeeOrder(ctx, *order) {
		return domain.Order{}, store.ErrNotFound
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidf("unknown order status %q", filter.Status)
	}
	if actor, ok := ActorFromContext(ctx); ok && actor.Role == domain.RoleCustomer {
		if actor.CustomerID == nil {
			return nil, ErrForbidden
		}
		filter.CustomerID = actor.CustomerID
	}
	if filter.Limit < 1 {
		filter.Limit = 100
	}
	return s.repo.ListOrders(ctx, filter)
}

func canSeeOrder(ctx context.Context, order domain.Order) bool {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleCustomer {
		return true
	}
	return actor.CustomerID != nil && order.CustomerID != nil && *actor.CustomerID == *order.CustomerID
}
