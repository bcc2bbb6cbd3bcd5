package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

var allowedTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusNew:            {domain.OrderStatusPreparing, domain.OrderStatusRejected},
	domain.OrderStatusPreparing:      {domain.OrderStatusReady, domain.OrderStatusRejected},
	domain.OrderStatusReady:          {domain.OrderStatusOutForDelivery, domain.OrderStatusCompleted, domain.OrderStatusRejected},
	domain.OrderStatusOutForDelivery: {domain.OrderStatusCompleted, domain.OrderStatusRejected},
}

func validateTransition(order domain.Order, to domain.OrderStatus) error {
	if !slices.Contains(allowedTransitions[order.Status], to) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, order.Status, to)
	}
	if order.Status == domain.OrderStatusReady {
		if to == domain.OrderStatusOutForDelivery && order.Type != domain.OrderTypeDelivery {
			return fmt.Errorf("%w: only delivery orders go out for delivery", store.ErrInvalidTransition)
		}
		if to == domain.OrderStatusCompleted && order.Type != domain.OrderTypePickup {
			return fmt.Errorf("%w: delivery orders complete through their mission", store.ErrInvalidTransition)
		}
	}
	return nil
}

// TransitionOrder moves an order along the status machine and applies the
// financial, inventory and delivery side effects of the edge in one unit.
// Requesting the current status is a no-op.
func (s *Service) TransitionOrder(ctx context.Context, orderID int64, to domain.OrderStatus) (domain.Order, error) {
	if !to.Valid() {
		return domain.Order{}, invalidf("unknown order status %q", to)
	}

	var (
		result  domain.Order
		changed bool
	)
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		changed = false
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !canSeeOrder(ctx, *order) {
			return store.ErrNotFound
		}
		if order.Status == to {
			result = *order
			return nil
		}
		if err := validateTransition(*order, to); err != nil {
			return err
		}

		from := order.Status
		var paymentStatus domain.PaymentStatus
		switch to {
		case domain.OrderStatusPreparing:
			if err := s.bookOrderRevenue(ctx, tx, *order); err != nil {
				return err
			}
			paymentStatus = domain.PaymentStatusPaid
		case domain.OrderStatusRejected:
			if err := s.reverseOrder(ctx, tx, *order); err != nil {
				return err
			}
		case domain.OrderStatusCompleted:
			if from == domain.OrderStatusOutForDelivery {
				if err := s.closeActiveMission(ctx, tx, order.ID, domain.MissionDelivered); err != nil {
					return err
				}
			}
		}

		at := s.now()
		if err := tx.UpdateOrderStatus(ctx, order.ID, from, to, paymentStatus, at); err != nil {
			return err
		}
		order.Status = to
		if paymentStatus != "" {
			order.PaymentStatus = paymentStatus
		}
		order.UpdatedAt = at
		result = *order
		changed = true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if changed {
		s.logger.Info("order status changed",
			zap.Int64("order_id", result.ID),
			zap.String("status", string(result.Status)),
		)
		s.notifyOrder(ctx, result)
	}
	return result, nil
}

// reverseOrder restocks every line, books the refund expense and cancels any
// delivery still in flight.
func (s *Service) reverseOrder(ctx context.Context, tx store.Tx, order domain.Order) error {
	for _, line := range order.Lines {
		if err := tx.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	if err := s.bookOrderRefund(ctx, tx, order); err != nil {
		return err
	}
	return s.closeActiveMission(ctx, tx, order.ID, domain.MissionCancelled)
}

func (s *Service) closeActiveMission(ctx context.Context, tx store.Tx, orderID int64, status domain.MissionStatus) error {
	mission, err := tx.GetActiveMission(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	at := s.now()
	return tx.UpdateMissionStatus(ctx, mission.ID, status, &at)
}

var orderStatusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusNew:            "Order #%d has been received",
	domain.OrderStatusPreparing:      "Order #%d is being prepared",
	domain.OrderStatusReady:          "Order #%d is ready",
	domain.OrderStatusOutForDelivery: "Order #%d is on its way",
	domain.OrderStatusCompleted:      "Order #%d has been completed",
	domain.OrderStatusRejected:       "Order #%d was rejected",
}

func (s *Service) notifyOrder(ctx context.Context, order domain.Order) {
	if order.CustomerID == nil {
		return
	}
	format, ok := orderStatusMessages[order.Status]
	if !ok {
		return
	}
	s.notifier.Notify(ctx, *order.CustomerID, fmt.Sprintf(format, order.ID), fmt.Sprintf("/orders/%d", order.ID))
}
