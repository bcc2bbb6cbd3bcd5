package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

// AssignDriver opens a delivery mission for a ready delivery order and sends
// the order out for delivery in the same unit.
func (s *Service) AssignDriver(ctx context.Context, req domain.DeliveryAssignRequest) (domain.DeliveryMission, error) {
	if err := s.validateRequest(req); err != nil {
		return domain.DeliveryMission{}, err
	}
	req.DriverName = strings.TrimSpace(req.DriverName)
	if req.DriverName == "" {
		return domain.DeliveryMission{}, invalidf("driver_name required")
	}
	if req.Commission.IsNegative() {
		return domain.DeliveryMission{}, invalidf("commission must not be negative")
	}

	var (
		mission *domain.DeliveryMission
		order   domain.Order
	)
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		locked, err := tx.GetOrderForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if locked.Type != domain.OrderTypeDelivery {
			return invalidf("order #%d is not a delivery order", locked.ID)
		}
		if _, err := tx.GetActiveMission(ctx, locked.ID); err == nil {
			return fmt.Errorf("%w: order #%d", store.ErrMissionAlreadyActive, locked.ID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if locked.Status != domain.OrderStatusReady {
			return fmt.Errorf("%w: order #%d is %s, not ready", store.ErrInvalidTransition, locked.ID, locked.Status)
		}

		at := s.now()
		mission, err = tx.InsertMission(ctx, domain.DeliveryMission{
			OrderID:     locked.ID,
			DriverName:  req.DriverName,
			DriverPhone: strings.TrimSpace(req.DriverPhone),
			Commission:  req.Commission,
			Status:      domain.MissionAssigned,
			AssignedAt:  at,
		})
		if err != nil {
			if errors.Is(err, store.ErrMissionAlreadyActive) {
				return fmt.Errorf("%w: order #%d", store.ErrMissionAlreadyActive, locked.ID)
			}
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, locked.ID, domain.OrderStatusReady, domain.OrderStatusOutForDelivery, "", at); err != nil {
			return err
		}
		locked.Status = domain.OrderStatusOutForDelivery
		locked.UpdatedAt = at
		order = *locked
		return nil
	})
	if err != nil {
		return domain.DeliveryMission{}, err
	}

	s.logger.Info("driver assigned",
		zap.Int64("mission_id", mission.ID),
		zap.Int64("order_id", mission.OrderID),
		zap.String("driver", mission.DriverName),
	)
	s.notifyOrder(ctx, order)
	return *mission, nil
}

var allowedMissionTransitions = map[domain.MissionStatus][]domain.MissionStatus{
	domain.MissionAssigned: {domain.MissionPickedUp, domain.MissionDelivered, domain.MissionCancelled},
	domain.MissionPickedUp: {domain.MissionDelivered, domain.MissionCancelled},
}

// UpdateMissionStatus advances a mission and keeps its order in step:
// delivered completes the order, cancelled returns it to ready. The order is
// only touched while it is still out for delivery.
func (s *Service) UpdateMissionStatus(ctx context.Context, missionID int64, to domain.MissionStatus) (domain.DeliveryUpdateResponse, error) {
	if !to.Valid() {
		return domain.DeliveryUpdateResponse{}, invalidf("unknown mission status %q", to)
	}

	current, err := s.repo.GetMission(ctx, missionID)
	if err != nil {
		return domain.DeliveryUpdateResponse{}, err
	}

	var (
		resp         domain.DeliveryUpdateResponse
		orderChanged bool
	)
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		orderChanged = false
		// Lock the order before the mission, the same order TransitionOrder uses.
		order, err := tx.GetOrderForUpdate(ctx, current.OrderID)
		if err != nil {
			return err
		}
		mission, err := tx.GetMissionForUpdate(ctx, missionID)
		if err != nil {
			return err
		}
		if mission.Status == to {
			resp = domain.DeliveryUpdateResponse{Mission: *mission, Order: *order}
			return nil
		}
		if !slices.Contains(allowedMissionTransitions[mission.Status], to) {
			return fmt.Errorf("%w: mission %s -> %s", store.ErrInvalidTransition, mission.Status, to)
		}

		at := s.now()
		stamp := mission.CompletedAt
		if to.Terminal() {
			stamp = &at
		}
		if err := tx.UpdateMissionStatus(ctx, mission.ID, to, stamp); err != nil {
			return err
		}
		mission.Status = to
		mission.CompletedAt = stamp

		if order.Status == domain.OrderStatusOutForDelivery && to.Terminal() {
			next := domain.OrderStatusCompleted
			if to == domain.MissionCancelled {
				next = domain.OrderStatusReady
			}
			if err := tx.UpdateOrderStatus(ctx, order.ID, order.Status, next, "", at); err != nil {
				return err
			}
			order.Status = next
			order.UpdatedAt = at
			orderChanged = true
		}
		resp = domain.DeliveryUpdateResponse{Mission: *mission, Order: *order}
		return nil
	})
	if err != nil {
		return domain.DeliveryUpdateResponse{}, err
	}

	if orderChanged {
		s.logger.Info("delivery closed",
			zap.Int64("mission_id", resp.Mission.ID),
			zap.String("mission_status", string(resp.Mission.Status)),
			zap.String("order_status", string(resp.Order.Status)),
		)
		s.notifyOrder(ctx, resp.Order)
	}
	return resp, nil
}

func (s *Service) ListOrderMissions(ctx context.Context, orderID int64) ([]domain.DeliveryMission, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListMissionsByOrder(ctx, orderID)
}
