package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

func (f fixture) readyDelivery(t *testing.T) domain.Order {
	t.Helper()
	order := f.createCustomerDelivery(t)
	return f.advance(t, order.ID, domain.OrderStatusPreparing, domain.OrderStatusReady)
}

func (f fixture) assign(t *testing.T, orderID int64) domain.DeliveryMission {
	t.Helper()
	mission, err := f.svc.AssignDriver(cashierCtx(), domain.DeliveryAssignRequest{
		OrderID:    orderID,
		DriverName: "Joko",
		Commission: money(8),
	})
	require.NoError(t, err)
	return mission
}

func TestAssignDriverSendsOrderOut(t *testing.T) {
	f := newFixture(t)
	order := f.readyDelivery(t)

	mission := f.assign(t, order.ID)

	assert.Equal(t, domain.MissionAssigned, mission.Status)
	assert.Equal(t, order.ID, mission.OrderID)
	assert.Nil(t, mission.CompletedAt)

	stored, err := f.svc.GetOrder(cashierCtx(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOutForDelivery, stored.Status)
}

func TestAssignDriverRejectsSecondActiveMission(t *testing.T) {
	f := newFixture(t)
	order := f.readyDelivery(t)
	f.assign(t, order.ID)

	_, err := f.svc.AssignDriver(cashierCtx(), domain.DeliveryAssignRequest{OrderID: order.ID, DriverName: "Wati"})
	require.ErrorIs(t, err, store.ErrMissionAlreadyActive)

	missions, err := f.svc.ListOrderMissions(cashierCtx(), order.ID)
	require.NoError(t, err)
	assert.Len(t, missions, 1)
}

func TestAssignDriverPreconditions(t *testing.T) {
	f := newFixture(t)

	notReady := f.createCustomerDelivery(t)
	_, err := f.svc.AssignDriver(cashierCtx(), domain.DeliveryAssignRequest{OrderID: notReady.ID, DriverName: "Joko"})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	pickup := f.createRegisterPickup(t)
	_, err = f.svc.AssignDriver(cashierCtx(), domain.DeliveryAssignRequest{OrderID: pickup.ID, DriverName: "Joko"})
	assert.ErrorIs(t, err, store.ErrInvalidRequest)

	_, err = f.svc.AssignDriver(cashierCtx(), domain.DeliveryAssignRequest{OrderID: 404, DriverName: "Joko"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.AssignDriver(cashierCtx(), domain.DeliveryAssignRequest{OrderID: notReady.ID, DriverName: "  "})
	assert.ErrorIs(t, err, store.ErrInvalidRequest)

	_, err = f.svc.AssignDriver(cashierCtx(), domain.DeliveryAssignRequest{OrderID: notReady.ID, DriverName: "Joko", Commission: money(-1)})
	assert.ErrorIs(t, err, store.ErrInvalidRequest)
}

func TestMissionDeliveredCompletesOrder(t *testing.T) {
	f := newFixture(t)
	order := f.readyDelivery(t)
	mission := f.assign(t, order.ID)

	resp, err := f.svc.UpdateMissionStatus(cashierCtx(), mission.ID, domain.MissionPickedUp)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionPickedUp, resp.Mission.Status)
	assert.Equal(t, domain.OrderStatusOutForDelivery, resp.Order.Status)

	resp, err = f.svc.UpdateMissionStatus(cashierCtx(), mission.ID, domain.MissionDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionDelivered, resp.Mission.Status)
	require.NotNil(t, resp.Mission.CompletedAt)
	assert.Equal(t, domain.OrderStatusCompleted, resp.Order.Status)

	// terminal missions only accept a repeat of their own status
	_, err = f.svc.UpdateMissionStatus(cashierCtx(), mission.ID, domain.MissionDelivered)
	require.NoError(t, err)
	_, err = f.svc.UpdateMissionStatus(cashierCtx(), mission.ID, domain.MissionCancelled)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	assert.Contains(t, f.notes.messages(), "Order #1 has been completed")
}

func TestMissionCancelledReturnsOrderToReady(t *testing.T) {
	f := newFixture(t)
	order := f.readyDelivery(t)
	first := f.assign(t, order.ID)

	resp, err := f.svc.UpdateMissionStatus(cashierCtx(), first.ID, domain.MissionCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReady, resp.Order.Status)

	second := f.assign(t, order.ID)
	assert.NotEqual(t, first.ID, second.ID)

	missions, err := f.svc.ListOrderMissions(cashierCtx(), order.ID)
	require.NoError(t, err)
	assert.Len(t, missions, 2)
}

func TestUpdateMissionStatusRejectsUnknownInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateMissionStatus(cashierCtx(), 1, domain.MissionStatus("lost"))
	assert.ErrorIs(t, err, store.ErrInvalidRequest)

	_, err = f.svc.UpdateMissionStatus(cashierCtx(), 99, domain.MissionDelivered)
	assert.ErrorIs(t, err, store.ErrNotFound)

	order := f.readyDelivery(t)
	mission := f.assign(t, order.ID)
	_, err = f.svc.UpdateMissionStatus(cashierCtx(), mission.ID, domain.MissionAssigned)
	require.NoError(t, err, "repeating the current status is a no-op")
}

func TestCompletingOrderClosesItsMission(t *testing.T) {
	f := newFixture(t)
	order := f.readyDelivery(t)
	mission := f.assign(t, order.ID)

	f.advance(t, order.ID, domain.OrderStatusCompleted)

	closed, err := f.repo.GetMission(cashierCtx(), mission.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionDelivered, closed.Status)
	assert.NotNil(t, closed.CompletedAt)
}

func TestRejectingOutForDeliveryCancelsMission(t *testing.T) {
	f := newFixture(t)
	order := f.readyDelivery(t)
	mission := f.assign(t, order.ID)

	f.advance(t, order.ID, domain.OrderStatusRejected)

	closed, err := f.repo.GetMission(cashierCtx(), mission.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionCancelled, closed.Status)
	assert.Equal(t, initialStock, f.stock(t, itemA))

	// the order no longer follows its mission
	_, err = f.svc.UpdateMissionStatus(cashierCtx(), mission.ID, domain.MissionDelivered)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}
