package service

import (
	"context"
	"fmt"
	"time"

	"hub-order-service/internal/models"
	"hub-order-service/internal/util"

	"go.uber.org/zap"
)

// PickupService drives the hub-side tail of the order lifecycle: arrival
// at the hub, pickup-code issuance and the final DELIVERED transition.
type PickupService struct {
	store       OrderStore
	inventory   *InventoryService
	events      EventSink
	logger      *zap.Logger
	otpTTL      time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewPickupService creates a new pickup service
func NewPickupService(store OrderStore, inventory *InventoryService, events EventSink, otpTTL time.Duration, maxAttempts int) *PickupService {
	return &PickupService{
		store:       store,
		inventory:   inventory,
		events:      events,
		logger:      util.GetLogger(),
		otpTTL:      otpTTL,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// MarkArrivedAtHub confirms physical arrival. The checkout-time reservation
// is released and re-taken as one unit, so stock corrections between
// placement and arrival are caught here. On shortfall the order stays
// APPROVED and the error names the short items.
func (ps *PickupService) MarkArrivedAtHub(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PickupService.MarkArrivedAtHub")
	defer span.End()

	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(order.Status, models.OrderStatusArrivedAtHub) {
		return order, &InvalidTransitionError{OrderID: orderID, From: order.Status, To: models.OrderStatusArrivedAtHub}
	}

	items, err := ps.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return order, err
	}

	held := make([]models.ItemQty, 0, len(items))
	want := make([]models.ItemQty, 0, len(items))
	for _, it := range items {
		held = append(held, models.ItemQty{ProductID: it.ProductID, Quantity: it.ReservedQuantity})
		want = append(want, models.ItemQty{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	if err := ps.inventory.Revalidate(ctx, order.HubID, held, want); err != nil {
		ps.logger.Warn("Arrival revalidation failed",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return order, err
	}

	if err := ps.store.MarkItemsReserved(ctx, orderID); err != nil {
		return order, fmt.Errorf("failed to record reservation: %w", err)
	}
	if err := ps.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusArrivedAtHub); err != nil {
		return order, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = models.OrderStatusArrivedAtHub

	ps.logger.Info("Order arrived at hub",
		zap.Int64("order_id", orderID),
		zap.Int64("hub_id", order.HubID))

	event := &models.OrderArrivedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderArrived),
		OrderID:   orderID,
		HubID:     order.HubID,
	}
	if err := ps.events.PublishOrderArrived(ctx, event); err != nil {
		ps.logger.Error("Failed to publish OrderArrived event", zap.Error(err))
	}

	return order, nil
}

// GenerateOtp issues a fresh pickup code and moves the order to
// READY_FOR_COLLECTION. Calling it again replaces the previous code. The
// code is committed before the email event goes out; delivery failure is the
// email worker's problem, never a rollback.
func (ps *PickupService) GenerateOtp(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PickupService.GenerateOtp")
	defer span.End()

	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	regenerate := order.Status == models.OrderStatusReadyForCollection
	if !regenerate && !models.CanTransition(order.Status, models.OrderStatusReadyForCollection) {
		return order, &InvalidTransitionError{OrderID: orderID, From: order.Status, To: models.OrderStatusReadyForCollection}
	}

	code, err := generateOtpCode()
	if err != nil {
		return order, err
	}

	expiresAt := ps.now().Add(ps.otpTTL)
	if err := ps.store.SetOrderOtp(ctx, orderID, code, expiresAt); err != nil {
		return order, fmt.Errorf("failed to store pickup code: %w", err)
	}

	if !regenerate {
		if err := ps.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusReadyForCollection); err != nil {
			return order, fmt.Errorf("failed to update order status: %w", err)
		}
		order.Status = models.OrderStatusReadyForCollection
	}

	util.OtpIssuedTotal.Inc()
	ps.logger.Info("Pickup code issued", zap.Int64("order_id", orderID))

	event := &models.OtpIssuedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOtpIssued),
		OrderID:       orderID,
		CustomerEmail: order.CustomerEmail,
		Code:          code,
	}
	if err := ps.events.PublishOtpIssued(ctx, event); err != nil {
		ps.logger.Error("Failed to publish OtpIssued event", zap.Error(err))
	}

	return order, nil
}

// VerifyOtp checks the customer-supplied code and, on match, fulfills the
// reservation and delivers the order. The code is one-shot: it is cleared on
// success, so replaying it fails.
func (ps *PickupService) VerifyOtp(ctx context.Context, orderID int64, code string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PickupService.VerifyOtp")
	defer span.End()

	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusReadyForCollection {
		return order, &InvalidTransitionError{OrderID: orderID, From: order.Status, To: models.OrderStatusDelivered}
	}

	if order.OtpCode == "" {
		util.OtpVerifyFailuresTotal.WithLabelValues("no_code").Inc()
		return order, &InvalidOtpError{Reason: "no active code"}
	}
	if ps.now().After(order.OtpExpiresAt) {
		util.OtpVerifyFailuresTotal.WithLabelValues("expired").Inc()
		return order, &InvalidOtpError{Reason: "code expired, request a new one"}
	}
	if order.OtpAttempts >= ps.maxAttempts {
		util.OtpVerifyFailuresTotal.WithLabelValues("attempts_exhausted").Inc()
		return order, &InvalidOtpError{Reason: "too many attempts, request a new code"}
	}

	if !otpMatches(order.OtpCode, code) {
		if _, err := ps.store.IncrementOtpAttempts(ctx, orderID); err != nil {
			ps.logger.Error("Failed to record failed attempt",
				zap.Int64("order_id", orderID),
				zap.Error(err))
		}
		util.OtpVerifyFailuresTotal.WithLabelValues("mismatch").Inc()
		return order, &InvalidOtpError{Reason: "code does not match"}
	}

	items, err := ps.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return order, err
	}

	reserved := make(map[int64]int, len(items))
	quantities := make([]models.ItemQty, 0, len(items))
	for _, it := range items {
		reserved[it.ProductID] = it.ReservedQuantity
		quantities = append(quantities, models.ItemQty{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	if err := ps.inventory.Fulfill(ctx, order.HubID, quantities, reserved); err != nil {
		// data-integrity failure: leave the order for manual inspection
		ps.logger.Error("Fulfillment failed",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return order, err
	}

	if err := ps.store.ClearItemReservations(ctx, orderID); err != nil {
		return order, fmt.Errorf("failed to clear reservations: %w", err)
	}
	if err := ps.store.ClearOrderOtp(ctx, orderID); err != nil {
		return order, fmt.Errorf("failed to clear pickup code: %w", err)
	}
	if err := ps.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusDelivered); err != nil {
		return order, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = models.OrderStatusDelivered
	order.OtpCode = ""

	util.OrdersDeliveredTotal.Inc()
	ps.logger.Info("Order delivered", zap.Int64("order_id", orderID))

	event := &models.OrderDeliveredEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderDelivered),
		OrderID:   orderID,
		HubID:     order.HubID,
	}
	if err := ps.events.PublishOrderDelivered(ctx, event); err != nil {
		ps.logger.Error("Failed to publish OrderDelivered event", zap.Error(err))
	}

	return order, nil
}
