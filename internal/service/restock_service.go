package service

import (
	"context"
	"fmt"

	"hub-order-service/internal/models"
	"hub-order-service/internal/util"

	"go.uber.org/zap"
)

// RestockService handles the admin restock action and the auto-approval of
// PENDING orders it unlocks.
type RestockService struct {
	store     OrderStore
	inventory *InventoryService
	events    EventSink
	logger    *zap.Logger
}

// NewRestockService creates a new restock service
func NewRestockService(store OrderStore, inventory *InventoryService, events EventSink) *RestockService {
	return &RestockService{
		store:     store,
		inventory: inventory,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// RestockResult reports what a restock unlocked
type RestockResult struct {
	Stock               *models.HubStock `json:"stock"`
	FulfilledRequestIDs []int64          `json:"fulfilled_request_ids"`
	ApprovedOrderIDs    []int64          `json:"approved_order_ids"`
}

// Restock adds stock to a hub and then re-checks outstanding restock
// requests for that product, oldest order first. An order is approved only
// when every one of its open requests is covered at once, so a partially
// replenished multi-item order stays PENDING with its requests OPEN.
func (rs *RestockService) Restock(ctx context.Context, hubID, productID int64, quantity int) (*RestockResult, error) {
	ctx, span := util.StartSpan(ctx, "RestockService.Restock")
	defer span.End()

	stock, err := rs.inventory.Restock(ctx, hubID, productID, quantity)
	if err != nil {
		return nil, err
	}

	rs.logger.Info("Hub restocked",
		zap.Int64("hub_id", hubID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("available", stock.AvailableStock))

	result := &RestockResult{Stock: stock}
	if quantity <= 0 {
		return result, nil
	}

	if err := rs.onRestocked(ctx, hubID, productID, result); err != nil {
		return result, err
	}
	return result, nil
}

// onRestocked walks OPEN requests FIFO by order creation time and approves
// every PENDING order whose full shortfall is now covered.
func (rs *RestockService) onRestocked(ctx context.Context, hubID, productID int64, result *RestockResult) error {
	requests, err := rs.store.GetOpenRestockRequests(ctx, hubID, productID)
	if err != nil {
		return fmt.Errorf("failed to load restock requests: %w", err)
	}

	seen := make(map[int64]bool, len(requests))
	for _, req := range requests {
		if seen[req.OrderID] {
			continue
		}
		seen[req.OrderID] = true

		approved, fulfilled, err := rs.tryApproveOrder(ctx, req.OrderID)
		if err != nil {
			rs.logger.Error("Auto-approval check failed",
				zap.Int64("order_id", req.OrderID),
				zap.Error(err))
			continue
		}
		if approved {
			result.ApprovedOrderIDs = append(result.ApprovedOrderIDs, req.OrderID)
			result.FulfilledRequestIDs = append(result.FulfilledRequestIDs, fulfilled...)
		}
	}
	return nil
}

// tryApproveOrder reserves the whole order if current stock covers all of
// its open requests, then resolves those requests.
func (rs *RestockService) tryApproveOrder(ctx context.Context, orderID int64) (bool, []int64, error) {
	order, err := rs.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return false, nil, err
	}
	if order.Status != models.OrderStatusPending {
		// cancelled or already approved elsewhere; nothing to do
		return false, nil, nil
	}

	items, err := rs.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return false, nil, err
	}

	quantities := make([]models.ItemQty, 0, len(items))
	for _, it := range items {
		quantities = append(quantities, models.ItemQty{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	if err := rs.inventory.Reserve(ctx, order.HubID, quantities); err != nil {
		if _, short := err.(*InsufficientStockError); short {
			return false, nil, nil // still short, request stays OPEN
		}
		return false, nil, err
	}

	if err := rs.store.MarkItemsReserved(ctx, orderID); err != nil {
		rs.unwindReservation(ctx, order, quantities)
		return false, nil, fmt.Errorf("failed to record reservation: %w", err)
	}
	if err := rs.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusApproved); err != nil {
		rs.unwindReservation(ctx, order, quantities)
		return false, nil, fmt.Errorf("failed to update order status: %w", err)
	}

	util.OrdersApprovedTotal.Inc()
	rs.logger.Info("Pending order auto-approved after restock",
		zap.Int64("order_id", orderID))

	open, err := rs.store.GetOpenRestockRequestsByOrder(ctx, orderID)
	if err != nil {
		return true, nil, err
	}

	fulfilled := make([]int64, 0, len(open))
	for _, req := range open {
		if err := rs.store.MarkRestockRequestFulfilled(ctx, req.ID); err != nil {
			rs.logger.Error("Failed to resolve restock request",
				zap.Int64("request_id", req.ID),
				zap.Error(err))
			continue
		}
		fulfilled = append(fulfilled, req.ID)
		util.RestockRequestsFulfilledTotal.Inc()

		event := &models.RestockFulfilledEvent{
			BaseEvent: newBaseEvent(models.EventTypeRestockFulfilled),
			RequestID: req.ID,
			HubID:     req.HubID,
			ProductID: req.ProductID,
			OrderID:   req.OrderID,
		}
		if err := rs.events.PublishRestockFulfilled(ctx, event); err != nil {
			rs.logger.Error("Failed to publish RestockFulfilled event", zap.Error(err))
		}
	}

	approvedEvent := &models.OrderApprovedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderApproved),
		OrderID:   orderID,
		HubID:     order.HubID,
		Items:     quantities,
	}
	if err := rs.events.PublishOrderApproved(ctx, approvedEvent); err != nil {
		rs.logger.Error("Failed to publish OrderApproved event", zap.Error(err))
	}

	return true, fulfilled, nil
}

// unwindReservation compensates a failed auto-approval: the reserved stock is
// credited back and the recorded reservation zeroed, so the order stays
// PENDING with its restock request OPEN and nothing held.
func (rs *RestockService) unwindReservation(ctx context.Context, order *models.Order, items []models.ItemQty) {
	if err := rs.inventory.Release(ctx, order.HubID, items); err != nil {
		rs.logger.Error("Failed to release after approval failure",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return
	}
	if err := rs.store.ClearItemReservations(ctx, order.ID); err != nil {
		rs.logger.Error("Failed to clear reservations after approval failure",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}
