package service

import (
	"context"
	"fmt"
	"time"

	"hub-order-service/internal/models"
	"hub-order-service/internal/store"
	"hub-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService drives checkout, cancellation and order reads. It owns the
// order.status column together with PickupService and RestockService; stock
// counters are only ever touched through InventoryService.
type OrderService struct {
	store     OrderStore
	inventory *InventoryService
	events    EventSink
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, inventory *InventoryService, events EventSink) *OrderService {
	return &OrderService{
		store:     store,
		inventory: inventory,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// PlaceOrderRequest represents a checkout request
type PlaceOrderRequest struct {
	UserID         int64              `json:"user_id" binding:"required"`
	CustomerEmail  string             `json:"customer_email" binding:"required,email"`
	HubID          int64              `json:"hub_id" binding:"required"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Payment        PaymentInfo        `json:"payment" binding:"required"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents an item in a checkout request
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// PaymentInfo is the verified payment outcome supplied by the upstream
// payment gateway. The core trusts it as given.
type PaymentInfo struct {
	Method        string `json:"method" binding:"required,oneof=COD ONLINE"`
	Status        string `json:"status,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// PlaceOrderResponse represents the checkout outcome
type PlaceOrderResponse struct {
	OrderID    int64              `json:"order_id"`
	Status     string             `json:"status"`
	Shortfalls []models.Shortfall `json:"shortfalls,omitempty"`
}

// PlaceOrder runs the checkout entry of the state machine. With stock on
// hand the order lands APPROVED with a reservation; understock routes it to
// PENDING and opens restock requests instead of failing the sale.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if err := checkPaymentGate(req.Payment); err != nil {
		util.OrdersFailedTotal.WithLabelValues("payment_gate").Inc()
		return nil, err
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate checkout detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existing.ID))
		return &PlaceOrderResponse{OrderID: existing.ID, Status: existing.Status}, nil
	}

	products, err := s.validateItems(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	paymentStatus := req.Payment.Status
	if req.Payment.Method == models.PaymentMethodCOD {
		paymentStatus = models.PaymentStatusPending
	}

	order := &models.Order{
		UserID:         req.UserID,
		CustomerEmail:  req.CustomerEmail,
		HubID:          req.HubID,
		TotalAmount:    s.calculateTotal(req.Items, products),
		Status:         models.OrderStatusPending,
		PaymentMethod:  req.Payment.Method,
		PaymentStatus:  paymentStatus,
		PaymentTxID:    req.Payment.TransactionID,
		IdempotencyKey: req.IdempotencyKey,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	items := make([]models.ItemQty, 0, len(req.Items))
	for _, it := range req.Items {
		product := products[it.ProductID]
		orderItem := &models.OrderItem{
			OrderID:   order.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: product.Price,
		}
		if err := s.store.CreateOrderItem(ctx, orderItem); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		items = append(items, models.ItemQty{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("hub_id", order.HubID))

	s.publishPlaced(ctx, order, items)

	return s.tryApprove(ctx, order, items)
}

// tryApprove attempts the checkout reservation. Insufficient stock is not a
// failure here: the order stays PENDING and restock requests are opened.
func (s *OrderService) tryApprove(ctx context.Context, order *models.Order, items []models.ItemQty) (*PlaceOrderResponse, error) {
	err := s.inventory.Reserve(ctx, order.HubID, items)
	if err == nil {
		if err := s.approve(ctx, order.ID, order.HubID, items); err != nil {
			// keep the transition and its side effect in step
			s.unwindReservation(ctx, order, items)
			return nil, err
		}
		return &PlaceOrderResponse{OrderID: order.ID, Status: models.OrderStatusApproved}, nil
	}

	stockErr, ok := err.(*InsufficientStockError)
	if !ok {
		return nil, fmt.Errorf("reservation failed: %w", err)
	}

	s.logger.Info("Checkout understocked, opening restock requests",
		zap.Int64("order_id", order.ID),
		zap.Int("short_items", len(stockErr.Shortfalls)))

	util.OrdersPendingStockTotal.Inc()
	s.openRestockRequests(ctx, order, stockErr.Shortfalls)

	pendingEvent := &models.OrderPendingStockEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderPendingStock),
		OrderID:    order.ID,
		HubID:      order.HubID,
		Shortfalls: stockErr.Shortfalls,
	}
	if err := s.events.PublishOrderPendingStock(ctx, pendingEvent); err != nil {
		s.logger.Error("Failed to publish OrderPendingStock event", zap.Error(err))
	}

	return &PlaceOrderResponse{
		OrderID:    order.ID,
		Status:     models.OrderStatusPending,
		Shortfalls: stockErr.Shortfalls,
	}, nil
}

func (s *OrderService) approve(ctx context.Context, orderID, hubID int64, items []models.ItemQty) error {
	if err := s.store.MarkItemsReserved(ctx, orderID); err != nil {
		return fmt.Errorf("failed to record reservation: %w", err)
	}
	if err := s.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusApproved); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	util.OrdersApprovedTotal.Inc()

	event := &models.OrderApprovedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderApproved),
		OrderID:   orderID,
		HubID:     hubID,
		Items:     items,
	}
	if err := s.events.PublishOrderApproved(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderApproved event", zap.Error(err))
	}
	return nil
}

func (s *OrderService) openRestockRequests(ctx context.Context, order *models.Order, shortfalls []models.Shortfall) {
	for _, sf := range shortfalls {
		req := &models.RestockRequest{
			HubID:             order.HubID,
			ProductID:         sf.ProductID,
			RequestedQuantity: sf.Requested,
			OrderID:           order.ID,
		}
		created, err := s.store.CreateRestockRequest(ctx, req)
		if err != nil {
			s.logger.Error("Failed to open restock request",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", sf.ProductID),
				zap.Error(err))
			continue
		}
		if !created {
			continue // already OPEN for this hub+product+order
		}

		util.RestockRequestsOpenedTotal.Inc()

		event := &models.RestockRequestedEvent{
			BaseEvent: newBaseEvent(models.EventTypeRestockRequested),
			RequestID: req.ID,
			HubID:     req.HubID,
			ProductID: req.ProductID,
			Quantity:  req.RequestedQuantity,
			OrderID:   req.OrderID,
		}
		if err := s.events.PublishRestockRequested(ctx, event); err != nil {
			s.logger.Error("Failed to publish RestockRequested event", zap.Error(err))
		}
	}
}

// Cancel moves an order to CANCELLED and returns any held stock
func (s *OrderService) Cancel(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(order.Status, models.OrderStatusCancelled) {
		return order, &InvalidTransitionError{OrderID: orderID, From: order.Status, To: models.OrderStatusCancelled}
	}

	if err := s.releaseReservedItems(ctx, order); err != nil {
		return order, err
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled); err != nil {
		return order, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = models.OrderStatusCancelled

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled", zap.Int64("order_id", orderID))

	event := &models.OrderCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   orderID,
		HubID:     order.HubID,
		Reason:    "cancelled",
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return order, nil
}

// ForceRelease is the administrative override that returns an order's held
// stock without changing its status
func (s *OrderService) ForceRelease(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ForceRelease")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.releaseReservedItems(ctx, order); err != nil {
		return order, err
	}

	s.logger.Warn("Reservation force-released",
		zap.Int64("order_id", orderID),
		zap.String("status", order.Status))
	return order, nil
}

// unwindReservation compensates a failed approve: the reserved stock is
// credited back and the recorded reservation zeroed, leaving the order
// PENDING with nothing held. When the release itself fails the recorded
// reservation is kept, so a later cancel still returns the units exactly once.
func (s *OrderService) unwindReservation(ctx context.Context, order *models.Order, items []models.ItemQty) {
	if err := s.inventory.Release(ctx, order.HubID, items); err != nil {
		s.logger.Error("Failed to release after approval failure",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return
	}
	if err := s.store.ClearItemReservations(ctx, order.ID); err != nil {
		s.logger.Error("Failed to clear reservations after approval failure",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

// releaseReservedItems credits back whatever the order currently holds and
// zeroes the recorded reservation, so a repeat call releases nothing.
func (s *OrderService) releaseReservedItems(ctx context.Context, order *models.Order) error {
	items, err := s.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}

	held := make([]models.ItemQty, 0, len(items))
	for _, it := range items {
		if it.ReservedQuantity > 0 {
			held = append(held, models.ItemQty{ProductID: it.ProductID, Quantity: it.ReservedQuantity})
		}
	}
	if len(held) == 0 {
		return nil
	}

	if err := s.inventory.Release(ctx, order.HubID, held); err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}
	return s.store.ClearItemReservations(ctx, order.ID)
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// ListUserOrders retrieves a user's orders, newest first
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.GetOrdersByUserID(ctx, userID)
}

func (s *OrderService) validateItems(ctx context.Context, items []OrderItemRequest) (map[int64]*models.Product, error) {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	for _, it := range items {
		if _, ok := productMap[it.ProductID]; !ok {
			return nil, fmt.Errorf("product %d: %w", it.ProductID, store.ErrNotFound)
		}
	}
	return productMap, nil
}

func (s *OrderService) calculateTotal(items []OrderItemRequest, products map[int64]*models.Product) int64 {
	var total int64
	for _, it := range items {
		total += products[it.ProductID].Price * int64(it.Quantity)
	}
	return total
}

func (s *OrderService) publishPlaced(ctx context.Context, order *models.Order, items []models.ItemQty) {
	event := &models.OrderPlacedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderPlaced),
		OrderID:     order.ID,
		UserID:      order.UserID,
		HubID:       order.HubID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

// checkPaymentGate rejects checkout unless the payment is COD or already
// verified as PAID upstream
func checkPaymentGate(p PaymentInfo) error {
	switch p.Method {
	case models.PaymentMethodCOD:
		return nil
	case models.PaymentMethodOnline:
		if p.Status != models.PaymentStatusPaid {
			return &PaymentGateError{Reason: fmt.Sprintf("online payment not verified: status %q", p.Status)}
		}
		if p.TransactionID == "" {
			return &PaymentGateError{Reason: "online payment missing transaction id"}
		}
		return nil
	default:
		return &PaymentGateError{Reason: fmt.Sprintf("unsupported payment method: %q", p.Method)}
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
