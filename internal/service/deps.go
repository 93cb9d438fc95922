package service

import (
	"context"
	"time"

	"hub-order-service/internal/models"
)

// InventoryStore is the persistence contract for hub stock counters.
// *store.Store satisfies it; tests use an in-memory implementation.
type InventoryStore interface {
	GetHubStock(ctx context.Context, hubID, productID int64) (*models.HubStock, error)
	GetHubStocks(ctx context.Context, hubID int64, productIDs []int64) ([]models.HubStock, error)
	ReserveStockTx(ctx context.Context, hubID int64, items []models.ItemQty) ([]models.Shortfall, error)
	RevalidateReservationTx(ctx context.Context, hubID int64, held, want []models.ItemQty) ([]models.Shortfall, error)
	ReleaseStock(ctx context.Context, hubID, productID int64, quantity int) error
	FulfillStock(ctx context.Context, hubID, productID int64, quantity int) error
	RestockStock(ctx context.Context, hubID, productID int64, quantity int) (*models.HubStock, error)
}

// OrderStore is the persistence contract for orders, order items and
// restock requests. *store.Store satisfies it.
type OrderStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error

	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	MarkItemsReserved(ctx context.Context, orderID int64) error
	ClearItemReservations(ctx context.Context, orderID int64) error

	SetOrderOtp(ctx context.Context, orderID int64, code string, expiresAt time.Time) error
	ClearOrderOtp(ctx context.Context, orderID int64) error
	IncrementOtpAttempts(ctx context.Context, orderID int64) (int, error)

	CreateRestockRequest(ctx context.Context, req *models.RestockRequest) (bool, error)
	GetOpenRestockRequests(ctx context.Context, hubID, productID int64) ([]models.RestockRequest, error)
	GetOpenRestockRequestsByOrder(ctx context.Context, orderID int64) ([]models.RestockRequest, error)
	MarkRestockRequestFulfilled(ctx context.Context, requestID int64) error
}

// EventSink publishes lifecycle events after a transition commits. Publish
// failures are logged by the caller and never roll anything back.
type EventSink interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderApproved(ctx context.Context, event *models.OrderApprovedEvent) error
	PublishOrderPendingStock(ctx context.Context, event *models.OrderPendingStockEvent) error
	PublishRestockRequested(ctx context.Context, event *models.RestockRequestedEvent) error
	PublishRestockFulfilled(ctx context.Context, event *models.RestockFulfilledEvent) error
	PublishOrderArrived(ctx context.Context, event *models.OrderArrivedEvent) error
	PublishOtpIssued(ctx context.Context, event *models.OtpIssuedEvent) error
	PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}
