package models

import "time"

// Event types
const (
	EventTypeOrderPlaced       = "ORDER_PLACED"
	EventTypeOrderApproved     = "ORDER_APPROVED"
	EventTypeOrderPendingStock = "ORDER_PENDING_STOCK"
	EventTypeRestockRequested  = "RESTOCK_REQUESTED"
	EventTypeRestockFulfilled  = "RESTOCK_FULFILLED"
	EventTypeOrderArrived      = "ORDER_ARRIVED_AT_HUB"
	EventTypeOtpIssued         = "OTP_ISSUED"
	EventTypeOrderDelivered    = "ORDER_DELIVERED"
	EventTypeOrderCancelled    = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published when checkout creates an order, whatever its status
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     int64     `json:"order_id"`
	UserID      int64     `json:"user_id"`
	HubID       int64     `json:"hub_id"`
	Status      string    `json:"status"`
	TotalAmount int64     `json:"total_amount"`
	Items       []ItemQty `json:"items"`
}

// OrderApprovedEvent published when stock is reserved for an order
type OrderApprovedEvent struct {
	BaseEvent
	OrderID int64     `json:"order_id"`
	HubID   int64     `json:"hub_id"`
	Items   []ItemQty `json:"items"`
}

// OrderPendingStockEvent published when checkout lands understocked
type OrderPendingStockEvent struct {
	BaseEvent
	OrderID    int64       `json:"order_id"`
	HubID      int64       `json:"hub_id"`
	Shortfalls []Shortfall `json:"shortfalls"`
}

// RestockRequestedEvent published per opened restock request
type RestockRequestedEvent struct {
	BaseEvent
	RequestID int64 `json:"request_id"`
	HubID     int64 `json:"hub_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	OrderID   int64 `json:"order_id"`
}

// RestockFulfilledEvent published when an admin restock covers a request
type RestockFulfilledEvent struct {
	BaseEvent
	RequestID int64 `json:"request_id"`
	HubID     int64 `json:"hub_id"`
	ProductID int64 `json:"product_id"`
	OrderID   int64 `json:"order_id"`
}

// OrderArrivedEvent published when a hub manager confirms physical arrival
type OrderArrivedEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
	HubID   int64 `json:"hub_id"`
}

// OtpIssuedEvent published after a pickup code is committed to the order.
// The email worker delivers it; delivery failure never rolls the code back.
type OtpIssuedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	CustomerEmail string `json:"customer_email"`
	Code          string `json:"code"`
}

// OrderDeliveredEvent published when pickup is confirmed and stock fulfilled
type OrderDeliveredEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
	HubID   int64 `json:"hub_id"`
}

// OrderCancelledEvent published when an order is cancelled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	HubID   int64  `json:"hub_id"`
	Reason  string `json:"reason"`
}
