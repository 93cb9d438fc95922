package models

import "time"

// Product represents a product in the nursery catalog
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HubStock represents per-hub stock counters for a product.
// Invariant: 0 <= available_stock <= total_stock.
type HubStock struct {
	HubID          int64     `db:"hub_id" json:"hub_id"`
	ProductID      int64     `db:"product_id" json:"product_id"`
	TotalStock     int       `db:"total_stock" json:"total_stock"`
	AvailableStock int       `db:"available_stock" json:"available_stock"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ItemQty is a product/quantity pair used by inventory operations
type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Shortfall describes an item that could not be reserved
type Shortfall struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

// Order represents a hub-collection order
type Order struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	CustomerEmail  string    `db:"customer_email" json:"customer_email"`
	HubID          int64     `db:"hub_id" json:"hub_id"`
	TotalAmount    int64     `db:"total_amount" json:"total_amount"`
	Status         string    `db:"status" json:"status"`
	PaymentMethod  string    `db:"payment_method" json:"payment_method"`
	PaymentStatus  string    `db:"payment_status" json:"payment_status"`
	PaymentTxID    string    `db:"payment_tx_id" json:"payment_tx_id,omitempty"`
	OtpCode        string    `db:"otp_code" json:"-"`
	OtpExpiresAt   time.Time `db:"otp_expires_at" json:"-"`
	OtpAttempts    int       `db:"otp_attempts" json:"-"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem represents a line in an order. ReservedQuantity is non-zero
// only while the order holds stock (APPROVED through READY_FOR_COLLECTION).
type OrderItem struct {
	ID               int64 `db:"id" json:"id"`
	OrderID          int64 `db:"order_id" json:"order_id"`
	ProductID        int64 `db:"product_id" json:"product_id"`
	Quantity         int   `db:"quantity" json:"quantity"`
	ReservedQuantity int   `db:"reserved_quantity" json:"reserved_quantity"`
	UnitPrice        int64 `db:"unit_price" json:"unit_price"`
}

// RestockRequest records an inventory shortfall awaiting replenishment
type RestockRequest struct {
	ID                int64     `db:"id" json:"id"`
	HubID             int64     `db:"hub_id" json:"hub_id"`
	ProductID         int64     `db:"product_id" json:"product_id"`
	RequestedQuantity int       `db:"requested_quantity" json:"requested_quantity"`
	Status            string    `db:"status" json:"status"`
	OrderID           int64     `db:"order_id" json:"order_id"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Notification is a fire-and-forget message to an admin or hub manager
type Notification struct {
	ID            int64     `db:"id" json:"id"`
	RecipientRole string    `db:"recipient_role" json:"recipient_role"`
	Message       string    `db:"message" json:"message"`
	EntityID      int64     `db:"entity_id" json:"entity_id"`
	Read          bool      `db:"read" json:"read"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending            = "PENDING"
	OrderStatusApproved           = "APPROVED"
	OrderStatusArrivedAtHub       = "ARRIVED_AT_HUB"
	OrderStatusReadyForCollection = "READY_FOR_COLLECTION"
	OrderStatusDelivered          = "DELIVERED"
	OrderStatusCancelled          = "CANCELLED"
)

// Payment methods
const (
	PaymentMethodCOD    = "COD"
	PaymentMethodOnline = "ONLINE"
)

// Payment statuses
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusFailed   = "FAILED"
	PaymentStatusRefunded = "REFUNDED"
)

// Restock request statuses
const (
	RestockStatusOpen      = "OPEN"
	RestockStatusFulfilled = "FULFILLED"
)

// Notification recipient roles
const (
	RoleAdmin      = "ADMIN"
	RoleHubManager = "HUB_MANAGER"
)

var validNext = map[string]map[string]bool{
	OrderStatusPending:            {OrderStatusApproved: true, OrderStatusCancelled: true},
	OrderStatusApproved:           {OrderStatusArrivedAtHub: true, OrderStatusCancelled: true},
	OrderStatusArrivedAtHub:       {OrderStatusReadyForCollection: true, OrderStatusCancelled: true},
	OrderStatusReadyForCollection: {OrderStatusDelivered: true},
	OrderStatusDelivered:          {},
	OrderStatusCancelled:          {},
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to string) bool {
	return validNext[from][to]
}

// IsTerminal reports whether a status admits no further transitions
func IsTerminal(status string) bool {
	next, known := validNext[status]
	return known && len(next) == 0
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
