package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hub-order-service/internal/models"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, customer_email, hub_id, total_amount, status,
		                    payment_method, payment_status, payment_tx_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.UserID, order.CustomerEmail, order.HubID, order.TotalAmount, order.Status,
		order.PaymentMethod, order.PaymentStatus, order.PaymentTxID, order.IdempotencyKey)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, reserved_quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return s.db.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.ReservedQuantity, item.UnitPrice)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// MarkItemsReserved records that every item of the order holds its quantity
func (s *Store) MarkItemsReserved(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE order_items SET reserved_quantity = quantity WHERE order_id = $1", orderID)
	return err
}

// ClearItemReservations zeroes reserved_quantity for all items of the order
func (s *Store) ClearItemReservations(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE order_items SET reserved_quantity = 0 WHERE order_id = $1", orderID)
	return err
}

// SetOrderOtp stores a fresh pickup code, replacing any previous one
func (s *Store) SetOrderOtp(ctx context.Context, orderID int64, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET otp_code = $1, otp_expires_at = $2, otp_attempts = 0, updated_at = NOW() WHERE id = $3",
		code, expiresAt, orderID)
	return err
}

// ClearOrderOtp consumes the stored pickup code
func (s *Store) ClearOrderOtp(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET otp_code = '', otp_attempts = 0, updated_at = NOW() WHERE id = $1",
		orderID)
	return err
}

// IncrementOtpAttempts bumps the failed-verification counter and returns it
func (s *Store) IncrementOtpAttempts(ctx context.Context, orderID int64) (int, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts,
		"UPDATE orders SET otp_attempts = otp_attempts + 1, updated_at = NOW() WHERE id = $1 RETURNING otp_attempts",
		orderID)
	return attempts, err
}

// CreateRestockRequest opens a restock request unless one is already OPEN for
// the same hub, product and order. Returns the request and whether it was new.
func (s *Store) CreateRestockRequest(ctx context.Context, req *models.RestockRequest) (bool, error) {
	query := `
		INSERT INTO restock_requests (hub_id, product_id, requested_quantity, status, order_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hub_id, product_id, order_id) WHERE status = 'OPEN' DO NOTHING
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, req, query,
		req.HubID, req.ProductID, req.RequestedQuantity, models.RestockStatusOpen, req.OrderID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	req.Status = models.RestockStatusOpen
	return true, nil
}

// GetOpenRestockRequests lists OPEN requests for a hub/product, oldest
// related order first
func (s *Store) GetOpenRestockRequests(ctx context.Context, hubID, productID int64) ([]models.RestockRequest, error) {
	var reqs []models.RestockRequest
	err := s.db.SelectContext(ctx, &reqs, `
		SELECT rr.* FROM restock_requests rr
		JOIN orders o ON o.id = rr.order_id
		WHERE rr.hub_id = $1 AND rr.product_id = $2 AND rr.status = $3
		ORDER BY o.created_at, rr.id`,
		hubID, productID, models.RestockStatusOpen)
	return reqs, err
}

// GetOpenRestockRequestsByOrder lists OPEN requests linked to an order
func (s *Store) GetOpenRestockRequestsByOrder(ctx context.Context, orderID int64) ([]models.RestockRequest, error) {
	var reqs []models.RestockRequest
	err := s.db.SelectContext(ctx, &reqs,
		"SELECT * FROM restock_requests WHERE order_id = $1 AND status = $2 ORDER BY id",
		orderID, models.RestockStatusOpen)
	return reqs, err
}

// ListRestockRequests lists requests for a hub, optionally filtered by status
func (s *Store) ListRestockRequests(ctx context.Context, hubID int64, status string) ([]models.RestockRequest, error) {
	if status == "" {
		var reqs []models.RestockRequest
		err := s.db.SelectContext(ctx, &reqs,
			"SELECT * FROM restock_requests WHERE hub_id = $1 ORDER BY created_at DESC", hubID)
		return reqs, err
	}
	var reqs []models.RestockRequest
	err := s.db.SelectContext(ctx, &reqs,
		"SELECT * FROM restock_requests WHERE hub_id = $1 AND status = $2 ORDER BY created_at DESC",
		hubID, status)
	return reqs, err
}

// MarkRestockRequestFulfilled resolves a request
func (s *Store) MarkRestockRequestFulfilled(ctx context.Context, requestID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE restock_requests SET status = $1, updated_at = NOW() WHERE id = $2",
		models.RestockStatusFulfilled, requestID)
	return err
}

// CreateNotification persists a notification row
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (recipient_role, message, entity_id, read)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, n, query, n.RecipientRole, n.Message, n.EntityID)
}

// GetNotificationsByRole retrieves notifications for a role, newest first
func (s *Store) GetNotificationsByRole(ctx context.Context, role string) ([]models.Notification, error) {
	var ns []models.Notification
	err := s.db.SelectContext(ctx, &ns,
		"SELECT * FROM notifications WHERE recipient_role = $1 ORDER BY created_at DESC LIMIT 100", role)
	return ns, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
