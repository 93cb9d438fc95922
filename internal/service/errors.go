package service

import (
	"fmt"
	"strings"

	"hub-order-service/internal/models"
)

// InsufficientStockError reports items a hub could not cover. At checkout it
// routes the order to PENDING; on hub-manager actions it is surfaced as-is.
type InsufficientStockError struct {
	HubID      int64
	Shortfalls []models.Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("product %d requested %d available %d", s.ProductID, s.Requested, s.Available)
	}
	return fmt.Sprintf("insufficient stock at hub %d: %s", e.HubID, strings.Join(parts, "; "))
}

// InvalidTransitionError reports an illegal order status change
type InvalidTransitionError struct {
	OrderID int64
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// OverFulfillError reports an attempt to fulfill more than was reserved.
// This is a data-integrity violation; the order is left untouched.
type OverFulfillError struct {
	HubID     int64
	ProductID int64
	Requested int
	Reserved  int
}

func (e *OverFulfillError) Error() string {
	return fmt.Sprintf("fulfill of %d exceeds reservation of %d for product %d at hub %d",
		e.Requested, e.Reserved, e.ProductID, e.HubID)
}

// PaymentGateError rejects a checkout before the order is created
type PaymentGateError struct {
	Reason string
}

func (e *PaymentGateError) Error() string {
	return fmt.Sprintf("payment rejected: %s", e.Reason)
}

// InvalidOtpError reports a failed pickup-code verification
type InvalidOtpError struct {
	Reason string
}

func (e *InvalidOtpError) Error() string {
	return fmt.Sprintf("invalid pickup code: %s", e.Reason)
}
