package service

import (
	"context"
	"testing"

	"hub-order-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices(ms *memStore) (*OrderService, *PickupService, *RestockService, *recordingSink) {
	sink := &recordingSink{}
	inv := NewInventoryService(ms, nil)
	orders := NewOrderService(ms, inv, sink)
	pickup := NewPickupService(ms, inv, sink, testOtpTTL, testOtpMaxAttempts)
	restock := NewRestockService(ms, inv, sink)
	return orders, pickup, restock, sink
}

func codCheckout(userID, hubID int64, items ...OrderItemRequest) *PlaceOrderRequest {
	return &PlaceOrderRequest{
		UserID:        userID,
		CustomerEmail: "customer@example.com",
		HubID:         hubID,
		Items:         items,
		Payment:       PaymentInfo{Method: models.PaymentMethodCOD},
	}
}

func TestPlaceOrderApprovedWithStock(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 1500)
	ms.addProduct(2, 800)
	ms.addStock(7, 1, 10, 10)
	ms.addStock(7, 2, 5, 5)
	orders, _, _, sink := newTestServices(ms)

	resp, err := orders.PlaceOrder(context.Background(), codCheckout(42, 7,
		OrderItemRequest{ProductID: 1, Quantity: 3},
		OrderItemRequest{ProductID: 2, Quantity: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusApproved, resp.Status)
	assert.Empty(t, resp.Shortfalls)

	stock, err := ms.GetHubStock(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, stock.AvailableStock)
	assert.Equal(t, 10, stock.TotalStock)

	items, err := ms.GetOrderItemsByOrderID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, it.Quantity, it.ReservedQuantity)
	}

	order, err := ms.GetOrderByID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(3*1500+2*800), order.TotalAmount)

	assert.Equal(t, 1, sink.countOf(models.EventTypeOrderApproved))
}

func TestPlaceOrderUnderstockGoesPending(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 1000)
	ms.addStock(7, 1, 10, 10)
	orders, _, _, sink := newTestServices(ms)

	// first order drains the hub
	first, err := orders.PlaceOrder(context.Background(), codCheckout(1, 7,
		OrderItemRequest{ProductID: 1, Quantity: 10}))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusApproved, first.Status)

	// second order cannot be covered: PENDING plus a restock request
	second, err := orders.PlaceOrder(context.Background(), codCheckout(2, 7,
		OrderItemRequest{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, second.Status)
	require.Len(t, second.Shortfalls, 1)
	assert.Equal(t, 1, second.Shortfalls[0].Requested)
	assert.Equal(t, 0, second.Shortfalls[0].Available)

	reqs, err := ms.GetOpenRestockRequests(context.Background(), 7, 1)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, second.OrderID, reqs[0].OrderID)
	assert.Equal(t, 1, reqs[0].RequestedQuantity)

	// understock never committed a partial reservation
	stock, _ := ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 0, stock.AvailableStock)

	assert.Equal(t, 1, sink.countOf(models.EventTypeOrderPendingStock))
	assert.Equal(t, 1, sink.countOf(models.EventTypeRestockRequested))
}

func TestPlaceOrderAllOrNothingAcrossItems(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 1000)
	ms.addProduct(2, 500)
	ms.addStock(7, 1, 10, 10)
	ms.addStock(7, 2, 1, 1)
	orders, _, _, _ := newTestServices(ms)

	resp, err := orders.PlaceOrder(context.Background(), codCheckout(1, 7,
		OrderItemRequest{ProductID: 1, Quantity: 2},
		OrderItemRequest{ProductID: 2, Quantity: 3},
	))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, resp.Status)

	// the covered item was not decremented either
	stock1, _ := ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 10, stock1.AvailableStock)
}

func TestPlaceOrderPaymentGate(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 1000)
	ms.addStock(7, 1, 10, 10)
	orders, _, _, _ := newTestServices(ms)

	req := codCheckout(1, 7, OrderItemRequest{ProductID: 1, Quantity: 1})
	req.Payment = PaymentInfo{Method: models.PaymentMethodOnline, Status: models.PaymentStatusPending}
	_, err := orders.PlaceOrder(context.Background(), req)
	assert.Error(t, err)

	req.Payment = PaymentInfo{Method: models.PaymentMethodOnline, Status: models.PaymentStatusPaid}
	_, err = orders.PlaceOrder(context.Background(), req)
	assert.Error(t, err) // PAID but no transaction id

	req.Payment = PaymentInfo{Method: models.PaymentMethodOnline, Status: models.PaymentStatusPaid, TransactionID: "TXN-1"}
	resp, err := orders.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusApproved, resp.Status)
}

func TestPlaceOrderIdempotency(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 1000)
	ms.addStock(7, 1, 10, 10)
	orders, _, _, _ := newTestServices(ms)

	req := codCheckout(1, 7, OrderItemRequest{ProductID: 1, Quantity: 2})
	req.IdempotencyKey = "key-1"

	first, err := orders.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	second, err := orders.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)

	// the duplicate did not reserve again
	stock, _ := ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 8, stock.AvailableStock)
}

func TestCancelReleasesReservation(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 1000)
	ms.addStock(7, 1, 10, 10)
	orders, _, _, _ := newTestServices(ms)

	resp, err := orders.PlaceOrder(context.Background(), codCheckout(1, 7,
		OrderItemRequest{ProductID: 1, Quantity: 4}))
	require.NoError(t, err)

	order, err := orders.Cancel(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)

	stock, _ := ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 10, stock.AvailableStock)
	assert.Equal(t, 10, stock.TotalStock)

	items, _ := ms.GetOrderItemsByOrderID(context.Background(), resp.OrderID)
	for _, it := range items {
		assert.Zero(t, it.ReservedQuantity)
	}
}

func TestCancelTerminalOrderRejected(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 1000)
	ms.addStock(7, 1, 10, 10)
	orders, _, _, _ := newTestServices(ms)

	resp, err := orders.PlaceOrder(context.Background(), codCheckout(1, 7,
		OrderItemRequest{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	_, err = orders.Cancel(context.Background(), resp.OrderID)
	require.NoError(t, err)

	_, err = orders.Cancel(context.Background(), resp.OrderID)
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.OrderStatusCancelled, transitionErr.From)

	// stock untouched by the rejected attempt
	stock, _ := ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 10, stock.AvailableStock)
}

func TestForceReleaseIsIdempotent(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 1000)
	ms.addStock(7, 1, 10, 10)
	orders, _, _, _ := newTestServices(ms)

	resp, err := orders.PlaceOrder(context.Background(), codCheckout(1, 7,
		OrderItemRequest{ProductID: 1, Quantity: 6}))
	require.NoError(t, err)

	_, err = orders.ForceRelease(context.Background(), resp.OrderID)
	require.NoError(t, err)

	stock, _ := ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 10, stock.AvailableStock)

	// releasing again credits nothing
	_, err = orders.ForceRelease(context.Background(), resp.OrderID)
	require.NoError(t, err)

	stock, _ = ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 10, stock.AvailableStock)
}

func TestApproveFailureReleasesReservation(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 1000)
	ms.addStock(7, 1, 10, 10)
	fs := &failingStatusStore{memStore: ms, failNext: true}
	sink := &recordingSink{}
	inv := NewInventoryService(ms, nil)
	orders := NewOrderService(fs, inv, sink)

	_, err := orders.PlaceOrder(context.Background(), codCheckout(1, 7,
		OrderItemRequest{ProductID: 1, Quantity: 3}))
	require.Error(t, err)

	// the failed approve left nothing behind
	list, err := ms.GetOrdersByUserID(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	order := list[0]
	assert.Equal(t, models.OrderStatusPending, order.Status)

	items, _ := ms.GetOrderItemsByOrderID(context.Background(), order.ID)
	assert.Zero(t, items[0].ReservedQuantity)
	stock, _ := ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 10, stock.AvailableStock)

	// a second order takes part of the stock, then the first is cancelled:
	// the cancel must not credit the units the compensation already returned
	second, err := orders.PlaceOrder(context.Background(), codCheckout(2, 7,
		OrderItemRequest{ProductID: 1, Quantity: 4}))
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusApproved, second.Status)

	_, err = orders.Cancel(context.Background(), order.ID)
	require.NoError(t, err)

	stock, _ = ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 6, stock.AvailableStock)
	assert.Equal(t, 10, stock.TotalStock)
}

func TestCalculateTotal(t *testing.T) {
	s := &OrderService{}

	items := []OrderItemRequest{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}
	products := map[int64]*models.Product{
		1: {ID: 1, Price: 1000},
		2: {ID: 2, Price: 500},
	}

	assert.Equal(t, int64(2500), s.calculateTotal(items, products))
}

func TestCheckPaymentGate(t *testing.T) {
	assert.NoError(t, checkPaymentGate(PaymentInfo{Method: models.PaymentMethodCOD}))
	assert.Error(t, checkPaymentGate(PaymentInfo{Method: "CHEQUE"}))
	assert.Error(t, checkPaymentGate(PaymentInfo{Method: models.PaymentMethodOnline, Status: models.PaymentStatusFailed}))
	assert.NoError(t, checkPaymentGate(PaymentInfo{
		Method: models.PaymentMethodOnline, Status: models.PaymentStatusPaid, TransactionID: "TXN-9",
	}))
}
