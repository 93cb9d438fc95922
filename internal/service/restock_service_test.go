package service

import (
	"context"
	"testing"

	"hub-order-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestockFulfillsPendingOrder(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 2500)
	ms.addStock(7, 1, 10, 10)
	orders, _, restock, sink := newTestServices(ms)

	// the full shelf goes to the first customer
	first := placeApproved(t, ms, orders, 10)
	stock, _ := ms.GetHubStock(context.Background(), 7, 1)
	require.Zero(t, stock.AvailableStock)

	// the next one queues behind a restock request
	resp, err := orders.PlaceOrder(context.Background(), codCheckout(2, 7,
		OrderItemRequest{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, resp.Status)
	open, _ := ms.GetOpenRestockRequests(context.Background(), 7, 1)
	require.Len(t, open, 1)

	result, err := restock.Restock(context.Background(), 7, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 15, result.Stock.TotalStock)
	assert.Equal(t, []int64{resp.OrderID}, result.ApprovedOrderIDs)
	assert.Equal(t, []int64{open[0].ID}, result.FulfilledRequestIDs)

	queued, _ := ms.GetOrderByID(context.Background(), resp.OrderID)
	assert.Equal(t, models.OrderStatusApproved, queued.Status)
	unchanged, _ := ms.GetOrderByID(context.Background(), first)
	assert.Equal(t, models.OrderStatusApproved, unchanged.Status)

	stock, _ = ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 15, stock.TotalStock)
	assert.Equal(t, 4, stock.AvailableStock)

	remaining, _ := ms.GetOpenRestockRequests(context.Background(), 7, 1)
	assert.Empty(t, remaining)
	assert.Equal(t, 1, sink.countOf(models.EventTypeRestockFulfilled))
	assert.Equal(t, 2, sink.countOf(models.EventTypeOrderApproved))
}

func TestRestockApprovesOldestOrderFirst(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 2500)
	ms.addStock(7, 1, 0, 0)
	orders, _, restock, _ := newTestServices(ms)

	older, err := orders.PlaceOrder(context.Background(), codCheckout(2, 7,
		OrderItemRequest{ProductID: 1, Quantity: 4}))
	require.NoError(t, err)
	newer, err := orders.PlaceOrder(context.Background(), codCheckout(3, 7,
		OrderItemRequest{ProductID: 1, Quantity: 4}))
	require.NoError(t, err)

	// 5 units cover only one of the two waiting orders
	result, err := restock.Restock(context.Background(), 7, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{older.OrderID}, result.ApprovedOrderIDs)

	skipped, _ := ms.GetOrderByID(context.Background(), newer.OrderID)
	assert.Equal(t, models.OrderStatusPending, skipped.Status)
	open, _ := ms.GetOpenRestockRequests(context.Background(), 7, 1)
	require.Len(t, open, 1)
	assert.Equal(t, newer.OrderID, open[0].OrderID)

	// the remainder is not enough, so the newer order keeps waiting
	result, err = restock.Restock(context.Background(), 7, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, result.ApprovedOrderIDs)

	result, err = restock.Restock(context.Background(), 7, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{newer.OrderID}, result.ApprovedOrderIDs)
}

func TestRestockMultiItemOrderNeedsAllRequestsCovered(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 2500)
	ms.addProduct(2, 900)
	ms.addStock(7, 1, 0, 0)
	ms.addStock(7, 2, 0, 0)
	orders, _, restock, _ := newTestServices(ms)

	resp, err := orders.PlaceOrder(context.Background(), codCheckout(2, 7,
		OrderItemRequest{ProductID: 1, Quantity: 2},
		OrderItemRequest{ProductID: 2, Quantity: 3}))
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, resp.Status)

	// one product replenished, the other still missing
	result, err := restock.Restock(context.Background(), 7, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, result.ApprovedOrderIDs)

	order, _ := ms.GetOrderByID(context.Background(), resp.OrderID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	openOne, _ := ms.GetOpenRestockRequests(context.Background(), 7, 1)
	assert.Len(t, openOne, 1)

	// the second product arrives and both requests resolve together
	result, err = restock.Restock(context.Background(), 7, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{resp.OrderID}, result.ApprovedOrderIDs)
	assert.Len(t, result.FulfilledRequestIDs, 2)

	order, _ = ms.GetOrderByID(context.Background(), resp.OrderID)
	assert.Equal(t, models.OrderStatusApproved, order.Status)
	openOne, _ = ms.GetOpenRestockRequests(context.Background(), 7, 1)
	assert.Empty(t, openOne)
	openTwo, _ := ms.GetOpenRestockRequests(context.Background(), 7, 2)
	assert.Empty(t, openTwo)
}

func TestRestockSkipsCancelledOrders(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 2500)
	ms.addStock(7, 1, 0, 0)
	orders, _, restock, _ := newTestServices(ms)

	resp, err := orders.PlaceOrder(context.Background(), codCheckout(2, 7,
		OrderItemRequest{ProductID: 1, Quantity: 2}))
	require.NoError(t, err)
	_, err = orders.Cancel(context.Background(), resp.OrderID)
	require.NoError(t, err)

	result, err := restock.Restock(context.Background(), 7, 1, 5)
	require.NoError(t, err)
	assert.Empty(t, result.ApprovedOrderIDs)

	stock, _ := ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 5, stock.AvailableStock)
	order, _ := ms.GetOrderByID(context.Background(), resp.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
}

func TestRestockZeroQuantityOnlyReportsStock(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 2500)
	ms.addStock(7, 1, 3, 3)
	_, _, restock, _ := newTestServices(ms)

	result, err := restock.Restock(context.Background(), 7, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stock.TotalStock)
	assert.Empty(t, result.ApprovedOrderIDs)
	assert.Empty(t, result.FulfilledRequestIDs)
}

func TestAutoApprovalFailureLeavesRequestOpen(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 2500)
	ms.addStock(7, 1, 0, 0)
	fs := &failingStatusStore{memStore: ms}
	sink := &recordingSink{}
	inv := NewInventoryService(ms, nil)
	orders := NewOrderService(fs, inv, sink)
	restock := NewRestockService(fs, inv, sink)

	resp, err := orders.PlaceOrder(context.Background(), codCheckout(2, 7,
		OrderItemRequest{ProductID: 1, Quantity: 2}))
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, resp.Status)

	fs.failNext = true
	result, err := restock.Restock(context.Background(), 7, 1, 5)
	require.NoError(t, err)
	assert.Empty(t, result.ApprovedOrderIDs)

	// the failed approval released its hold and kept the request OPEN
	order, _ := ms.GetOrderByID(context.Background(), resp.OrderID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	stock, _ := ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 5, stock.AvailableStock)
	items, _ := ms.GetOrderItemsByOrderID(context.Background(), resp.OrderID)
	assert.Zero(t, items[0].ReservedQuantity)
	open, _ := ms.GetOpenRestockRequests(context.Background(), 7, 1)
	require.Len(t, open, 1)

	// the next restock pass picks the order up again
	result, err = restock.Restock(context.Background(), 7, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{resp.OrderID}, result.ApprovedOrderIDs)
	stock, _ = ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 4, stock.AvailableStock)
}

func TestRestockConservesStockAccounting(t *testing.T) {
	ms := newMemStore()
	ms.addProduct(1, 2500)
	ms.addStock(7, 1, 6, 6)
	orders, pickup, restock, sink := newTestServices(ms)

	first := placeApproved(t, ms, orders, 6)
	pending, err := orders.PlaceOrder(context.Background(), codCheckout(2, 7,
		OrderItemRequest{ProductID: 1, Quantity: 2}))
	require.NoError(t, err)

	_, err = restock.Restock(context.Background(), 7, 1, 4)
	require.NoError(t, err)

	// walk both orders through delivery
	for _, orderID := range []int64{first, pending.OrderID} {
		_, err = pickup.MarkArrivedAtHub(context.Background(), orderID)
		require.NoError(t, err)
		_, err = pickup.GenerateOtp(context.Background(), orderID)
		require.NoError(t, err)
		code := sink.otps[len(sink.otps)-1].Code
		delivered, err := pickup.VerifyOtp(context.Background(), orderID, code)
		require.NoError(t, err)
		require.Equal(t, models.OrderStatusDelivered, delivered.Status)
	}

	// 6+4 stocked, 8 sold, 2 remain and none is stuck in a reservation
	stock, _ := ms.GetHubStock(context.Background(), 7, 1)
	assert.Equal(t, 2, stock.TotalStock)
	assert.Equal(t, 2, stock.AvailableStock)
}
