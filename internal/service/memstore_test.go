package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"hub-order-service/internal/models"
	"hub-order-service/internal/store"
)

// memStore is an in-memory implementation of InventoryStore and OrderStore
// with the same atomicity semantics as the Postgres store.
type memStore struct {
	stocks   map[string]*models.HubStock
	products map[int64]*models.Product
	orders   map[int64]*models.Order
	items    map[int64][]*models.OrderItem
	restocks []*models.RestockRequest
	nextID   int64
	clock    time.Time
}

func newMemStore() *memStore {
	return &memStore{
		stocks:   make(map[string]*models.HubStock),
		products: make(map[int64]*models.Product),
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]*models.OrderItem),
		clock:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) addProduct(id int64, price int64) {
	m.products[id] = &models.Product{ID: id, SKU: fmt.Sprintf("SKU-%d", id), Name: fmt.Sprintf("Plant %d", id), Price: price}
}

func (m *memStore) addStock(hubID, productID int64, total, available int) {
	m.stocks[stockMapKey(hubID, productID)] = &models.HubStock{
		HubID: hubID, ProductID: productID, TotalStock: total, AvailableStock: available,
	}
}

func stockMapKey(hubID, productID int64) string {
	return fmt.Sprintf("%d:%d", hubID, productID)
}

func (m *memStore) GetHubStock(_ context.Context, hubID, productID int64) (*models.HubStock, error) {
	hs, ok := m.stocks[stockMapKey(hubID, productID)]
	if !ok {
		return nil, fmt.Errorf("stock for hub %d product %d: %w", hubID, productID, store.ErrNotFound)
	}
	cp := *hs
	return &cp, nil
}

func (m *memStore) GetHubStocks(_ context.Context, hubID int64, productIDs []int64) ([]models.HubStock, error) {
	var out []models.HubStock
	for _, pid := range productIDs {
		if hs, ok := m.stocks[stockMapKey(hubID, pid)]; ok {
			out = append(out, *hs)
		}
	}
	return out, nil
}

func (m *memStore) ReserveStockTx(_ context.Context, hubID int64, items []models.ItemQty) ([]models.Shortfall, error) {
	var shortfalls []models.Shortfall
	for _, it := range items {
		available := 0
		if hs, ok := m.stocks[stockMapKey(hubID, it.ProductID)]; ok {
			available = hs.AvailableStock
		}
		if available < it.Quantity {
			shortfalls = append(shortfalls, models.Shortfall{
				ProductID: it.ProductID, Requested: it.Quantity, Available: available,
			})
		}
	}
	if len(shortfalls) > 0 {
		return shortfalls, nil // nothing committed
	}
	for _, it := range items {
		m.stocks[stockMapKey(hubID, it.ProductID)].AvailableStock -= it.Quantity
	}
	return nil, nil
}

func (m *memStore) RevalidateReservationTx(_ context.Context, hubID int64, held, want []models.ItemQty) ([]models.Shortfall, error) {
	// work on a scratch copy so a shortfall leaves everything untouched
	scratch := make(map[string]int)
	for k, hs := range m.stocks {
		scratch[k] = hs.AvailableStock
	}
	for _, it := range held {
		scratch[stockMapKey(hubID, it.ProductID)] += it.Quantity
	}

	var shortfalls []models.Shortfall
	for _, it := range want {
		if scratch[stockMapKey(hubID, it.ProductID)] < it.Quantity {
			shortfalls = append(shortfalls, models.Shortfall{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: scratch[stockMapKey(hubID, it.ProductID)],
			})
			continue
		}
		scratch[stockMapKey(hubID, it.ProductID)] -= it.Quantity
	}
	if len(shortfalls) > 0 {
		return shortfalls, nil
	}

	for k, hs := range m.stocks {
		hs.AvailableStock = scratch[k]
	}
	return nil, nil
}

func (m *memStore) ReleaseStock(_ context.Context, hubID, productID int64, quantity int) error {
	hs, ok := m.stocks[stockMapKey(hubID, productID)]
	if !ok {
		return fmt.Errorf("stock not found for hub %d product %d", hubID, productID)
	}
	if hs.AvailableStock+quantity > hs.TotalStock {
		return fmt.Errorf("release would exceed total stock for hub %d product %d", hubID, productID)
	}
	hs.AvailableStock += quantity
	return nil
}

func (m *memStore) FulfillStock(_ context.Context, hubID, productID int64, quantity int) error {
	hs, ok := m.stocks[stockMapKey(hubID, productID)]
	if !ok {
		return fmt.Errorf("stock not found for hub %d product %d", hubID, productID)
	}
	if hs.TotalStock-quantity < hs.AvailableStock {
		return fmt.Errorf("fulfill exceeds reserved stock for hub %d product %d", hubID, productID)
	}
	hs.TotalStock -= quantity
	return nil
}

func (m *memStore) RestockStock(_ context.Context, hubID, productID int64, quantity int) (*models.HubStock, error) {
	key := stockMapKey(hubID, productID)
	hs, ok := m.stocks[key]
	if !ok {
		hs = &models.HubStock{HubID: hubID, ProductID: productID}
		m.stocks[key] = hs
	}
	hs.TotalStock += quantity
	hs.AvailableStock += quantity
	cp := *hs
	return &cp, nil
}

func (m *memStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	var out []models.Product
	seen := make(map[int64]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	order.ID = m.id()
	order.CreatedAt = m.tick()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	for _, o := range m.orders {
		if o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetOrdersByUserID(_ context.Context, userID int64) ([]models.Order, error) {
	var out []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found: %d", orderID)
	}
	o.Status = status
	o.UpdatedAt = m.tick()
	return nil
}

func (m *memStore) CreateOrderItem(_ context.Context, item *models.OrderItem) error {
	item.ID = m.id()
	cp := *item
	m.items[item.OrderID] = append(m.items[item.OrderID], &cp)
	return nil
}

func (m *memStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	var out []models.OrderItem
	for _, it := range m.items[orderID] {
		out = append(out, *it)
	}
	return out, nil
}

func (m *memStore) MarkItemsReserved(_ context.Context, orderID int64) error {
	for _, it := range m.items[orderID] {
		it.ReservedQuantity = it.Quantity
	}
	return nil
}

func (m *memStore) ClearItemReservations(_ context.Context, orderID int64) error {
	for _, it := range m.items[orderID] {
		it.ReservedQuantity = 0
	}
	return nil
}

func (m *memStore) SetOrderOtp(_ context.Context, orderID int64, code string, expiresAt time.Time) error {
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found: %d", orderID)
	}
	o.OtpCode = code
	o.OtpExpiresAt = expiresAt
	o.OtpAttempts = 0
	return nil
}

func (m *memStore) ClearOrderOtp(_ context.Context, orderID int64) error {
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found: %d", orderID)
	}
	o.OtpCode = ""
	o.OtpAttempts = 0
	return nil
}

func (m *memStore) IncrementOtpAttempts(_ context.Context, orderID int64) (int, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return 0, fmt.Errorf("order not found: %d", orderID)
	}
	o.OtpAttempts++
	return o.OtpAttempts, nil
}

func (m *memStore) CreateRestockRequest(_ context.Context, req *models.RestockRequest) (bool, error) {
	for _, r := range m.restocks {
		if r.HubID == req.HubID && r.ProductID == req.ProductID &&
			r.OrderID == req.OrderID && r.Status == models.RestockStatusOpen {
			return false, nil
		}
	}
	req.ID = m.id()
	req.Status = models.RestockStatusOpen
	req.CreatedAt = m.tick()
	req.UpdatedAt = req.CreatedAt
	cp := *req
	m.restocks = append(m.restocks, &cp)
	return true, nil
}

func (m *memStore) GetOpenRestockRequests(_ context.Context, hubID, productID int64) ([]models.RestockRequest, error) {
	var out []models.RestockRequest
	for _, r := range m.restocks {
		if r.HubID == hubID && r.ProductID == productID && r.Status == models.RestockStatusOpen {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := m.orders[out[i].OrderID], m.orders[out[j].OrderID]
		if !oi.CreatedAt.Equal(oj.CreatedAt) {
			return oi.CreatedAt.Before(oj.CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) GetOpenRestockRequestsByOrder(_ context.Context, orderID int64) ([]models.RestockRequest, error) {
	var out []models.RestockRequest
	for _, r := range m.restocks {
		if r.OrderID == orderID && r.Status == models.RestockStatusOpen {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) MarkRestockRequestFulfilled(_ context.Context, requestID int64) error {
	for _, r := range m.restocks {
		if r.ID == requestID {
			r.Status = models.RestockStatusFulfilled
			r.UpdatedAt = m.tick()
			return nil
		}
	}
	return fmt.Errorf("restock request not found: %d", requestID)
}

// failingStatusStore fails the next UpdateOrderStatus call, then behaves
// like the wrapped store
type failingStatusStore struct {
	*memStore
	failNext bool
}

func (f *failingStatusStore) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	if f.failNext {
		f.failNext = false
		return fmt.Errorf("status write failed for order %d", orderID)
	}
	return f.memStore.UpdateOrderStatus(ctx, orderID, status)
}

// recordingSink captures published events for assertions
type recordingSink struct {
	types []string
	otps  []*models.OtpIssuedEvent
}

func (r *recordingSink) record(eventType string) {
	r.types = append(r.types, eventType)
}

func (r *recordingSink) countOf(eventType string) int {
	n := 0
	for _, t := range r.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func (r *recordingSink) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	r.record(e.EventType)
	return nil
}

func (r *recordingSink) PublishOrderApproved(_ context.Context, e *models.OrderApprovedEvent) error {
	r.record(e.EventType)
	return nil
}

func (r *recordingSink) PublishOrderPendingStock(_ context.Context, e *models.OrderPendingStockEvent) error {
	r.record(e.EventType)
	return nil
}

func (r *recordingSink) PublishRestockRequested(_ context.Context, e *models.RestockRequestedEvent) error {
	r.record(e.EventType)
	return nil
}

func (r *recordingSink) PublishRestockFulfilled(_ context.Context, e *models.RestockFulfilledEvent) error {
	r.record(e.EventType)
	return nil
}

func (r *recordingSink) PublishOrderArrived(_ context.Context, e *models.OrderArrivedEvent) error {
	r.record(e.EventType)
	return nil
}

func (r *recordingSink) PublishOtpIssued(_ context.Context, e *models.OtpIssuedEvent) error {
	r.record(e.EventType)
	r.otps = append(r.otps, e)
	return nil
}

func (r *recordingSink) PublishOrderDelivered(_ context.Context, e *models.OrderDeliveredEvent) error {
	r.record(e.EventType)
	return nil
}

func (r *recordingSink) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	r.record(e.EventType)
	return nil
}
