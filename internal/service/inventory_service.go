package service

import (
	"context"
	"time"

	"hub-order-service/internal/models"
	"hub-order-service/internal/redisclient"
	"hub-order-service/internal/util"

	"go.uber.org/zap"
)

// InventoryService owns the hub stock counters. All writes to
// available_stock/total_stock go through it; the database is authoritative
// and the Redis mirror is refreshed after each commit.
type InventoryService struct {
	store  InventoryStore
	redis  *redisclient.Client // optional mirror, nil in tests
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store InventoryStore, redis *redisclient.Client) *InventoryService {
	return &InventoryService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// CheckAvailability returns the shortfalls for the requested items without
// any side effect. The Redis mirror answers first; a miss falls back to the
// database.
func (is *InventoryService) CheckAvailability(ctx context.Context, hubID int64, items []models.ItemQty) ([]models.Shortfall, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.CheckAvailability")
	defer span.End()

	if is.redis != nil {
		if shortfalls, ok := is.checkMirror(ctx, hubID, items); ok {
			return shortfalls, nil
		}
	}

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	stocks, err := is.store.GetHubStocks(ctx, hubID, ids)
	if err != nil {
		return nil, err
	}

	available := make(map[int64]int, len(stocks))
	for _, st := range stocks {
		available[st.ProductID] = st.AvailableStock
	}

	var shortfalls []models.Shortfall
	for _, it := range items {
		if available[it.ProductID] < it.Quantity {
			shortfalls = append(shortfalls, models.Shortfall{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: available[it.ProductID],
			})
		}
	}
	return shortfalls, nil
}

func (is *InventoryService) checkMirror(ctx context.Context, hubID int64, items []models.ItemQty) ([]models.Shortfall, bool) {
	var shortfalls []models.Shortfall
	for _, it := range items {
		_, available, err := is.redis.GetStock(ctx, hubID, it.ProductID)
		if err != nil {
			return nil, false // fall back to the database for the whole set
		}
		if available < it.Quantity {
			shortfalls = append(shortfalls, models.Shortfall{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: available,
			})
		}
	}
	return shortfalls, true
}

// Reserve atomically holds stock for every item or none of them. A shortfall
// on any item returns InsufficientStockError naming the short items.
func (is *InventoryService) Reserve(ctx context.Context, hubID int64, items []models.ItemQty) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	shortfalls, err := is.store.ReserveStockTx(ctx, hubID, items)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("error").Inc()
		return err
	}
	if len(shortfalls) > 0 {
		util.ReservationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return &InsufficientStockError{HubID: hubID, Shortfalls: shortfalls}
	}

	is.mirrorReserve(ctx, hubID, items)
	return nil
}

// Revalidate releases the order's current hold (held) and re-reserves the
// full quantities (want) as one unit. On shortfall nothing changes and the
// error reports the short items.
func (is *InventoryService) Revalidate(ctx context.Context, hubID int64, held, want []models.ItemQty) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Revalidate")
	defer span.End()

	shortfalls, err := is.store.RevalidateReservationTx(ctx, hubID, held, want)
	if err != nil {
		return err
	}
	if len(shortfalls) > 0 {
		util.ReservationsFailedTotal.WithLabelValues("revalidation_shortfall").Inc()
		return &InsufficientStockError{HubID: hubID, Shortfalls: shortfalls}
	}

	ids := make([]int64, len(want))
	for i, it := range want {
		ids[i] = it.ProductID
	}
	if err := is.SyncToRedis(ctx, hubID, ids); err != nil {
		is.logger.Warn("Failed to refresh stock mirror after revalidation",
			zap.Int64("hub_id", hubID),
			zap.Error(err))
	}
	return nil
}

// Release credits reserved quantities back to available stock. Callers pass
// the recorded reservation and zero it afterwards, which is what makes a
// second release a no-op.
func (is *InventoryService) Release(ctx context.Context, hubID int64, items []models.ItemQty) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Release")
	defer span.End()

	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if err := is.store.ReleaseStock(ctx, hubID, it.ProductID, it.Quantity); err != nil {
			return err
		}
		if is.redis != nil {
			if err := is.redis.ReleaseStock(ctx, hubID, it.ProductID, it.Quantity); err != nil {
				is.logger.Warn("Failed to mirror release",
					zap.Int64("hub_id", hubID),
					zap.Int64("product_id", it.ProductID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// Fulfill converts reservations into permanent sales. reserved maps product
// to the recorded reservation; exceeding it is an OverFulfillError.
func (is *InventoryService) Fulfill(ctx context.Context, hubID int64, items []models.ItemQty, reserved map[int64]int) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Fulfill")
	defer span.End()

	for _, it := range items {
		if it.Quantity > reserved[it.ProductID] {
			return &OverFulfillError{
				HubID:     hubID,
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Reserved:  reserved[it.ProductID],
			}
		}
	}

	for _, it := range items {
		if err := is.store.FulfillStock(ctx, hubID, it.ProductID, it.Quantity); err != nil {
			return err
		}
		if is.redis != nil {
			if err := is.redis.FulfillStock(ctx, hubID, it.ProductID, it.Quantity); err != nil {
				is.logger.Warn("Failed to mirror fulfill",
					zap.Int64("hub_id", hubID),
					zap.Int64("product_id", it.ProductID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// Restock increments both counters. Non-positive quantities are a no-op.
func (is *InventoryService) Restock(ctx context.Context, hubID, productID int64, quantity int) (*models.HubStock, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Restock")
	defer span.End()

	if quantity <= 0 {
		return is.store.GetHubStock(ctx, hubID, productID)
	}

	hs, err := is.store.RestockStock(ctx, hubID, productID, quantity)
	if err != nil {
		return nil, err
	}

	if is.redis != nil {
		if err := is.redis.SetStock(ctx, hubID, productID, hs.TotalStock, hs.AvailableStock); err != nil {
			is.logger.Warn("Failed to mirror restock",
				zap.Int64("hub_id", hubID),
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}
	return hs, nil
}

// GetStock reads the authoritative counters for one product at a hub
func (is *InventoryService) GetStock(ctx context.Context, hubID, productID int64) (*models.HubStock, error) {
	return is.store.GetHubStock(ctx, hubID, productID)
}

// SyncToRedis refreshes the mirror for the given products at a hub
func (is *InventoryService) SyncToRedis(ctx context.Context, hubID int64, productIDs []int64) error {
	if is.redis == nil {
		return nil
	}

	stocks, err := is.store.GetHubStocks(ctx, hubID, productIDs)
	if err != nil {
		return err
	}

	for _, st := range stocks {
		if err := is.redis.SetStock(ctx, st.HubID, st.ProductID, st.TotalStock, st.AvailableStock); err != nil {
			is.logger.Error("Failed to sync stock mirror",
				zap.Int64("hub_id", st.HubID),
				zap.Int64("product_id", st.ProductID),
				zap.Error(err))
		}
	}
	return nil
}

func (is *InventoryService) mirrorReserve(ctx context.Context, hubID int64, items []models.ItemQty) {
	if is.redis == nil {
		return
	}
	for _, it := range items {
		if _, err := is.redis.ReserveStock(ctx, hubID, it.ProductID, it.Quantity); err != nil {
			is.logger.Warn("Failed to mirror reservation",
				zap.Int64("hub_id", hubID),
				zap.Int64("product_id", it.ProductID),
				zap.Error(err))
		}
	}
}
