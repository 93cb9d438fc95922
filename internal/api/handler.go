package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"hub-order-service/internal/models"
	"hub-order-service/internal/service"
	"hub-order-service/internal/store"
	"hub-order-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NotificationReader is the read side the handler needs for the feed
type NotificationReader interface {
	GetNotificationsByRole(ctx context.Context, role string) ([]models.Notification, error)
	ListRestockRequests(ctx context.Context, hubID int64, status string) ([]models.RestockRequest, error)
}

// Handler contains HTTP handlers
type Handler struct {
	orders        *service.OrderService
	pickup        *service.PickupService
	restock       *service.RestockService
	stock         *service.InventoryService
	notifications NotificationReader
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	pickup *service.PickupService,
	restock *service.RestockService,
	stock *service.InventoryService,
	notifications NotificationReader,
) *Handler {
	return &Handler{
		orders:        orders,
		pickup:        pickup,
		restock:       restock,
		stock:         stock,
		notifications: notifications,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.placeOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders", h.listOrders)
		v1.POST("/orders/:id/arrive", h.markArrived)
		v1.POST("/orders/:id/otp", h.generateOtp)
		v1.POST("/orders/:id/verify", h.verifyOtp)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/release", h.releaseReservation)

		v1.POST("/hubs/:id/restock", h.restockHub)
		v1.POST("/hubs/:id/availability", h.checkAvailability)
		v1.GET("/hubs/:id/stock/:productID", h.getHubStock)
		v1.GET("/hubs/:id/restock-requests", h.listRestockRequests)

		v1.GET("/notifications", h.listNotifications)
	}
}

// listRestockRequests handles the restock-request feed for a hub
func (h *Handler) listRestockRequests(c *gin.Context) {
	hubID, ok := parseID(c, "id")
	if !ok {
		return
	}

	reqs, err := h.notifications.ListRestockRequests(c.Request.Context(), hubID, c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list restock requests",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"restock_requests": reqs})
}

// listNotifications handles the notification feed for a role
func (h *Handler) listNotifications(c *gin.Context) {
	role := c.Query("role")
	if role != models.RoleAdmin && role != models.RoleHubManager {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing role"})
		return
	}

	ns, err := h.notifications.GetNotificationsByRole(c.Request.Context(), role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list notifications",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": ns})
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// placeOrder handles checkout
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.orders.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		respondPlaceOrderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// respondPlaceOrderError separates checkout rejections from internal failures
func respondPlaceOrderError(c *gin.Context, err error) {
	var gateErr *service.PaymentGateError

	switch {
	case errors.As(err, &gateErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Payment rejected",
			"details": err.Error(),
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Unknown product",
			"details": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to place order",
			"details": err.Error(),
		})
	}
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, items, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "Order not found",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// listOrders handles listing a user's orders
func (h *Handler) listOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing user_id"})
		return
	}

	orders, err := h.orders.ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list orders",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// markArrived handles the hub-manager arrival action
func (h *Handler) markArrived(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.pickup.MarkArrivedAtHub(c.Request.Context(), orderID)
	if err != nil {
		respondTransitionError(c, order, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": order.Status})
}

// generateOtp handles pickup-code generation
func (h *Handler) generateOtp(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.pickup.GenerateOtp(c.Request.Context(), orderID)
	if err != nil {
		respondTransitionError(c, order, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"otp_sent": true,
		"status":   order.Status,
	})
}

type verifyOtpRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// verifyOtp handles pickup confirmation
func (h *Handler) verifyOtp(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req verifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.pickup.VerifyOtp(c.Request.Context(), orderID, req.Code)
	if err != nil {
		respondTransitionError(c, order, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": order.Status})
}

// cancelOrder handles order cancellation
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.Cancel(c.Request.Context(), orderID)
	if err != nil {
		respondTransitionError(c, order, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": order.Status})
}

// releaseReservation handles the administrative force release
func (h *Handler) releaseReservation(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.ForceRelease(c.Request.Context(), orderID)
	if err != nil {
		respondTransitionError(c, order, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"released": true,
		"status":   order.Status,
	})
}

type restockRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// restockHub handles the admin restock action
func (h *Handler) restockHub(c *gin.Context) {
	hubID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.restock.Restock(c.Request.Context(), hubID, req.ProductID, req.Quantity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to restock",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// getHubStock handles the stock read model
func (h *Handler) getHubStock(c *gin.Context) {
	hubID, ok := parseID(c, "id")
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(c.Param("productID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	stock, err := h.stock.GetStock(c.Request.Context(), hubID, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "Stock not found",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load stock",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stock)
}

type availabilityRequest struct {
	Items []models.ItemQty `json:"items" binding:"required,min=1"`
}

// checkAvailability handles the pre-checkout stock check. Pure read; the
// mirror answers when it can, the database otherwise.
func (h *Handler) checkAvailability(c *gin.Context) {
	hubID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	shortfalls, err := h.stock.CheckAvailability(c.Request.Context(), hubID, req.Items)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to check availability",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"available":  len(shortfalls) == 0,
		"shortfalls": shortfalls,
	})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// respondTransitionError maps the error taxonomy to HTTP statuses. Responses
// for order-scoped failures always carry the authoritative current status.
func respondTransitionError(c *gin.Context, order *models.Order, err error) {
	status := ""
	if order != nil {
		status = order.Status
	}

	var stockErr *service.InsufficientStockError
	var transitionErr *service.InvalidTransitionError
	var otpErr *service.InvalidOtpError
	var fulfillErr *service.OverFulfillError

	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not found",
			"details": err.Error(),
		})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "Insufficient stock",
			"details":    err.Error(),
			"shortfalls": stockErr.Shortfalls,
			"status":     status,
		})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Invalid transition",
			"details": err.Error(),
			"status":  status,
		})
	case errors.As(err, &otpErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Invalid pickup code",
			"details": err.Error(),
			"status":  status,
		})
	case errors.As(err, &fulfillErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Fulfillment integrity failure",
			"details": err.Error(),
			"status":  status,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Operation failed",
			"details": err.Error(),
			"status":  status,
		})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
