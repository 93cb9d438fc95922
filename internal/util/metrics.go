package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed at checkout",
	})

	OrdersApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_approved_total",
		Help: "Total number of orders approved with stock reserved",
	})

	OrdersPendingStockTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_pending_stock_total",
		Help: "Total number of orders parked PENDING on understock",
	})

	OrdersDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_delivered_total",
		Help: "Total number of orders collected from a hub",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected checkouts",
	}, []string{"reason"})

	InventoryReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reserve_latency_seconds",
		Help:    "Latency of inventory reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	ReservationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason"})

	RestockRequestsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "restock_requests_opened_total",
		Help: "Total number of restock requests opened",
	})

	RestockRequestsFulfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "restock_requests_fulfilled_total",
		Help: "Total number of restock requests fulfilled",
	})

	OtpIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otp_issued_total",
		Help: "Total number of pickup codes issued",
	})

	OtpVerifyFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_verify_failures_total",
		Help: "Total number of failed pickup-code verifications",
	}, []string{"reason"})

	EmailSendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_send_failures_total",
		Help: "Total number of failed pickup-code email sends",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
