package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_orders_created_total",
		Help: "Total number of orders persisted at checkout",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_orders_failed_total",
		Help: "Total number of rejected or failed checkouts",
	}, []string{"reason"})

	OrderHookFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_order_hook_failures_total",
		Help: "Total number of post-commit order hook failures",
	}, []string{"hook"})

	CartItemsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_cart_items_added_total",
		Help: "Total number of accepted add-to-cart requests",
	})

	CartItemsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_cart_items_rejected_total",
		Help: "Total number of rejected cart item mutations",
	}, []string{"reason"})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_payment_attempts_total",
		Help: "Total number of payment attempts",
	})

	PaymentSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_payment_success_total",
		Help: "Total number of successful payments",
	})

	PaymentFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_payment_failed_total",
		Help: "Total number of declined or errored payments",
	}, []string{"reason"})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shop_payment_processing_latency_seconds",
		Help:    "Latency of the payment processor round trip",
		Buckets: prometheus.DefBuckets,
	})

	UsersRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_users_registered_total",
		Help: "Total number of registered users",
	})

	CatalogCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_catalog_cache_hits_total",
		Help: "Product lookups served from the cache",
	})

	CatalogCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_catalog_cache_misses_total",
		Help: "Product lookups that fell through to the database",
	})

	NotificationsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_order_notifications_sent_total",
		Help: "Order confirmation notifications handed to the notifier",
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
