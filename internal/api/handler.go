package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"shop-service/internal/service"
	"shop-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	catalog  *service.CatalogService
	carts    *service.CartService
	orders   *service.OrderService
	users    *service.UserService
	auth     Authenticator
	pageSize int
	checks   map[string]Pinger
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	carts *service.CartService,
	orders *service.OrderService,
	users *service.UserService,
	auth Authenticator,
	pageSize int,
) *Handler {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Handler{
		catalog:  catalog,
		carts:    carts,
		orders:   orders,
		users:    users,
		auth:     auth,
		pageSize: pageSize,
		checks:   map[string]Pinger{},
		logger:   util.GetLogger(),
	}
}

// AddReadinessCheck registers a dependency reported by /ready
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.checks[name] = p
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(h.requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.authenticate())
	{
		categories := v1.Group("/categories")
		categories.GET("", allow(AdminOrReadOnly, ActionList, h.listCategories))
		categories.POST("", allow(AdminOrReadOnly, ActionCreate, h.createCategory))
		categories.GET("/:id", allow(AdminOrReadOnly, ActionRetrieve, h.getCategory))
		categories.PUT("/:id", allow(AdminOrReadOnly, ActionUpdate, h.updateCategory(false)))
		categories.PATCH("/:id", allow(AdminOrReadOnly, ActionUpdate, h.updateCategory(true)))
		categories.DELETE("/:id", allow(AdminOrReadOnly, ActionDelete, h.deleteCategory))

		products := v1.Group("/products")
		products.GET("", allow(AdminOrReadOnly, ActionList, h.listProducts))
		products.POST("", allow(AdminOrReadOnly, ActionCreate, h.createProduct))
		products.GET("/:id", allow(AdminOrReadOnly, ActionRetrieve, h.getProduct))
		products.PUT("/:id", allow(AdminOrReadOnly, ActionUpdate, h.updateProduct(false)))
		products.PATCH("/:id", allow(AdminOrReadOnly, ActionUpdate, h.updateProduct(true)))
		products.DELETE("/:id", allow(AdminOrReadOnly, ActionDelete, h.deleteProduct))
		products.GET("/:id/images", allow(AdminOrReadOnly, ActionList, h.listProductImages))
		products.POST("/:id/images", allow(AdminOrReadOnly, ActionCreate, h.addProductImage))
		products.DELETE("/:id/images/:image_id", allow(AdminOrReadOnly, ActionDelete, h.deleteProductImage))

		carts := v1.Group("/carts")
		carts.POST("", h.createCart)
		carts.GET("/:id", h.getCart)
		carts.DELETE("/:id", h.deleteCart)
		carts.GET("/:id/items", h.listCartItems)
		carts.POST("/:id/items", h.addCartItem)
		carts.GET("/:id/items/:item_id", h.getCartItem)
		carts.PATCH("/:id/items/:item_id", h.updateCartItem)
		carts.DELETE("/:id/items/:item_id", h.deleteCartItem)

		orders := v1.Group("/orders")
		orders.GET("", allow(OrderPermission, ActionList, h.listOrders))
		orders.POST("", allow(OrderPermission, ActionCreate, h.createOrder))
		orders.GET("/:id", allow(OrderPermission, ActionRetrieve, h.getOrder))
		orders.PATCH("/:id", allow(OrderPermission, ActionUpdate, h.updateOrder))
		orders.DELETE("/:id", allow(OrderPermission, ActionDelete, h.deleteOrder))

		users := v1.Group("/users")
		users.POST("/register", h.register)
		users.GET("/profile", allow(Authenticated, ActionRetrieve, h.getProfile))
		users.PUT("/profile", allow(Authenticated, ActionUpdate, h.updateProfile))
		users.PATCH("/profile", allow(Authenticated, ActionUpdate, h.updateProfile))
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
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

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// pathID parses an integer path parameter. A malformed id is answered with
// 404 and false is returned.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
		return 0, false
	}
	return id, true
}
