package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"marketplace-orders/internal/models"
	"marketplace-orders/internal/service"
	"marketplace-orders/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the application services the handlers call into.
type Services struct {
	Auth    *service.AuthService
	Orders  *service.OrderService
	Sellers *service.SellerOrderService
	Ledger  *service.InventoryLedger
	Users   *service.UserService
}

// Handler contains HTTP handlers
type Handler struct {
	auth    *service.AuthService
	orders  *service.OrderService
	sellers *service.SellerOrderService
	ledger  *service.InventoryLedger
	users   *service.UserService
	checks  map[string]Pinger
}

// NewHandler creates a new HTTP handler. checks are pinged by /ready.
func NewHandler(s Services, checks map[string]Pinger) *Handler {
	return &Handler{
		auth:    s.Auth,
		orders:  s.Orders,
		sellers: s.Sellers,
		ledger:  s.Ledger,
		users:   s.Users,
		checks:  checks,
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
		v1.POST("/auth/register", h.register)
		v1.POST("/auth/login", h.login)
		v1.GET("/products/:id/availability", h.productAvailability)
	}

	customer := v1.Group("/orders", h.authenticate(), requireRole(models.RoleCustomer))
	{
		customer.POST("", h.createOrder)
		customer.GET("", h.listOrders)
		customer.GET("/:id", h.getOrder)
		customer.POST("/:id/cancel", h.cancelOrder)
	}

	seller := v1.Group("/seller", h.authenticate(), requireRole(models.RoleSeller))
	{
		seller.GET("/orders", h.sellerListOrders)
		seller.GET("/orders/pending/count", h.sellerCountPending)
		seller.GET("/orders/:id", h.sellerGetOrder)
		seller.PUT("/orders/:id/status", h.sellerUpdateStatus)
		seller.POST("/products/:id/restock", h.sellerRestock)
	}

	admin := v1.Group("/admin", h.authenticate(), requireRole(models.RoleAdmin))
	{
		admin.GET("/orders", h.adminListOrders)
		admin.GET("/orders/:id", h.adminGetOrder)
		admin.PUT("/orders/:id/status", h.adminUpdateStatus)
		admin.POST("/orders/:id/cancel", h.adminCancelOrder)
		admin.POST("/products/:id/restock", h.adminRestock)
		admin.GET("/users", h.listUsers)
		admin.GET("/users/:id", h.getUser)
		admin.PUT("/users/:id/status", h.setUserEnabled)
		admin.PUT("/users/:id/roles", h.setUserRoles)
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
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
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
