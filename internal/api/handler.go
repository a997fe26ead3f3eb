package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"supermarket/internal/models"
	"supermarket/internal/service"
	"supermarket/internal/util"

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
	accounts  *service.AccountService
	inventory *service.InventoryService
	carts     *service.CartService
	orders    *service.OrderService
	reports   *service.ReportService
	sessions  SessionStore
	checks    map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	accounts *service.AccountService,
	inventory *service.InventoryService,
	carts *service.CartService,
	orders *service.OrderService,
	reports *service.ReportService,
	sessions SessionStore,
) *Handler {
	return &Handler{
		accounts:  accounts,
		inventory: inventory,
		carts:     carts,
		orders:    orders,
		reports:   reports,
		sessions:  sessions,
		checks:    make(map[string]Pinger),
		logger:    util.GetLogger(),
	}
}

// AddReadinessCheck registers a dependency that must answer before the service is ready
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.checks[name] = p
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
		auth := v1.Group("/auth")
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.POST("/reset-password", h.resetPassword)
		auth.POST("/logout", h.authMiddleware(), h.logout)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		customer := v1.Group("", h.authMiddleware())
		customer.GET("/cart", h.viewCart)
		customer.POST("/cart/lines", h.addCartLine)
		customer.PUT("/cart/lines/:id", h.setCartLineQuantity)
		customer.DELETE("/cart/lines/:id", h.removeCartLine)
		customer.POST("/cart/reconcile", h.reconcileCart)
		customer.POST("/cart/checkout", h.checkout)

		customer.GET("/orders", h.listOrders)
		customer.GET("/orders/:id", h.getOrder)
		customer.POST("/orders/:id/reorder/:productId", h.reorder)

		admin := v1.Group("/admin", h.authMiddleware(), requireRole(models.RoleAdmin))
		admin.GET("/users", h.listUsers)
		admin.POST("/users", h.createUser)
		admin.PUT("/users/:id", h.updateUser)
		admin.DELETE("/users/:id", h.deleteUser)

		admin.POST("/products", h.createProduct)
		admin.PUT("/products/:id", h.updateProduct)
		admin.DELETE("/products/:id", h.deleteProduct)

		admin.GET("/orders", h.listAllOrders)

		reports := admin.Group("/reports")
		reports.GET("/dashboard", h.dashboardReport)
		reports.GET("/sales", h.salesReport)
		reports.GET("/top-products", h.topProductsReport)
		reports.GET("/categories", h.categoriesReport)
		reports.GET("/revenue", h.revenueReport)
		reports.GET("/low-stock", h.lowStockReport)
		reports.GET("/log", h.reportLog)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every registered dependency answers
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
			"status": "unavailable",
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

// errorResponse maps the error taxonomy onto an HTTP status and body
func errorResponse(err error) (int, gin.H) {
	var outOfStock *models.OutOfStockError
	var insufficient *models.InsufficientStockError

	switch {
	case errors.As(err, &insufficient):
		return http.StatusConflict, gin.H{
			"error":      "insufficient_stock",
			"details":    err.Error(),
			"product_id": insufficient.ProductID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		}
	case errors.As(err, &outOfStock):
		return http.StatusConflict, gin.H{
			"error":      "out_of_stock",
			"details":    err.Error(),
			"product_id": outOfStock.ProductID,
			"requested":  outOfStock.Requested,
			"available":  outOfStock.Available,
		}
	case errors.Is(err, models.ErrEmptyCart):
		return http.StatusBadRequest, gin.H{"error": "empty_cart", "details": err.Error()}
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, gin.H{"error": "validation_error", "details": err.Error()}
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": "not_found", "details": err.Error()}
	case errors.Is(err, models.ErrDuplicateEmail):
		return http.StatusConflict, gin.H{"error": "duplicate_email", "details": err.Error()}
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, gin.H{"error": "conflict", "details": err.Error()}
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, gin.H{"error": "forbidden", "details": err.Error()}
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, gin.H{"error": "unauthorized", "details": err.Error()}
	case errors.Is(err, models.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable", "details": "storage is temporarily unavailable"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal_error", "details": "internal server error"}
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name, nil)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, defaultVal int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return defaultVal, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "Invalid "+name, err)
		return 0, false
	}
	return n, true
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
