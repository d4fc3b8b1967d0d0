package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"storefront-backend/internal/config"
	"storefront-backend/internal/metrics"
	"storefront-backend/internal/usecase"
)

type Deps struct {
	Carts    *usecase.CartService
	Checkout *usecase.CheckoutService
	Orders   *usecase.OrderService
	Auth     *usecase.AuthService
	Metrics  *metrics.Metrics
}

type Server struct {
	cfg      config.Config
	carts    *usecase.CartService
	checkout *usecase.CheckoutService
	orders   *usecase.OrderService
	auth     *usecase.AuthService
	metrics  *metrics.Metrics
	engine   *gin.Engine
}

func New(cfg config.Config, d Deps) *Server {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:      cfg,
		carts:    d.Carts,
		checkout: d.Checkout,
		orders:   d.Orders,
		auth:     d.Auth,
		metrics:  d.Metrics,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestID(), s.accessLog(), s.cors())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", func(c *gin.Context) { s.json(c, http.StatusOK, gin.H{"status": "ok"}) })
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api", s.authenticate())
	{
		api.GET("/cart", s.handleGetCart)
		api.POST("/cart/items", s.handleAddItem)
		api.PATCH("/cart/items/:id", s.handleUpdateItem)
		api.DELETE("/cart/items/:id", s.handleRemoveItem)
	}

	user := api.Group("", s.requireAuth())
	{
		user.POST("/checkout", s.handleCheckout)
		user.GET("/orders", s.handleListOrders)
		user.GET("/orders/:id", s.handleGetOrder)
		user.POST("/orders/:id/otp", s.handleSubmitOTP)
		user.POST("/orders/:id/verify", s.handleVerifyPayment)
	}

	merchant := api.Group("", s.requireAuth(), s.requireMerchant())
	{
		m := merchant.Group("/merchant/orders/:id")
		m.POST("/ship", s.merchantAction(s.orders.MarkShipped))
		m.POST("/deliver", s.merchantAction(s.orders.MarkDelivered))
		m.POST("/confirm-cash", s.merchantAction(s.orders.ConfirmCashPayment))
		m.POST("/cancel", s.merchantAction(s.orders.Cancel))
		m.POST("/refund", s.merchantAction(s.orders.Refund))
		merchant.GET("/stores/:id/revenue", s.handleStoreRevenue)
	}
}

func (s *Server) cors() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
