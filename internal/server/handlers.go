package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/usecase"
)

func (s *Server) handleGetCart(c *gin.Context) {
	before := s.identity(c)
	v, after, err := s.carts.View(c.Request.Context(), before)
	s.keepSession(c, before, after)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.json(c, http.StatusOK, v)
}

type addItemReq struct {
	ProductID string `json:"productId" binding:"required"`
	VariantID string `json:"variantId"`
	Quantity  *int   `json:"quantity"`
}

func (s *Server) handleAddItem(c *gin.Context) {
	var req addItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "productId required")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	before := s.identity(c)
	v, after, err := s.carts.AddItem(c.Request.Context(), before, req.ProductID, req.VariantID, qty)
	s.keepSession(c, before, after)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.json(c, http.StatusOK, v)
}

type updateItemReq struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (s *Server) handleUpdateItem(c *gin.Context) {
	var req updateItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "quantity required")
		return
	}
	before := s.identity(c)
	v, after, err := s.carts.UpdateItem(c.Request.Context(), before, c.Param("id"), *req.Quantity)
	s.keepSession(c, before, after)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.json(c, http.StatusOK, v)
}

func (s *Server) handleRemoveItem(c *gin.Context) {
	before := s.identity(c)
	v, after, err := s.carts.RemoveItem(c.Request.Context(), before, c.Param("id"))
	s.keepSession(c, before, after)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.json(c, http.StatusOK, v)
}

type checkoutReq struct {
	Buyer          domain.BuyerInfo     `json:"buyer"`
	PaymentMethod  domain.PaymentMethod `json:"paymentMethod"`
	MobileOperator string               `json:"mobileOperator"`
}

func (s *Server) handleCheckout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	ctx := c.Request.Context()
	before := s.identity(c)
	cart, after, err := s.carts.Resolve(ctx, before)
	s.keepSession(c, before, after)
	if err != nil {
		s.fail(c, err)
		return
	}
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if key != "" {
		key = after.UserID + ":" + key
	}
	res, err := s.checkout.Checkout(ctx, usecase.CheckoutRequest{
		Cart:  cart,
		Buyer: req.Buyer,
		Payment: domain.PaymentChoice{
			Method:   req.PaymentMethod,
			Operator: domain.MobileOperator(req.MobileOperator),
		},
		IdempotencyKey: key,
	})
	if err != nil {
		s.failWith(c, err, orderExtra(res))
		return
	}
	s.json(c, http.StatusOK, res)
}

func orderExtra(res *usecase.CheckoutResult) gin.H {
	if res == nil || res.Order == nil {
		return nil
	}
	return gin.H{"orderId": res.Order.ID, "outcome": res.Outcome}
}

func (s *Server) handleListOrders(c *gin.Context) {
	p, _ := principal(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	items, total, err := s.orders.ListForUser(c.Request.Context(), p.UserID, page, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.json(c, http.StatusOK, gin.H{"items": items, "total": total, "page": page, "pageSize": size})
}

func (s *Server) handleGetOrder(c *gin.Context) {
	p, _ := principal(c)
	o, err := s.orders.GetForUser(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.json(c, http.StatusOK, o)
}

type otpReq struct {
	OTP string `json:"otp"`
}

func (s *Server) handleSubmitOTP(c *gin.Context) {
	var req otpReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	ctx := c.Request.Context()
	p, _ := principal(c)
	if _, err := s.orders.GetForUser(ctx, p.UserID, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.checkout.SubmitOTP(ctx, c.Param("id"), req.OTP)
	if err != nil {
		s.failWith(c, err, orderExtra(res))
		return
	}
	s.json(c, http.StatusOK, res)
}

func (s *Server) handleVerifyPayment(c *gin.Context) {
	ctx := c.Request.Context()
	p, _ := principal(c)
	if _, err := s.orders.GetForUser(ctx, p.UserID, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.checkout.VerifyPayment(ctx, c.Param("id"))
	if err != nil {
		s.failWith(c, err, orderExtra(res))
		return
	}
	s.json(c, http.StatusOK, res)
}

type orderAction func(ctx context.Context, orderID string) (*domain.Order, error)

// merchantAction checks store ownership before running the order action.
func (s *Server) merchantAction(action orderAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := principal(c)
		if _, err := s.orders.AuthorizeMerchant(ctx, p.UserID, c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		o, err := action(ctx, c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		s.json(c, http.StatusOK, o)
	}
}

func (s *Server) handleStoreRevenue(c *gin.Context) {
	p, _ := principal(c)
	rev, err := s.orders.StoreRevenue(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.json(c, http.StatusOK, gin.H{"storeId": c.Param("id"), "revenue": rev.StringFixed(2)})
}
