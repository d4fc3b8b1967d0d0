package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/logger"
	"storefront-backend/internal/usecase"
)

func (s *Server) err(c *gin.Context, status int, code, msg string) {
	s.errWith(c, status, code, msg, nil)
}

func (s *Server) errWith(c *gin.Context, status int, code, msg string, extra gin.H) {
	body := gin.H{
		"code":      code,
		"message":   msg,
		"requestId": logger.RequestID(c.Request.Context()),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, gin.H{"error": body})
}

func (s *Server) json(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

// fail maps usecase and domain errors onto the error envelope.
func (s *Server) fail(c *gin.Context, err error) {
	s.failWith(c, err, nil)
}

func (s *Server) failWith(c *gin.Context, err error, extra gin.H) {
	var (
		empty    *domain.EmptyCartError
		invalid  *domain.ValidationError
		rejected *domain.GatewayRejectedError
		down     *domain.GatewayTransportError
		noRef    *domain.MissingReferenceError
		move     *domain.TransitionError
		nf       usecase.ErrNotFound
		conflict usecase.ErrConflict
		bad      usecase.ErrBadRequest
		denied   usecase.ErrForbidden
	)
	switch {
	case errors.As(err, &empty):
		s.errWith(c, http.StatusBadRequest, "EmptyCart", err.Error(), extra)
	case errors.As(err, &invalid):
		e := gin.H{"fields": invalid.Fields}
		for k, v := range extra {
			e[k] = v
		}
		s.errWith(c, http.StatusBadRequest, "ValidationFailed", err.Error(), e)
	case errors.As(err, &rejected):
		s.errWith(c, http.StatusPaymentRequired, "PaymentRejected", rejected.Reason, extra)
	case errors.As(err, &down):
		logger.Warn(c.Request.Context(), "payment provider unavailable", "op", down.Op, "error", down.Err)
		s.errWith(c, http.StatusBadGateway, "PaymentUnavailable", err.Error(), extra)
	case errors.As(err, &noRef):
		s.errWith(c, http.StatusBadRequest, "MissingReference", err.Error(), extra)
	case errors.As(err, &nf):
		s.errWith(c, http.StatusNotFound, "NotFound", nf.Error(), extra)
	case errors.As(err, &conflict):
		s.errWith(c, http.StatusConflict, "Conflict", conflict.Error(), extra)
	case errors.As(err, &move), errors.Is(err, domain.ErrDuplicateReference), errors.Is(err, domain.ErrStaleOrder):
		s.errWith(c, http.StatusConflict, "Conflict", err.Error(), extra)
	case errors.As(err, &bad):
		s.errWith(c, http.StatusBadRequest, "BadRequest", bad.Error(), extra)
	case errors.As(err, &denied):
		s.errWith(c, http.StatusForbidden, "Forbidden", denied.Error(), extra)
	default:
		logger.Error(c.Request.Context(), "request failed", "route", c.FullPath(), "error", err)
		s.errWith(c, http.StatusInternalServerError, "ServerError", "internal error", extra)
	}
}
