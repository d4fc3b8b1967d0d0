package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/logger"
)

const principalKey = "principal"

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		took := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if s.metrics != nil {
			s.metrics.ObserveRequest(c.Request.Method, route, strconv.Itoa(status), took)
		}
		if route == "/healthz" || route == "/metrics" {
			return
		}
		logger.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", took,
			"client_ip", c.ClientIP(),
		)
	}
}

// authenticate reads an optional bearer token. Anonymous requests pass
// through; a token that does not verify is rejected.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			s.err(c, http.StatusUnauthorized, "Unauthorized", "malformed authorization header")
			c.Abort()
			return
		}
		p, err := s.auth.Verify(strings.TrimSpace(token))
		if err != nil {
			s.err(c, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := principal(c); !ok {
			s.err(c, http.StatusUnauthorized, "Unauthorized", "login required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) requireMerchant() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := principal(c)
		if !p.IsMerchant() {
			s.err(c, http.StatusForbidden, "Forbidden", "merchant role required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}

// identity combines the caller's token with the anonymous cart cookie.
func (s *Server) identity(c *gin.Context) domain.Identity {
	id := domain.Identity{}
	if p, ok := principal(c); ok {
		id.UserID = p.UserID
	}
	if v, err := c.Cookie(s.cfg.Session.CookieName); err == nil {
		id.SessionID = v
	}
	return id
}

// keepSession hands the session token back to anonymous callers as a browser
// session cookie and drops it once the cart belongs to a user.
func (s *Server) keepSession(c *gin.Context, before, after domain.Identity) {
	name := s.cfg.Session.CookieName
	switch {
	case after.Authenticated():
		if before.SessionID != "" {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(name, "", -1, "/", "", s.cfg.Session.Secure, true)
		}
	case after.SessionID != "" && after.SessionID != before.SessionID:
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(name, after.SessionID, 0, "/", "", s.cfg.Session.Secure, true)
	}
}
