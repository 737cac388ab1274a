package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront/internal/auth"
	"storefront/internal/domain"
	"storefront/internal/service"
)

const (
	ctxUser      = "user"
	ctxRequestID = "requestId"

	HeaderRequestID = "X-Request-ID"
)

// RequestID propagates the caller's X-Request-ID or assigns a new one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate requires a valid bearer token for an active user
func (s *Server) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			s.reject(c, http.StatusUnauthorized, "Access denied. No token provided.", nil)
			return
		}
		u, err := s.auth.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
			c.Set(ctxUser, u)
			c.Next()
		case errors.Is(err, auth.ErrExpiredToken):
			s.reject(c, http.StatusUnauthorized, "Token expired.", err)
		case errors.Is(err, auth.ErrInvalidToken):
			s.reject(c, http.StatusUnauthorized, "Invalid token.", err)
		case errors.Is(err, service.ErrUnauthorized):
			s.reject(c, http.StatusUnauthorized, "Invalid token or user not found.", err)
		default:
			s.reject(c, http.StatusInternalServerError, "Token verification failed.", err)
		}
	}
}

// OptionalAuth attaches the user when a usable token is present and never rejects
func (s *Server) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if u, err := s.auth.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(ctxUser, u)
			}
		}
		c.Next()
	}
}

// RequireRole must run after Authenticate
func (s *Server) RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		if u == nil {
			s.reject(c, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		if u.Role != role {
			s.reject(c, http.StatusForbidden, "Access denied. "+capitalize(string(role))+" privileges required.", nil)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	u, _ := v.(*domain.User)
	return u
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
