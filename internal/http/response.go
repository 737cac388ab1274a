package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/auth"
	"storefront/internal/repository"
	"storefront/internal/service"
)

// envelope is the body of every API response
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Field   string `json:"field,omitempty"`
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, envelope{Success: true, Data: data, Message: message})
}

func (s *Server) reject(c *gin.Context, status int, message string, err error) {
	body := envelope{Message: message}
	if err != nil && !s.production {
		body.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// fail maps a service error to a response; resource names the 404 message, action the 500 one
func (s *Server) fail(c *gin.Context, err error, resource, action string) {
	var dup *repository.DuplicateError
	if errors.As(err, &dup) {
		c.AbortWithStatusJSON(http.StatusConflict, envelope{
			Message: capitalize(dup.Field) + " already exists",
			Field:   dup.Field,
		})
		return
	}

	status := mapErrorToStatus(err)
	var msg string
	switch status {
	case http.StatusNotFound:
		msg = resource + " not found"
	case http.StatusInternalServerError:
		slog.ErrorContext(c.Request.Context(), "request failed",
			"action", action, "err", err, "request_id", c.GetString(ctxRequestID))
		msg = "Failed to " + action
		if s.production {
			c.AbortWithStatusJSON(status, envelope{Message: msg, Error: "Internal server error"})
			return
		}
	case http.StatusUnauthorized:
		msg = "Invalid credentials"
		if !errors.Is(err, service.ErrInvalidCredentials) {
			msg = "Authentication required"
		}
	case http.StatusForbidden:
		msg = "Access denied"
	default:
		msg = publicMessage(err)
	}
	s.reject(c, status, msg, err)
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrNotEnoughStock),
		errors.Is(err, service.ErrPaymentNotCompleted):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrStockConflict),
		errors.Is(err, repository.ErrStaleState),
		errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage drops the sentinel prefix ("invalid input: ") and capitalises the rest
func publicMessage(err error) string {
	if errors.Is(err, service.ErrPaymentNotCompleted) {
		return "Payment not completed"
	}
	msg := err.Error()
	if _, rest, found := strings.Cut(msg, ": "); found && rest != "" {
		msg = rest
	}
	return capitalize(msg)
}
