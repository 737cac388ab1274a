package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Message sent with 429 responses
const Message = "Too many requests from this IP, please try again later."

// Middleware limits each client IP to limit requests per window.
// Redis failures let the request through.
func Middleware(l *Limiter, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := l.Allow(c.Request.Context(), c.ClientIP(), limit, window)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limit check failed", "err", err)
			c.Next()
			return
		}
		h := c.Writer.Header()
		h.Set(HeaderLimit, strconv.Itoa(res.Limit))
		h.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
		h.Set(HeaderReset, strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			retry := time.Until(res.ResetAt).Round(time.Second)
			if retry < time.Second {
				retry = time.Second
			}
			h.Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": Message,
			})
			return
		}
		c.Next()
	}
}
