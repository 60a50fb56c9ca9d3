package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/simp-lee/rbacflow/internal/pkg"
)

// NewMemoryLimiter creates an in-process limiter allowing limit requests
// per period for each key.
func NewMemoryLimiter(limit int64, period time.Duration) *limiter.Limiter {
	return limiter.New(memory.NewStore(), limiter.Rate{Period: period, Limit: limit})
}

// RateLimit returns a gin middleware that limits requests per client IP.
// It sets the X-RateLimit-* headers on every response and answers 429 once
// the limit is reached. A limiter store failure lets the request through.
func RateLimit(l *limiter.Limiter, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()

		lc, err := l.Get(c.Request.Context(), ip)
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limit check failed",
				slog.String("client_ip", ip),
				slog.String("error", err.Error()),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))

		if lc.Reached {
			logger.WarnContext(c.Request.Context(), "rate limit exceeded",
				slog.String("client_ip", ip),
				slog.Int64("limit", lc.Limit),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, pkg.Response{
				Code:    http.StatusTooManyRequests,
				Message: "too many requests",
				Data:    nil,
			})
			return
		}

		c.Next()
	}
}
