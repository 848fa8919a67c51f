// internal/api/middleware.go
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/common/metrics"
)

const (
	HeaderRequestID = "X-Request-ID"
	ctxRequestID    = "requestId"
)

// RequestIDMiddleware reuses an incoming X-Request-ID or mints one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

func LoggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"requestId":  c.GetString(ctxRequestID),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
			"size_bytes": c.Writer.Size(),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("HTTP Server Error", fields)
		case status >= 400:
			log.Warn("HTTP Client Error", fields)
		default:
			log.Info("HTTP Request", fields)
		}
	}
}

// ClientLimiter keeps one token bucket per client IP.
type ClientLimiter struct {
	mu   sync.Mutex
	m    map[string]*rate.Limiter
	r    rate.Limit
	b    int
	size int
}

// NewClientLimiter allows reqPerSec sustained requests with the given burst
// per client. The table is reset once it tracks maxClients entries.
func NewClientLimiter(reqPerSec float64, burst, maxClients int) *ClientLimiter {
	if burst <= 0 {
		burst = 1
	}
	if maxClients <= 0 {
		maxClients = 10000
	}
	return &ClientLimiter{
		m:    make(map[string]*rate.Limiter),
		r:    rate.Limit(reqPerSec),
		b:    burst,
		size: maxClients,
	}
}

func (cl *ClientLimiter) limiterFor(client string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if lim, ok := cl.m[client]; ok {
		return lim
	}
	if len(cl.m) >= cl.size {
		cl.m = make(map[string]*rate.Limiter)
	}
	lim := rate.NewLimiter(cl.r, cl.b)
	cl.m[client] = lim
	return lim
}

func (cl *ClientLimiter) Allow(client string) bool {
	return cl.limiterFor(client).Allow()
}

func RateLimitMiddleware(cl *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cl.Allow(c.ClientIP()) {
			metrics.APIRequestsRateLimited.Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody(c, "RATE_LIMITED", "too many requests"))
			return
		}
		c.Next()
	}
}

// BodyLimitMiddleware caps request bodies at n bytes.
func BodyLimitMiddleware(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
