package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/octopis-auth/internal/core/port"
	"github.com/arklim/octopis-auth/internal/infra/logger"
	"github.com/arklim/octopis-auth/internal/infra/telemetry"
)

const (
	// RateLimitedPrefix is the only path prefix the limiter accounts.
	RateLimitedPrefix = "/auth/"
	// UnknownClient is the shared bucket for requests with no usable address.
	UnknownClient = "unknown"

	rateLimitedMessage = "Too many auth requests. Please retry later."
)

// limitReporter is implemented by stores that know their configured maximum.
type limitReporter interface {
	Limit() int
}

// keyCounter is implemented by stores that can report their tracked keys cheaply.
type keyCounter interface {
	Len() int
}

// RateLimiter throttles the /auth/ routes per client and path.
type RateLimiter struct {
	store   port.RateLimitStore
	metrics *telemetry.AuthMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewRateLimiter builds the limiter around an admission store.
func NewRateLimiter(store port.RateLimitStore, metrics *telemetry.AuthMetrics, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// Handler returns the gin middleware. Denied requests never reach later handlers.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if rl == nil || rl.store == nil || !strings.HasPrefix(path, RateLimitedPrefix) {
			c.Next()
			return
		}

		client := ClientKey(c.Request)
		decision := rl.store.Admit(client+":"+path, rl.now())
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rl.metrics.ObserveRateLimit(route, decision.Allowed)
		if kc, ok := rl.store.(keyCounter); ok {
			rl.metrics.ObserveTrackedKeys(kc.Len())
		}

		headers := c.Writer.Header()
		if lr, ok := rl.store.(limitReporter); ok {
			headers.Set("X-RateLimit-Limit", strconv.Itoa(lr.Limit()))
		}
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.ResetAt.IsZero() {
			headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}

		if decision.Allowed {
			c.Next()
			return
		}

		rl.logger.Warn("auth request throttled",
			zap.String("request_id", GetRequestID(c)),
			zap.String("client", logger.MaskIP(client)),
			zap.String("path", path),
			zap.Int("retry_after_seconds", decision.RetryAfter),
		)

		headers.Set("Retry-After", strconv.Itoa(decision.RetryAfter))
		AbortWithError(c, http.StatusTooManyRequests, rateLimitedMessage, map[string]any{
			"retry_after_seconds": decision.RetryAfter,
		})
	}
}

// ClientKey identifies the caller: the first X-Forwarded-For entry, else the
// peer host, else UnknownClient.
func ClientKey(r *http.Request) string {
	if r == nil {
		return UnknownClient
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return UnknownClient
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		if host == "" {
			return UnknownClient
		}
		return host
	}
	return addr
}
