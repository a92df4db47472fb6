package server

import (
	"context"
	"sync"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/models"
)

// Context keys set by middleware and handlers
const (
	ctxKeyRequestID = "request_id"
	ctxKeyCacheHit  = "cache_hit"
	ctxKeyErrorType = "error_type"
)

// requestIDMiddleware assigns every request an id, honoring a caller's
// X-Request-ID when present
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ctxKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// accessLogMiddleware writes one structured line per request
func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Infof("%s %s -> %d (%s) request_id=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(started), c.GetString(ctxKeyRequestID))
	}
}

// recoveryMiddleware converts handler panics into the standard 500 envelope
func recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Handler panic on %s %s: %v", c.Request.Method, c.Request.URL.Path, r)
				respondError(c, models.NewInternalError("internal server error", nil))
			}
		}()
		c.Next()
	}
}

// clientLimiters hands out one token bucket per client IP. Buckets idle
// past the eviction window are dropped to bound the map.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	cl := &clientLimiters{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go cl.evictLoop()
	return cl
}

func (cl *clientLimiters) allow(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	entry, ok := cl.limiters[ip]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(cl.rps, cl.burst)}
		cl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (cl *clientLimiters) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		cl.mu.Lock()
		for ip, entry := range cl.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(cl.limiters, ip)
			}
		}
		cl.mu.Unlock()
	}
}

// rateLimitMiddleware applies a per-client token bucket. A non-positive
// rate disables limiting.
func rateLimitMiddleware(cfg config.ServerConfig) gin.HandlerFunc {
	if cfg.RateLimitRPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := newClientLimiters(cfg.RateLimitRPS, cfg.RateLimitBurst)
	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			respondError(c, models.NewAppError(models.ErrRateLimitExceeded, "rate limit exceeded", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

// metricsMiddleware records one APIMetric row per request and feeds the
// Prometheus collectors. The insert happens off the request path.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		elapsed := time.Since(started)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.prom.observe(c.Request.Method, route, c.Writer.Status(), elapsed)

		if s.deps.Metrics == nil {
			return
		}
		metric := &models.APIMetric{
			Endpoint:       route,
			Method:         c.Request.Method,
			StatusCode:     c.Writer.Status(),
			ResponseTimeMs: elapsed.Milliseconds(),
			CacheHit:       c.GetBool(ctxKeyCacheHit),
			LinterType:     c.Param("linter"),
			Format:         c.Param("format"),
			ErrorType:      c.GetString(ctxKeyErrorType),
			CreatedAt:      time.Now(),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.deps.Metrics.Insert(ctx, metric); err != nil {
				logger.Debugf("Failed to record API metric: %v", err)
			}
		}()
	}
}
