package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/arcade/internal/infrastructure/config"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/arcade/internal/shared/id"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// LocalOrigins are the browser origins accepted when none are configured.
var LocalOrigins = []string{
	"http://localhost",
	"http://localhost:*",
	"http://127.0.0.1",
	"http://127.0.0.1:*",
}

// DefaultCORSConfig admits UIs served from this machine only.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: append([]string(nil), LocalOrigins...),
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Origin",
			"Cache-Control",
			RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}
}

// CORS creates a CORS middleware with the provided configuration. Requests
// from origins outside the allowlist are refused with 403.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    []string{RequestIDHeader},
		AllowCredentials: cfg.AllowCredentials,
		AllowWildcard:    true,
		MaxAge:           cfg.MaxAge,
	})
}

// originAllowed reports whether a browser origin matches one of patterns.
// Same-host origins are always allowed, as are requests without an Origin.
func originAllowed(r *http.Request, patterns []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	for _, pattern := range patterns {
		if pattern == "*" || pattern == origin {
			return true
		}
		if ok, _ := doublestar.Match(pattern, origin); ok {
			return true
		}
	}
	return false
}

// JSONOnly rejects request bodies that are not application/json with 415.
// Requests without a body pass.
func JSONOnly(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct := c.ContentType()
		if ct == "" && c.Request.ContentLength == 0 {
			c.Next()
			return
		}
		if !strings.EqualFold(ct, binding.MIMEJSON) {
			metrics.RecordRejected("unsupported_media_type")
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "content type must be " + binding.MIMEJSON,
			})
			return
		}
		c.Next()
	}
}

// RequestID propagates the caller's request id or assigns one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = id.NewRequestID().String()
		}
		c.Set(RequestIDHeader, rid)
		c.Header(RequestIDHeader, rid)
		c.Next()
	}
}

// idle clients are forgotten after this long
const clientTTL = 10 * time.Minute

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg config.RateLimitConfig, metrics *monitoring.Metrics) gin.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu        sync.Mutex
		clients   = make(map[string]*client)
		lastSweep time.Time
	)

	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerSecond
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > clientTTL {
			for k, cl := range clients {
				if now.Sub(cl.lastSeen) > clientTTL {
					delete(clients, k)
				}
			}
			lastSweep = now
		}
		cl, ok := clients[ip]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		limiter := cl.limiter
		mu.Unlock()

		if !limiter.Allow() {
			metrics.RecordRejected("rate_limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
