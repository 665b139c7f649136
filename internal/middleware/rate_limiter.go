package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"aibbs/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions allows a short burst of posts, then one every
// ten seconds per IP.
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          rate.Every(10 * time.Second),
		Burst:          3,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

// RateLimiter limits requests per client key.
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients *utils.Cache[*rate.Limiter]
	log     *zap.Logger
}

func NewRateLimiter(log *zap.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	return &RateLimiter{
		options: opts,
		clients: utils.NewCache[*rate.Limiter](10000),
		log:     log,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)
		if !r.getLimiter(key).Allow() {
			r.log.Warn("rate limit exceeded",
				zap.String("client", key),
				zap.String("path", c.Request.URL.Path),
			)
			c.Header("Retry-After", strconv.Itoa(r.retryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please try again later."})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) retryAfter() int {
	if r.options.Limit <= 0 || r.options.Limit == rate.Inf {
		return 1
	}
	return int(math.Ceil(1 / float64(r.options.Limit)))
}

// getLimiter returns the limiter of key; idle entries expire from the cache.
func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, ok := r.clients.Get(key)
	if !ok {
		limiter = rate.NewLimiter(r.options.Limit, r.options.Burst)
	}
	r.clients.Set(key, limiter, r.options.ExpiryDuration)
	return limiter
}
