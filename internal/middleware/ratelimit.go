// ratelimit.go provides Gin middleware that enforces per-client rate limits and answers
// 429 when a client exceeds its budget. Limits are kept in process memory by default or
// in Redis (GCRA via redis_rate) when replicas must share them.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/careline/careline/internal/safego"
)

// RateLimitConfig holds configuration for a single limit
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often the memory limiter drops idle clients
	CleanupInterval time.Duration
}

// ChatRateLimitConfig returns the default limit for chat and logout
func ChatRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
	}
}

// LoginRateLimitConfig returns the stricter default limit for login attempts
func LoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// RateLimitResult is the outcome of one Allow call
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a client identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
	Limit() int
}

// ---------------------------------------------------------------------------
// in-memory token bucket
// ---------------------------------------------------------------------------

type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter implements a token bucket per key
type MemoryLimiter struct {
	config   RateLimitConfig
	entries  map[string]*rateLimitEntry
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewMemoryLimiter creates a limiter and starts its cleanup goroutine
func NewMemoryLimiter(config RateLimitConfig) *MemoryLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &MemoryLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	safego.Go(rl.cleanup)
	return rl
}

// cleanup removes clients idle for more than 10 minutes
func (rl *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *MemoryLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Limit returns the configured requests per minute
func (rl *MemoryLimiter) Limit() int {
	return rl.config.RequestsPerMinute
}

// Allow consumes a token for key if one is available
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (RateLimitResult, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	burst := float64(rl.config.BurstSize)
	perSecond := float64(rl.config.RequestsPerMinute) / 60.0

	entry, exists := rl.entries[key]
	if !exists {
		entry = &rateLimitEntry{tokens: burst, lastUpdate: now}
		rl.entries[key] = entry
	} else {
		elapsed := now.Sub(entry.lastUpdate).Seconds()
		entry.tokens = math.Min(burst, entry.tokens+elapsed*perSecond)
		entry.lastUpdate = now
	}

	if entry.tokens >= 1 {
		entry.tokens--
		return RateLimitResult{Allowed: true, Remaining: int(entry.tokens)}, nil
	}

	var retry time.Duration
	if perSecond > 0 {
		retry = time.Duration((1 - entry.tokens) / perSecond * float64(time.Second))
	}
	return RateLimitResult{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
}

// ---------------------------------------------------------------------------
// Redis GCRA
// ---------------------------------------------------------------------------

// RedisLimiter shares limits between replicas through Redis
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisLimiter creates a limiter storing state under prefix
func NewRedisLimiter(client *redis.Client, prefix string, config RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  config.BurstSize,
			Period: time.Minute,
		},
		prefix: prefix,
	}
}

// Limit returns the configured requests per minute
func (rl *RedisLimiter) Limit() int {
	return rl.limit.Rate
}

// Allow asks Redis whether key may proceed
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	res, err := rl.limiter.Allow(ctx, rl.prefix+key, rl.limit)
	if err != nil {
		return RateLimitResult{}, err
	}
	return RateLimitResult{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		RetryAfter: max(res.RetryAfter, 0),
	}, nil
}

// ---------------------------------------------------------------------------
// middleware
// ---------------------------------------------------------------------------

// RateLimitMiddleware limits requests per client IP under the given scope. A limiter
// error lets the request through.
func RateLimitMiddleware(limiter Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":ip:" + c.ClientIP()

		res, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "scope", scope, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}
