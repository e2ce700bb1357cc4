package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go-screening-backend/internal/delivery/http/response"
	"go-screening-backend/internal/domain"
	"go-screening-backend/pkg/security"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Time window duration
	Window time.Duration
	// Custom key extractor (default: IP-based)
	KeyFunc func(*gin.Context) string
	// Key prefix for Redis (default: "rl:ip:")
	KeyPrefix string
	// Whether to fail closed (reject) when Redis is unavailable
	FailClosed bool
}

// rateLimitEntry tracks request count for a key (in-memory fallback)
type rateLimitEntry struct {
	count   int
	resetAt time.Time
	mu      sync.Mutex
}

// RateLimiter counts requests in Redis and falls back to process memory when
// Redis is absent or failing.
type RateLimiter struct {
	client *goredis.Client
	audit  *security.AuditLogger

	store       sync.Map
	cleanupOnce sync.Once
}

func NewRateLimiter(client *goredis.Client, audit *security.AuditLogger) *RateLimiter {
	return &RateLimiter{client: client, audit: audit}
}

// Lua script for atomic increment with TTL on first set
// KEYS[1] = counter key
// ARGV[1] = TTL in seconds
// Returns: [current_count, ttl_remaining]
var rateLimitScript = goredis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return {count, ttl}
`)

// DefaultRateLimitConfig limits recruiter API traffic per client IP.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:     300,
		Window:    time.Minute,
		KeyPrefix: "rl:ip:",
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

// PublicRateLimitConfig guards the candidate-facing token routes.
func PublicRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:      30,
		Window:     time.Minute,
		KeyPrefix:  "rl:public:",
		FailClosed: true,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

// Middleware creates a rate limiting middleware with the given config
func (rl *RateLimiter) Middleware(config RateLimitConfig) gin.HandlerFunc {
	rl.cleanupOnce.Do(func() { go rl.cleanup(5 * time.Minute) })

	return func(c *gin.Context) {
		fullKey := config.KeyPrefix + config.KeyFunc(c)
		now := time.Now()

		var (
			count   int
			resetAt time.Time
			err     error
		)
		if rl.client != nil {
			count, resetAt, err = checkRateLimitRedis(c.Request.Context(), rl.client, fullKey, config)
			if err != nil {
				if config.FailClosed {
					rl.logEvent(c, map[string]interface{}{"error_type": "redis_error", "error": err.Error()})
					response.Abort(c, http.StatusServiceUnavailable, "Service temporarily unavailable. Please try again.")
					return
				}
				count, resetAt = rl.checkInMemory(fullKey, config, now)
			}
		} else {
			count, resetAt = rl.checkInMemory(fullKey, config, now)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		c.Header("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

		if count > config.Limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			rl.logEvent(c, map[string]interface{}{"path": c.FullPath()})
			response.Abort(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(config.Limit-count, 0)))
		c.Next()
	}
}

// UploadLimit applies the per-IP and per-job upload windows to routes under
// JobScope. Without Redis uploads are allowed.
func UploadLimit(limiter *security.UploadLimiter, audit *security.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !AllowUpload(c, limiter, audit, JobID(c)) {
			return
		}
		c.Next()
	}
}

// AllowUpload checks the upload windows for jobID and aborts the request when
// they are exhausted.
func AllowUpload(c *gin.Context, limiter *security.UploadLimiter, audit *security.AuditLogger, jobID int64) bool {
	allowed, retryAfter, err := limiter.AllowUpload(c.Request.Context(), c.ClientIP(), jobID)
	if err != nil && !allowed {
		response.Abort(c, http.StatusServiceUnavailable, "Upload service temporarily unavailable")
		return false
	}
	if !allowed {
		audit.Log(c.Request.Context(), security.SecurityEvent{
			Event:     security.EventRateLimitTriggered,
			IP:        c.ClientIP(),
			RequestID: c.GetString(string(domain.KeyRequestID)),
			Details:   map[string]interface{}{"scope": "upload", "job_id": jobID},
		})
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		response.Abort(c, http.StatusTooManyRequests, "Too many uploads. Please try again later.")
		return false
	}
	return true
}

// checkRateLimitRedis checks rate limit using Redis with atomic Lua script
func checkRateLimitRedis(ctx context.Context, client *goredis.Client, key string, config RateLimitConfig) (int, time.Time, error) {
	result, err := rateLimitScript.Run(ctx, client, []string{key}, int(config.Window.Seconds())).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis rate limit eval failed: %w", err)
	}

	arr, ok := result.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected redis result format")
	}
	count, _ := arr[0].(int64)
	ttl, _ := arr[1].(int64)
	return int(count), time.Now().Add(time.Duration(ttl) * time.Second), nil
}

func (rl *RateLimiter) checkInMemory(key string, config RateLimitConfig, now time.Time) (int, time.Time) {
	entryI, _ := rl.store.LoadOrStore(key, &rateLimitEntry{resetAt: now.Add(config.Window)})
	entry := entryI.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.resetAt) {
		entry.count = 0
		entry.resetAt = now.Add(config.Window)
	}
	entry.count++
	return entry.count, entry.resetAt
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for now := range ticker.C {
		rl.store.Range(func(key, value interface{}) bool {
			entry := value.(*rateLimitEntry)
			entry.mu.Lock()
			if now.After(entry.resetAt) {
				rl.store.Delete(key)
			}
			entry.mu.Unlock()
			return true
		})
	}
}

func (rl *RateLimiter) logEvent(c *gin.Context, details map[string]interface{}) {
	rl.audit.Log(c.Request.Context(), security.SecurityEvent{
		Event:       security.EventRateLimitTriggered,
		SubjectType: "ip",
		IP:          c.ClientIP(),
		UserAgent:   c.GetHeader("User-Agent"),
		RequestID:   c.GetString(string(domain.KeyRequestID)),
		Details:     details,
	})
}
