// ratelimit.go implements per-caller request rate limiting. Limits are
// enforced with the GCRA limiter from redis_rate so that all replicas share
// one budget per caller; when no Redis address is configured the limiter
// falls back to an in-process sliding window, which is correct for
// single-node deployments.
//
// The code generate/validate endpoints get a separate, stricter limit: a
// 6-digit code space is small enough that an unthrottled validator endpoint
// is a practical brute-force target.
package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/campusface/campusface/internal/config"
)

// RateLimiter answers whether a caller identified by key may proceed
type RateLimiter interface {
	Allow(c *gin.Context, key string, perMinute, burst int) (bool, error)
}

// redisRateLimiter enforces limits via redis_rate's GCRA implementation,
// shared across server replicas
type redisRateLimiter struct {
	limiter *redis_rate.Limiter
}

func (l *redisRateLimiter) Allow(c *gin.Context, key string, perMinute, burst int) (bool, error) {
	limit := redis_rate.Limit{
		Rate:   perMinute,
		Period: time.Minute,
		Burst:  burst,
	}
	res, err := l.limiter.Allow(c.Request.Context(), key, limit)
	if err != nil {
		return false, err
	}
	return res.Allowed > 0, nil
}

// localRateLimiter is the in-process fallback: a per-key sliding window over
// the last minute. Counts are not shared between replicas.
type localRateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func newLocalRateLimiter() *localRateLimiter {
	return &localRateLimiter{windows: make(map[string][]time.Time)}
}

func (l *localRateLimiter) Allow(_ *gin.Context, key string, perMinute, burst int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	recent := l.windows[key][:0]
	for _, t := range l.windows[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= max(perMinute, burst) {
		l.windows[key] = recent
		return false, nil
	}

	l.windows[key] = append(recent, now)
	return true, nil
}

// NewRateLimiter builds the limiter backend from configuration. A configured
// Redis address selects the shared GCRA limiter; otherwise the in-process
// fallback is used.
func NewRateLimiter(cfg *config.RedisConfig) RateLimiter {
	if cfg.Addr == "" {
		slog.Info("rate limiting using in-process limiter; configure redis.addr for multi-replica deployments")
		return newLocalRateLimiter()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	slog.Info("rate limiting using Redis", "addr", cfg.Addr)
	return &redisRateLimiter{limiter: redis_rate.NewLimiter(client)}
}

// callerKey identifies the caller for throttling purposes: the authenticated
// user when available, the client IP otherwise
func callerKey(c *gin.Context) string {
	if id := c.GetString(UserIDKey); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}

// RateLimitMiddleware throttles each caller to perMinute requests with the
// given burst. Limiter backend errors fail open: an unreachable Redis must
// not take the API down with it.
func RateLimitMiddleware(limiter RateLimiter, perMinute, burst int) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c, "ratelimit:"+c.FullPath()+":"+callerKey(c), perMinute, burst)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
