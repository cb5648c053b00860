package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitAllowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_rate_limit_allowed_total",
		Help: "Total number of requests admitted by the rate limiter",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_rate_limit_blocks_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	rateLimitErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_rate_limit_errors_total",
		Help: "Total number of limiter failures (requests were let through)",
	})
)

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewLimiter creates a limiter allowing limit requests per window and key.
func NewLimiter(redisClient *redis.Client, limit int, window time.Duration, logger zerolog.Logger) (*Limiter, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1 (got %d)", limit)
	}
	if window < time.Second {
		return nil, fmt.Errorf("window must be at least 1s (got %v)", window)
	}
	return &Limiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Allow counts one request for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	resetAt := windowStart.Add(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", RedisKeyPrefix, key, windowStart.Unix())

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// the counter outlives its window slightly so late increments never reset it
	pipe.Expire(ctx, redisKey, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		rateLimitErrorsTotal.Inc()
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: resetAt},
			fmt.Errorf("increment rate limit counter: %w", err)
	}

	count := int(incr.Val())
	decision := Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(l.limit-count, 0),
		ResetAt:   resetAt,
	}

	if decision.Allowed {
		rateLimitAllowedTotal.Inc()
	} else {
		rateLimitBlocksTotal.Inc()
		l.logger.Warn().
			Str("key", key).
			Int("count", count).
			Int("limit", l.limit).
			Time("reset_at", resetAt).
			Msg("Rate limit exceeded")
	}

	return decision, nil
}
