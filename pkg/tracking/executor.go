package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/tracking-proxy/pkg/cache"
	"github.com/Sternrassler/tracking-proxy/pkg/logging"
	"github.com/Sternrassler/tracking-proxy/pkg/store"
)

// resultKind is the Redis key kind for cached results.
const resultKind = "result"

// Fetcher returns the raw provider payload for a normalized tracking number.
// *client.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, trackingNumber string, timeout time.Duration) (json.RawMessage, error)
}

// StatsRecorder counts completed provider lookups.
type StatsRecorder interface {
	RecordQuery(ctx context.Context, count int) error
}

// QueryLogger persists one entry per provider lookup.
type QueryLogger interface {
	LogQuery(ctx context.Context, entry store.QueryLog) error
}

// Config holds the executor configuration.
type Config struct {
	// CacheTTL is the freshness window of cached results.
	CacheTTL time.Duration

	// CacheCapacity bounds the memory tier.
	CacheCapacity int

	// MaxBatchSize is the largest accepted batch.
	MaxBatchSize int

	// BatchConcurrency is the default chunk size of a batch.
	BatchConcurrency int

	// QueryTimeout is the per-attempt timeout when a query sets none.
	// Zero leaves it to the fetcher.
	QueryTimeout time.Duration

	// RecordTimeout bounds stats and query log writes.
	RecordTimeout time.Duration

	// Redis enables the shared second cache tier (optional).
	Redis *cache.Manager

	// Stats receives one count per completed lookup (optional).
	Stats StatsRecorder

	// Queries receives one entry per provider lookup (optional).
	Queries QueryLogger
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL:         5 * time.Minute,
		CacheCapacity:    1000,
		MaxBatchSize:     50,
		BatchConcurrency: 5,
		RecordTimeout:    2 * time.Second,
	}
}

// QueryOptions tune a single lookup.
type QueryOptions struct {
	// ForceRefresh skips both cache tiers.
	ForceRefresh bool

	// Timeout overrides the per-attempt timeout.
	Timeout time.Duration
}

type cachedResult struct {
	result   *TrackingResult
	cachedAt time.Time
}

// Executor resolves tracking numbers. It is safe for concurrent use.
type Executor struct {
	config   Config
	fetcher  Fetcher
	memory   *cache.Memory[*cachedResult]
	shared   *cache.Bucket[TrackingResult] // nil without Redis
	inflight singleflight.Group
	pending  atomic.Int64
	logger   zerolog.Logger
}

// New creates an executor that fetches through fetcher.
func New(cfg Config, fetcher Fetcher) (*Executor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache_ttl must be positive (got %v)", cfg.CacheTTL)
	}
	if cfg.CacheCapacity < 1 {
		return nil, fmt.Errorf("cache_capacity must be >= 1 (got %d)", cfg.CacheCapacity)
	}
	if cfg.MaxBatchSize < 1 {
		return nil, fmt.Errorf("max_batch_size must be >= 1 (got %d)", cfg.MaxBatchSize)
	}
	if cfg.BatchConcurrency < 1 {
		return nil, fmt.Errorf("batch_concurrency must be >= 1 (got %d)", cfg.BatchConcurrency)
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 2 * time.Second
	}

	e := &Executor{
		config:  cfg,
		fetcher: fetcher,
		memory:  cache.NewMemory[*cachedResult]("memory", cfg.CacheCapacity, cfg.CacheTTL),
		logger:  logging.NewLogger("tracking-executor"),
	}
	if cfg.Redis != nil {
		e.shared = cache.NewBucket[TrackingResult](cfg.Redis, resultKind)
	}
	return e, nil
}

// Query resolves one tracking number.
//
// Fresh cached results are returned as the same pointer without a provider
// call. Concurrent queries for the same normalized number share one provider
// lookup and its outcome. Cancelling ctx abandons the wait but not the shared
// lookup, which still completes and fills the cache.
func (e *Executor) Query(ctx context.Context, trackingNumber string, opts QueryOptions) (*TrackingResult, error) {
	number := Normalize(trackingNumber)
	if number == "" {
		return nil, fmt.Errorf("%w: tracking number is empty", ErrInvalidInput)
	}

	if !opts.ForceRefresh {
		if result, ok := e.cached(ctx, number); ok {
			queriesTotal.WithLabelValues(outcomeCacheHit).Inc()
			e.logger.Debug().Str("tracking_number", number).Bool("cache_hit", true).Msg("Serving cached result")
			return result, nil
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.config.QueryTimeout
	}

	shared := context.WithoutCancel(ctx)
	ch := e.inflight.DoChan(number, func() (any, error) {
		e.pending.Add(1)
		inflightLookups.Inc()
		defer func() {
			e.pending.Add(-1)
			inflightLookups.Dec()
		}()
		return e.lookup(shared, number, timeout)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			queriesTotal.WithLabelValues(outcomeCoalesced).Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*TrackingResult), nil
	}
}

// lookup performs the provider call for the registry leader.
func (e *Executor) lookup(ctx context.Context, number string, timeout time.Duration) (*TrackingResult, error) {
	start := time.Now()
	raw, err := e.fetcher.Fetch(ctx, number, timeout)
	elapsed := time.Since(start)
	lookupDuration.Observe(elapsed.Seconds())

	e.logQuery(ctx, number, elapsed, err)

	if err != nil {
		queriesTotal.WithLabelValues(outcomeFailure).Inc()
		e.logger.Error().
			Err(err).
			Str("tracking_number", number).
			Dur("duration", elapsed).
			Msg("Tracking lookup failed")
		return nil, err
	}

	result := Format(number, raw, time.Now())
	e.store(ctx, number, result)
	e.recordStats(ctx)

	queriesTotal.WithLabelValues(outcomeSuccess).Inc()
	e.logger.Info().
		Str("tracking_number", number).
		Str("status", result.Status.Code).
		Int("events", len(result.Events)).
		Dur("duration", elapsed).
		Msg("Tracking lookup complete")

	return result, nil
}

// cached checks the memory tier, then Redis. Redis hits are promoted.
func (e *Executor) cached(ctx context.Context, number string) (*TrackingResult, bool) {
	if entry, ok := e.memory.Get(number); ok && time.Since(entry.cachedAt) < e.config.CacheTTL {
		return entry.result, true
	}

	if e.shared == nil {
		return nil, false
	}

	result, cachedAt, err := e.shared.Load(ctx, number)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			e.logger.Warn().Err(err).Str("tracking_number", number).Msg("Redis cache get failed")
		}
		return nil, false
	}
	if time.Since(cachedAt) >= e.config.CacheTTL {
		return nil, false
	}

	e.memory.Add(number, &cachedResult{result: result, cachedAt: cachedAt})
	e.logger.Debug().Str("tracking_number", number).Msg("Promoted Redis result to memory")
	return result, true
}

func (e *Executor) store(ctx context.Context, number string, result *TrackingResult) {
	e.memory.Add(number, &cachedResult{result: result, cachedAt: time.Now()})

	if e.shared == nil {
		return
	}
	if err := e.shared.Save(ctx, number, result, e.config.CacheTTL); err != nil {
		e.logger.Warn().Err(err).Str("tracking_number", number).Msg("Redis cache set failed")
	}
}

func (e *Executor) recordStats(ctx context.Context) {
	if e.config.Stats == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, e.config.RecordTimeout)
	defer cancel()
	if err := e.config.Stats.RecordQuery(rctx, 1); err != nil {
		e.logger.Warn().Err(err).Msg("Recording query stats failed")
	}
}

func (e *Executor) logQuery(ctx context.Context, number string, elapsed time.Duration, lookupErr error) {
	if e.config.Queries == nil {
		return
	}

	info := store.RequestInfoFromContext(ctx)
	entry := store.QueryLog{
		TrackingNumber: number,
		Status:         store.QueryStatusSuccess,
		ResponseTime:   elapsed,
		IPAddress:      info.IPAddress,
		UserAgent:      info.UserAgent,
		RequestID:      info.RequestID,
	}
	if lookupErr != nil {
		entry.Status = store.QueryStatusFailed
		entry.ErrorMessage = lookupErr.Error()
	}

	rctx, cancel := context.WithTimeout(ctx, e.config.RecordTimeout)
	defer cancel()
	if err := e.config.Queries.LogQuery(rctx, entry); err != nil {
		e.logger.Warn().Err(err).Str("tracking_number", number).Msg("Writing query log failed")
	}
}

// InFlight returns the number of provider lookups currently running.
func (e *Executor) InFlight() int {
	return int(e.pending.Load())
}

// CacheStats returns a snapshot of the memory tier counters.
func (e *Executor) CacheStats() cache.Stats {
	return e.memory.Stats()
}

// ClearCache drops every cached result from both tiers.
func (e *Executor) ClearCache(ctx context.Context) error {
	e.memory.Purge()
	if e.shared == nil {
		return nil
	}
	removed, err := e.shared.Clear(ctx)
	if err != nil {
		return fmt.Errorf("clear redis results: %w", err)
	}
	e.logger.Info().Int("removed", removed).Msg("Cleared cached results")
	return nil
}
