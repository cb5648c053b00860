package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	providerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_provider_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	providerRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracking_provider_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 1.5, 2, 5, 10, 30},
	}, []string{"error_class"})

	providerRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_provider_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// Delay is the wait before the second attempt.
	Delay time.Duration

	// Backoff multiplies the delay after every failed attempt.
	Backoff float64

	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration

	// Jitter randomizes each wait by ±Jitter (0.2 = ±20%). Zero disables it.
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       1 * time.Second,
		Backoff:     1.5,
		MaxDelay:    30 * time.Second,
	}
}

// DelayFor returns the wait after the given failed attempt (1-based):
// Delay * Backoff^(attempt-1), capped at MaxDelay.
func (r RetryConfig) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(r.Delay) * math.Pow(r.Backoff, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if r.Jitter > 0 {
		d = time.Duration(float64(d) * (1 - r.Jitter + rand.Float64()*2*r.Jitter))
	}
	return d
}

func (r RetryConfig) validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be >= 1 (got %d)", r.MaxAttempts)
	}
	if r.Delay < 0 {
		return fmt.Errorf("retry delay must not be negative (got %v)", r.Delay)
	}
	if r.Backoff < 1 {
		return fmt.Errorf("retry backoff must be >= 1 (got %v)", r.Backoff)
	}
	if r.Jitter < 0 || r.Jitter >= 1 {
		return fmt.Errorf("retry jitter must be in [0, 1) (got %v)", r.Jitter)
	}
	return nil
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryWithBackoff executes fn until it succeeds, returns a non-retryable
// error, or MaxAttempts is reached. The error of the final attempt is returned
// wrapped in ErrRetryExhausted.
func retryWithBackoff(ctx context.Context, config RetryConfig, sleep SleepFunc, logger zerolog.Logger, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass := classify(err)

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		if !shouldRetry(errorClass) {
			return lastErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		providerRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		wait := config.DelayFor(attempt)
		providerRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		if err := sleep(ctx, wait); err != nil {
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	errorClass := classify(lastErr)
	providerRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
