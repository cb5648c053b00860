package tracking

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc is called after every chunk with the number of completed
// records and the batch size.
type ProgressFunc func(completed, total int)

// BatchOptions tune a batch lookup.
type BatchOptions struct {
	// Concurrency is the chunk size. Zero uses the configured default; it is
	// clamped to the batch length.
	Concurrency int

	// OnProgress is called from the calling goroutine after each chunk.
	OnProgress ProgressFunc
}

// QueryBatch resolves numbers in consecutive chunks of Concurrency. Members
// of a chunk run concurrently and the next chunk starts only after the whole
// chunk finished. The result holds exactly one record per input in input
// order; individual failures become failed records.
//
// Once ctx is done no further chunks are dispatched and the remaining
// numbers are recorded as failures carrying the context error.
func (e *Executor) QueryBatch(ctx context.Context, numbers []string, opts BatchOptions) ([]BatchResult, error) {
	total := len(numbers)
	if total == 0 {
		return nil, fmt.Errorf("%w: no tracking numbers given", ErrInvalidInput)
	}
	if total > e.config.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d tracking numbers exceed the limit of %d", ErrBatchTooLarge, total, e.config.MaxBatchSize)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = e.config.BatchConcurrency
	}
	if concurrency > total {
		concurrency = total
	}

	start := time.Now()
	batchSize.Observe(float64(total))
	defer func() {
		batchDuration.Observe(time.Since(start).Seconds())
	}()

	e.logger.Info().
		Int("total", total).
		Int("concurrency", concurrency).
		Msg("Starting batch lookup")

	results := make([]BatchResult, 0, total)
	failed := 0

	for offset := 0; offset < total; offset += concurrency {
		if err := ctx.Err(); err != nil {
			for i := offset; i < total; i++ {
				results = append(results, BatchResult{
					Index:          i,
					TrackingNumber: Normalize(numbers[i]),
					Error:          err.Error(),
				})
			}
			failed += total - offset
			e.logger.Warn().
				Err(err).
				Int("completed", offset).
				Int("total", total).
				Msg("Batch cancelled, remaining chunks not dispatched")
			if opts.OnProgress != nil {
				opts.OnProgress(total, total)
			}
			break
		}

		end := min(offset+concurrency, total)
		chunk := make([]BatchResult, end-offset)

		// members never return an error so one failure cannot cancel siblings
		var g errgroup.Group
		for i := offset; i < end; i++ {
			g.Go(func() error {
				chunk[i-offset] = e.queryMember(ctx, i, numbers[i])
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range chunk {
			if !r.Success {
				failed++
			}
		}
		results = append(results, chunk...)

		e.logger.Debug().
			Int("completed", len(results)).
			Int("total", total).
			Float64("progress_pct", float64(len(results))/float64(total)*100).
			Msg("Batch progress")

		if opts.OnProgress != nil {
			opts.OnProgress(len(results), total)
		}
	}

	e.logger.Info().
		Int("total", total).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch lookup complete")

	return results, nil
}

func (e *Executor) queryMember(ctx context.Context, index int, raw string) BatchResult {
	number, err := Validate(raw)
	if err != nil {
		return BatchResult{Index: index, TrackingNumber: Normalize(raw), Error: err.Error()}
	}

	result, err := e.Query(ctx, number, QueryOptions{})
	if err != nil {
		return BatchResult{Index: index, TrackingNumber: number, Error: err.Error()}
	}
	return BatchResult{Index: index, TrackingNumber: number, Success: true, Data: result}
}
