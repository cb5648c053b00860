package tracking

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("TRK%04d", i)
	}
	return out
}

func TestQueryBatch_Empty(t *testing.T) {
	e := newTestExecutor(t, newStubFetcher())

	_, err := e.QueryBatch(context.Background(), nil, BatchOptions{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestQueryBatch_TooLarge(t *testing.T) {
	fetcher := newStubFetcher()
	e := newTestExecutor(t, fetcher)

	_, err := e.QueryBatch(context.Background(), numbers(51), BatchOptions{})
	require.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Contains(t, err.Error(), "51")
	assert.Equal(t, int32(0), fetcher.total.Load(), "no lookups may start for an oversized batch")
}

func TestQueryBatch_MaximumSizeAccepted(t *testing.T) {
	fetcher := newStubFetcher()
	e := newTestExecutor(t, fetcher)

	results, err := e.QueryBatch(context.Background(), numbers(50), BatchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 50)
	assert.Equal(t, int32(50), fetcher.total.Load())
}

func TestQueryBatch_PartialFailure(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.failWith("BAD002", fmt.Errorf("%w: HTTP 502", ErrUpstream))
	e := newTestExecutor(t, fetcher)

	input := []string{"GOOD001", "BAD002", "BAD#1X", "JobNum: GOOD004"}
	results, err := e.QueryBatch(context.Background(), input, BatchOptions{Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, results, len(input))

	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}

	assert.True(t, results[0].Success)
	assert.Equal(t, "GOOD001", results[0].TrackingNumber)
	require.NotNil(t, results[0].Data)
	assert.Equal(t, "IN_TRANSIT", results[0].Data.Status.Code)

	assert.False(t, results[1].Success)
	assert.Nil(t, results[1].Data)
	assert.Contains(t, results[1].Error, "HTTP 502")

	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, "invalid characters")

	assert.True(t, results[3].Success)
	assert.Equal(t, "GOOD004", results[3].TrackingNumber)

	assert.Equal(t, 0, fetcher.callsFor("BAD#1X"), "invalid members never reach the provider")
}

func TestQueryBatch_Progress(t *testing.T) {
	e := newTestExecutor(t, newStubFetcher())

	type progress struct{ completed, total int }
	var calls []progress
	opts := BatchOptions{
		Concurrency: 5,
		OnProgress: func(completed, total int) {
			calls = append(calls, progress{completed, total})
		},
	}

	results, err := e.QueryBatch(context.Background(), numbers(10), opts)
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.Equal(t, []progress{{5, 10}, {10, 10}}, calls)
}

func TestQueryBatch_ChunksBoundConcurrency(t *testing.T) {
	fetcher := newStubFetcher()
	e := newTestExecutor(t, fetcher, func(c *Config) { c.BatchConcurrency = 3 })

	results, err := e.QueryBatch(context.Background(), numbers(10), BatchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(3))
}

func TestQueryBatch_ConcurrencyClampedToInput(t *testing.T) {
	e := newTestExecutor(t, newStubFetcher())

	var calls int
	results, err := e.QueryBatch(context.Background(), numbers(2), BatchOptions{
		Concurrency: 20,
		OnProgress:  func(completed, total int) { calls++ },
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 1, calls)
}

func TestQueryBatch_DuplicatesShareLookup(t *testing.T) {
	fetcher := newStubFetcher()
	e := newTestExecutor(t, fetcher)

	results, err := e.QueryBatch(context.Background(), []string{"ABC123", "PO: ABC123", "abc123"}, BatchOptions{Concurrency: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, fetcher.callsFor("ABC123"))
	assert.Same(t, results[0].Data, results[1].Data)
	assert.Equal(t, 1, fetcher.callsFor("abc123"), "numbers are case sensitive")
}

func TestQueryBatch_CancelStopsDispatch(t *testing.T) {
	fetcher := newStubFetcher()
	e := newTestExecutor(t, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var last [2]int
	opts := BatchOptions{
		Concurrency: 5,
		OnProgress: func(completed, total int) {
			mu.Lock()
			last = [2]int{completed, total}
			mu.Unlock()
			cancel()
		},
	}

	results, err := e.QueryBatch(ctx, numbers(15), opts)
	require.NoError(t, err)
	require.Len(t, results, 15)

	assert.Equal(t, int32(5), fetcher.total.Load(), "only the first chunk is dispatched")
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		if i < 5 {
			assert.True(t, r.Success, "record %d", i)
			continue
		}
		assert.False(t, r.Success, "record %d", i)
		assert.Contains(t, r.Error, context.Canceled.Error())
	}
	assert.Equal(t, [2]int{15, 15}, last)
}
