package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Bucket is a typed view of one key kind in the Redis tier. Values are
// stored as JSON inside a CacheEntry.
type Bucket[T any] struct {
	manager *Manager
	kind    string
}

// NewBucket returns a bucket for kind backed by m.
func NewBucket[T any](m *Manager, kind string) *Bucket[T] {
	return &Bucket[T]{manager: m, kind: kind}
}

// Kind returns the key kind of the bucket.
func (b *Bucket[T]) Kind() string {
	return b.kind
}

// Load returns the value stored under id and when it was cached.
// Returns ErrCacheMiss for missing or expired values and ErrInvalidEntry
// when the value no longer decodes into T.
func (b *Bucket[T]) Load(ctx context.Context, id string) (*T, time.Time, error) {
	entry, err := b.manager.Get(ctx, b.key(id))
	if err != nil {
		return nil, time.Time{}, err
	}

	var value T
	if err := json.Unmarshal(entry.Data, &value); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, time.Time{}, fmt.Errorf("%w: decode %s: %v", ErrInvalidEntry, b.key(id), err)
	}
	return &value, entry.CachedAt, nil
}

// Save stores value under id for ttl.
func (b *Bucket[T]) Save(ctx context.Context, id string, value *T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("encode %s: %w", b.key(id), err)
	}
	return b.manager.Set(ctx, b.key(id), NewEntry(data, ttl))
}

// Clear removes every value of the bucket.
func (b *Bucket[T]) Clear(ctx context.Context) (int, error) {
	return b.manager.Clear(ctx, b.kind)
}

func (b *Bucket[T]) key(id string) CacheKey {
	return CacheKey{Kind: b.kind, ID: id}
}
