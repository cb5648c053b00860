package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is a bounded in-process LRU cache with a fixed freshness window.
// It is safe for concurrent use.
type Memory[V any] struct {
	lru      *expirable.LRU[string, V]
	layer    string
	capacity int
	ttl      time.Duration

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// Stats is a snapshot of memory cache counters. Evictions include entries
// dropped by capacity, by age, and by explicit removal.
type Stats struct {
	Size      int           `json:"size"`
	Capacity  int           `json:"capacity"`
	TTL       time.Duration `json:"ttl"`
	Hits      uint64        `json:"hits"`
	Misses    uint64        `json:"misses"`
	Evictions uint64        `json:"evictions"`
}

// NewMemory creates a memory cache holding at most capacity entries, each
// fresh for ttl. layer names the cache in metrics.
func NewMemory[V any](layer string, capacity int, ttl time.Duration) *Memory[V] {
	if capacity <= 0 {
		capacity = 1
	}
	m := &Memory[V]{layer: layer, capacity: capacity, ttl: ttl}
	m.lru = expirable.NewLRU[string, V](capacity, func(string, V) {
		m.evictions.Add(1)
		CacheEvictions.WithLabelValues(layer).Inc()
	}, ttl)
	return m
}

// Get returns the fresh value stored under key.
func (m *Memory[V]) Get(key string) (V, bool) {
	v, ok := m.lru.Get(key)
	if !ok {
		m.misses.Add(1)
		CacheMisses.WithLabelValues(m.layer).Inc()
		return v, false
	}
	m.hits.Add(1)
	CacheHits.WithLabelValues(m.layer).Inc()
	return v, true
}

// Add stores value under key, replacing any previous value and restarting
// its freshness window.
func (m *Memory[V]) Add(key string, value V) {
	m.lru.Add(key, value)
	CacheEntries.WithLabelValues(m.layer).Set(float64(m.lru.Len()))
}

// Remove deletes key. It reports whether the key was present.
func (m *Memory[V]) Remove(key string) bool {
	ok := m.lru.Remove(key)
	CacheEntries.WithLabelValues(m.layer).Set(float64(m.lru.Len()))
	return ok
}

// Purge drops every entry.
func (m *Memory[V]) Purge() {
	m.lru.Purge()
	CacheEntries.WithLabelValues(m.layer).Set(0)
}

// Len returns the number of stored entries, including ones that expired but
// have not been collected yet.
func (m *Memory[V]) Len() int {
	return m.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (m *Memory[V]) Stats() Stats {
	return Stats{
		Size:      m.lru.Len(),
		Capacity:  m.capacity,
		TTL:       m.ttl,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
	}
}
