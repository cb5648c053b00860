package cache

import (
	"strings"
)

// KeyPrefix is prepended to every Redis key written by this package.
const KeyPrefix = "tracking"

// CacheKey identifies a cached value in the Redis tier.
type CacheKey struct {
	// Kind groups related keys (e.g. "result").
	Kind string

	// ID is the value identifier, typically a normalized tracking number.
	ID string
}

// String generates a deterministic cache key string.
// Format: tracking:kind:id
//
// Example:
//
//	tracking:result:PGS123456
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if kind := strings.Trim(k.Kind, ": "); kind != "" {
		parts = append(parts, kind)
	}
	parts = append(parts, strings.TrimSpace(k.ID))

	return strings.Join(parts, ":")
}
