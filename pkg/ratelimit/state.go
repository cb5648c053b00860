// Package ratelimit implements a Redis backed fixed-window rate limiter for
// inbound API requests. Counters are shared by every instance that uses the
// same Redis.
package ratelimit

import (
	"time"
)

// RedisKeyPrefix prefixes every counter key.
// Full key format: tracking:ratelimit:<client key>:<window start unix>
const RedisKeyPrefix = "tracking:ratelimit"

// Decision is the outcome of one Allow call.
type Decision struct {
	// Allowed reports whether the request fits into the current window.
	Allowed bool `json:"allowed"`

	// Limit is the number of requests allowed per window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (d Decision) TimeUntilReset() time.Duration {
	duration := time.Until(d.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// RetryAfterSeconds returns TimeUntilReset rounded up to whole seconds,
// at least 1.
func (d Decision) RetryAfterSeconds() int {
	wait := d.TimeUntilReset()
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
