package tracking

import (
	"errors"

	"github.com/Sternrassler/tracking-proxy/pkg/client"
)

// Errors returned by the executor. The provider sentinels are re-exported so
// callers only need this package for errors.Is checks.
var (
	ErrInvalidInput       = client.ErrInvalidInput
	ErrTimeout            = client.ErrTimeout
	ErrUpstream           = client.ErrUpstream
	ErrServiceUnavailable = client.ErrServiceUnavailable

	// ErrBatchTooLarge is returned when a batch exceeds the configured maximum.
	ErrBatchTooLarge = errors.New("batch too large")
)
