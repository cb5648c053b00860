package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the client.
var (
	// ErrInvalidInput is returned when a tracking number is empty or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout is returned when a single attempt exceeds its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrUpstream is returned when the provider answers with a non-2xx status
	// or reports a failure inside the payload.
	ErrUpstream = errors.New("upstream error")

	// ErrServiceUnavailable is returned when both the primary and the official
	// endpoint are unreachable.
	ErrServiceUnavailable = errors.New("tracking service unavailable")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of provider errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassPayload represents a failure reported in the response body.
	ErrorClassPayload ErrorClass = "payload"

	// ErrorClassTimeout represents an attempt that hit its deadline.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents transport-level failures (DNS, refused, reset).
	ErrorClassNetwork ErrorClass = "network"
)

// ProviderError represents a tracking provider error with additional context.
type ProviderError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(status int) ErrorClass {
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// classify returns the error class of any error produced by an attempt.
func classify(err error) ErrorClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.ErrorClass
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx and payload failures are deterministic, retrying cannot change the answer
		return false
	case ErrorClassPayload:
		return false
	case ErrorClassServer:
		return true
	case ErrorClassTimeout:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// IsNetworkError reports whether err was caused by the transport rather than
// by an HTTP status, a payload failure or a timeout.
func IsNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrContextCancelled) {
		return false
	}
	return classify(err) == ErrorClassNetwork
}
