package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/tracking-proxy/pkg/monitor"
	"github.com/Sternrassler/tracking-proxy/pkg/store"
	"github.com/Sternrassler/tracking-proxy/pkg/tracking"
)

// Response is the envelope of every API response.
type Response struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	JSON(w, status, Response{
		Success:   true,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Response{
		Success:   false,
		Error:     msg,
		Timestamp: time.Now().UTC(),
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tracking.ErrInvalidInput),
		errors.Is(err, tracking.ErrBatchTooLarge),
		errors.Is(err, store.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, monitor.ErrUnknownEndpoint):
		return http.StatusNotFound
	case errors.Is(err, tracking.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, tracking.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, tracking.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
