// Package testutil provides testing utilities for the tracking proxy.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock provider response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration

	// HangUp closes the connection without writing a response.
	HangUp bool
}

// MockProvider is a configurable mock tracking provider for testing.
// Responses are selected by the trackingRef query parameter.
type MockProvider struct {
	server    *httptest.Server
	mu        sync.Mutex
	responses map[string]MockResponse
	queued    map[string][]MockResponse
	fallback  MockResponse

	requestCount int
	perNumber    map[string]int
	lastQuery    url.Values
}

// NewMockProvider creates a new mock provider server. Unknown tracking
// numbers get a healthy in-transit payload.
func NewMockProvider() *MockProvider {
	mock := &MockProvider{
		responses: make(map[string]MockResponse),
		queued:    make(map[string][]MockResponse),
		perNumber: make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockProvider) Close() {
	m.server.Close()
}

// Reset clears all counters and configured responses.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[string]MockResponse)
	m.queued = make(map[string][]MockResponse)
	m.fallback = MockResponse{}
	m.requestCount = 0
	m.perNumber = make(map[string]int)
	m.lastQuery = nil
}

// SetResponse configures the response for a tracking number.
func (m *MockProvider) SetResponse(trackingNumber string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[trackingNumber] = resp
}

// SetDefault configures the response for tracking numbers without one.
func (m *MockProvider) SetDefault(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// Enqueue adds one-shot responses served before the configured one.
func (m *MockProvider) Enqueue(trackingNumber string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[trackingNumber] = append(m.queued[trackingNumber], resps...)
}

// RequestCount returns the total number of requests served.
func (m *MockProvider) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// RequestsFor returns the number of requests for one tracking number.
func (m *MockProvider) RequestsFor(trackingNumber string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perNumber[trackingNumber]
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockProvider) LastQuery() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

func (m *MockProvider) handle(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("trackingRef")

	m.mu.Lock()
	m.requestCount++
	m.perNumber[number]++
	m.lastQuery = r.URL.Query()

	var resp MockResponse
	if q := m.queued[number]; len(q) > 0 {
		resp = q[0]
		m.queued[number] = q[1:]
	} else if configured, ok := m.responses[number]; ok {
		resp = configured
	} else if m.fallback.StatusCode != 0 || m.fallback.HangUp {
		resp = m.fallback
	} else {
		resp = NewTrackingResponse(number, "IN_TRANSIT")
	}
	m.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if resp.HangUp {
		hj, ok := w.(http.Hijacker)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewTrackingResponse creates a 200 OK provider payload with one event.
func NewTrackingResponse(trackingNumber, status string) MockResponse {
	payload := map[string]any{
		"code":        200,
		"trackingRef": trackingNumber,
		"status":      status,
		"statusText":  "Shipment " + status,
		"description": "Parcel for " + trackingNumber,
		"origin":      "Shenzhen",
		"destination": "Los Angeles",
		"service":     "Express",
		"weight":      "2.5kg",
		"pieces":      1,
		"events": []map[string]any{
			{
				"time":        "2024-05-01 10:00:00",
				"location":    "Shenzhen",
				"description": "Shipment picked up",
				"status":      status,
			},
		},
	}
	return NewJSONResponse(http.StatusOK, payload)
}

// NewJSONResponse creates a response with v encoded as JSON.
func NewJSONResponse(status int, v any) MockResponse {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal response: %v", err))
	}
	return MockResponse{StatusCode: status, Body: string(body)}
}

// NewPayloadErrorResponse creates a 200 OK response whose code field reports a failure.
func NewPayloadErrorResponse(code int, message string) MockResponse {
	return NewJSONResponse(http.StatusOK, map[string]any{"code": code, "message": message})
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewHangUpResponse creates a response that drops the connection.
func NewHangUpResponse() MockResponse {
	return MockResponse{HangUp: true}
}
