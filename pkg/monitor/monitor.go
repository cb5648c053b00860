// Package monitor checks the health of the upstream tracking endpoints.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/tracking-proxy/pkg/logging"
)

// ErrUnknownEndpoint is returned by Find for names that are not configured.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Endpoint health states.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusError     = "error"
)

var (
	endpointUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracking_monitor_endpoint_up",
		Help: "1 if the last check of the endpoint was healthy, 0 otherwise",
	}, []string{"endpoint"})

	endpointResponseSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracking_monitor_response_seconds",
		Help: "Response time of the last check of the endpoint",
	}, []string{"endpoint"})
)

// Endpoint is a monitored upstream endpoint.
type Endpoint struct {
	Name     string         `json:"name"`
	URL      string         `json:"url"`
	Method   string         `json:"method"`
	TestData map[string]any `json:"testData,omitempty"`
	Timeout  time.Duration  `json:"-"`
}

// Details carries the raw response facts of a check.
type Details struct {
	OK         bool   `json:"ok"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	HasData    bool   `json:"hasData"`
}

// EndpointStatus is the outcome of one check.
type EndpointStatus struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Status       string    `json:"status"`
	StatusCode   int       `json:"statusCode"`
	ResponseTime int64     `json:"responseTime"` // milliseconds
	LastChecked  time.Time `json:"lastChecked"`
	Error        string    `json:"error,omitempty"`
	Details      Details   `json:"details"`
}

// Summary aggregates a report.
type Summary struct {
	Total               int       `json:"total"`
	Healthy             int       `json:"healthy"`
	Unhealthy           int       `json:"unhealthy"`
	Error               int       `json:"error"`
	AverageResponseTime int64     `json:"averageResponseTime"`
	LastChecked         time.Time `json:"lastChecked"`
}

// Report is the result of checking every endpoint.
type Report struct {
	Summary   Summary          `json:"summary"`
	Endpoints []EndpointStatus `json:"endpoints"`
}

// DefaultEndpoints returns the provider query endpoints, one per tracking
// number style.
func DefaultEndpoints() []Endpoint {
	return []Endpoint{
		{
			Name:     "numeric-tracking-query",
			URL:      "https://cbel.pgs-log.com/api/tracking/query",
			Method:   http.MethodPost,
			TestData: map[string]any{"trackingNumber": "2025515460"},
			Timeout:  10 * time.Second,
		},
		{
			Name:     "alphanumeric-tracking-query",
			URL:      "https://cbel.pgs-log.com/api/tracking/query",
			Method:   http.MethodPost,
			TestData: map[string]any{"trackingNumber": "CBSZSEUS25032380"},
			Timeout:  10 * time.Second,
		},
	}
}

// Monitor checks a fixed set of endpoints.
type Monitor struct {
	endpoints  []Endpoint
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a monitor for endpoints.
func New(endpoints []Endpoint) (*Monitor, error) {
	endpoints = append([]Endpoint(nil), endpoints...)
	seen := make(map[string]struct{}, len(endpoints))
	for i, ep := range endpoints {
		if ep.Name == "" || ep.URL == "" {
			return nil, fmt.Errorf("endpoint %d: name and url are required", i)
		}
		if _, dup := seen[ep.Name]; dup {
			return nil, fmt.Errorf("duplicate endpoint name %q", ep.Name)
		}
		seen[ep.Name] = struct{}{}
		if endpoints[i].Method == "" {
			endpoints[i].Method = http.MethodGet
		}
		if endpoints[i].Timeout <= 0 {
			endpoints[i].Timeout = 10 * time.Second
		}
	}

	return &Monitor{
		endpoints:  endpoints,
		httpClient: &http.Client{},
		logger:     logging.NewLogger("monitor"),
	}, nil
}

// SetHTTPClient replaces the underlying HTTP client (for testing).
func (m *Monitor) SetHTTPClient(c *http.Client) {
	m.httpClient = c
}

// Endpoints returns the configured endpoints.
func (m *Monitor) Endpoints() []Endpoint {
	return append([]Endpoint(nil), m.endpoints...)
}

// Find returns the endpoint with the given name.
func (m *Monitor) Find(name string) (Endpoint, error) {
	for _, ep := range m.endpoints {
		if ep.Name == name {
			return ep, nil
		}
	}
	return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
}

// Check probes a single endpoint. Failures are reported in the returned
// status, never as an error.
func (m *Monitor) Check(ctx context.Context, ep Endpoint) EndpointStatus {
	start := time.Now()
	status := m.probe(ctx, ep)
	elapsed := time.Since(start)

	status.Name = ep.Name
	status.URL = ep.URL
	status.ResponseTime = elapsed.Milliseconds()
	status.LastChecked = time.Now().UTC()

	up := 0.0
	if status.Status == StatusHealthy {
		up = 1
	}
	endpointUp.WithLabelValues(ep.Name).Set(up)
	endpointResponseSeconds.WithLabelValues(ep.Name).Set(elapsed.Seconds())

	m.logger.Debug().
		Str("endpoint", ep.Name).
		Str("status", status.Status).
		Int("status_code", status.StatusCode).
		Dur("duration", elapsed).
		Msg("Endpoint checked")

	return status
}

func (m *Monitor) probe(ctx context.Context, ep Endpoint) EndpointStatus {
	ctx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	var body io.Reader
	if ep.TestData != nil {
		payload, err := json.Marshal(ep.TestData)
		if err != nil {
			return errorStatus(fmt.Errorf("encode test data: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, ep.URL, body)
	if err != nil {
		return errorStatus(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return errorStatus(err)
	}
	defer resp.Body.Close()

	var data any
	hasData := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&data) == nil && data != nil

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	state := StatusHealthy
	if !ok {
		state = StatusUnhealthy
	}

	return EndpointStatus{
		Status:     state,
		StatusCode: resp.StatusCode,
		Details: Details{
			OK:         ok,
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			HasData:    hasData,
		},
	}
}

func errorStatus(err error) EndpointStatus {
	return EndpointStatus{
		Status: StatusError,
		Error:  err.Error(),
		Details: Details{
			StatusText: "Network Error",
		},
	}
}

// CheckAll probes every endpoint concurrently.
func (m *Monitor) CheckAll(ctx context.Context) Report {
	statuses := make([]EndpointStatus, len(m.endpoints))

	var g errgroup.Group
	for i, ep := range m.endpoints {
		g.Go(func() error {
			statuses[i] = m.Check(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Summary:   summarize(statuses),
		Endpoints: statuses,
	}

	m.logger.Info().
		Int("total", report.Summary.Total).
		Int("healthy", report.Summary.Healthy).
		Int("unhealthy", report.Summary.Unhealthy).
		Int("error", report.Summary.Error).
		Msg("Endpoint check complete")

	return report
}

func summarize(statuses []EndpointStatus) Summary {
	s := Summary{Total: len(statuses), LastChecked: time.Now().UTC()}

	var totalMS int64
	for _, st := range statuses {
		switch st.Status {
		case StatusHealthy:
			s.Healthy++
		case StatusUnhealthy:
			s.Unhealthy++
		default:
			s.Error++
		}
		totalMS += st.ResponseTime
	}
	if s.Total > 0 {
		// rounded to the nearest millisecond
		s.AverageResponseTime = (totalMS + int64(s.Total)/2) / int64(s.Total)
	}
	return s
}
