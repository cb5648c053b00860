// Package client provides the HTTP client for the upstream tracking provider
// with per-attempt timeouts, retry with backoff, and fallback to the
// official tracking endpoint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for provider client operations.
var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_provider_requests_total",
		Help: "Total provider requests by endpoint and status",
	}, []string{"endpoint", "status"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracking_provider_request_duration_seconds",
		Help:    "Provider request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	providerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_provider_errors_total",
		Help: "Total provider errors by class",
	}, []string{"class"})

	providerFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_provider_fallbacks_total",
		Help: "Fallback requests to the official endpoint by outcome",
	}, []string{"outcome"})
)

const (
	endpointPrimary  = "primary"
	endpointOfficial = "official"

	// maxBodyBytes bounds how much of a provider response is read.
	maxBodyBytes = 4 << 20
)

// Client fetches raw tracking payloads from the provider.
type Client struct {
	httpClient *http.Client
	config     Config
	sleep      SleepFunc
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the primary tracking endpoint. The tracking number is sent
	// as the trackingRef query parameter.
	BaseURL string

	// OfficialURL is queried once when the primary endpoint is unreachable.
	// Empty disables the fallback.
	OfficialURL string

	// Host is sent as the host parameter to the official endpoint.
	Host string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	Retry RetryConfig
}

// DefaultConfig returns a default configuration for the given primary endpoint.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		OfficialURL: "http://cbel.pgs-log.com/edi/pubTracking",
		Host:        "cbel.pgs-log.com",
		UserAgent:   "tracking-proxy/1.0",
		Timeout:     30 * time.Second,
		Retry:       DefaultRetryConfig(),
	}
}

// New creates a new provider client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.OfficialURL != "" {
		if _, err := url.Parse(cfg.OfficialURL); err != nil {
			return nil, fmt.Errorf("parse official url: %w", err)
		}
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %v)", cfg.Timeout)
	}
	if err := cfg.Retry.validate(); err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{},
		config:     cfg,
		sleep:      contextSleep,
		logger:     log.With().Str("component", "provider-client").Logger(),
	}, nil
}

// SetHTTPClient replaces the underlying HTTP client (for testing).
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// SetSleepFunc replaces the wait used between retries (for testing).
func (c *Client) SetSleepFunc(sleep SleepFunc) {
	c.sleep = sleep
}

// Fetch returns the raw JSON payload for a tracking number.
//
// Each attempt is bounded by timeout (the configured Timeout when zero).
// Failed attempts are retried per the retry configuration. When the final
// error is a transport failure, the official endpoint is queried once; if
// that fails too, ErrServiceUnavailable is returned.
func (c *Client) Fetch(ctx context.Context, trackingNumber string, timeout time.Duration) (json.RawMessage, error) {
	if strings.TrimSpace(trackingNumber) == "" {
		return nil, fmt.Errorf("%w: tracking number is empty", ErrInvalidInput)
	}
	if timeout <= 0 {
		timeout = c.config.Timeout
	}

	var body json.RawMessage
	err := retryWithBackoff(ctx, c.config.Retry, c.sleep, c.logger, func(attempt int) error {
		b, err := c.do(ctx, endpointPrimary, c.primaryURL(trackingNumber), timeout)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err == nil {
		return body, nil
	}

	if !IsNetworkError(err) || c.config.OfficialURL == "" {
		return nil, err
	}

	c.logger.Warn().
		Err(err).
		Str("tracking_number", trackingNumber).
		Msg("Primary endpoint unreachable, falling back to official endpoint")

	body, fallbackErr := c.do(ctx, endpointOfficial, c.officialURL(trackingNumber), timeout)
	if fallbackErr != nil {
		providerFallbacksTotal.WithLabelValues("failure").Inc()
		c.logger.Error().
			Err(fallbackErr).
			Str("tracking_number", trackingNumber).
			Msg("Official endpoint failed")
		return nil, fmt.Errorf("%w: primary: %v; official: %v", ErrServiceUnavailable, err, fallbackErr)
	}

	providerFallbacksTotal.WithLabelValues("success").Inc()
	return body, nil
}

// do performs a single attempt against target.
func (c *Client) do(ctx context.Context, endpoint, target string, timeout time.Duration) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()
	defer func() {
		providerRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, endpoint, timeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, endpoint, timeout, fmt.Errorf("read response: %w", err))
	}

	providerRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		providerErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("status_code", resp.StatusCode).
			Msg("Provider returned error status")
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			Err:        ErrUpstream,
		}
	}

	if err := checkPayload(body); err != nil {
		providerErrorsTotal.WithLabelValues(string(ErrorClassPayload)).Inc()
		err.StatusCode = resp.StatusCode
		return nil, err
	}

	return json.RawMessage(body), nil
}

func (c *Client) transportError(ctx, attemptCtx context.Context, endpoint string, timeout time.Duration, err error) error {
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		providerRequestsTotal.WithLabelValues(endpoint, "timeout").Inc()
		providerErrorsTotal.WithLabelValues(string(ErrorClassTimeout)).Inc()
		return &ProviderError{
			ErrorClass: ErrorClassTimeout,
			Message:    fmt.Sprintf("no response within %v", timeout),
			Err:        ErrTimeout,
		}
	}
	providerRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
	providerErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
	return fmt.Errorf("%s request: %w", endpoint, err)
}

// checkPayload rejects bodies that are not JSON, are null, or carry a
// non-success code field.
func checkPayload(body []byte) *ProviderError {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return &ProviderError{ErrorClass: ErrorClassPayload, Message: "invalid JSON response", Err: ErrUpstream}
	}
	if payload == nil {
		return &ProviderError{ErrorClass: ErrorClassPayload, Message: "empty response", Err: ErrUpstream}
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	code, present := obj["code"]
	if !present || isSuccessCode(code) {
		return nil
	}

	msg := "query failed"
	for _, field := range []string{"message", "error"} {
		if s, ok := obj[field].(string); ok && s != "" {
			msg = s
			break
		}
	}
	return &ProviderError{ErrorClass: ErrorClassPayload, Message: msg, Err: ErrUpstream}
}

func isSuccessCode(code any) bool {
	switch v := code.(type) {
	case nil:
		return true
	case bool:
		return !v
	case float64:
		return v == 0 || v == 200
	case string:
		return v == "" || v == "200"
	default:
		return false
	}
}

func (c *Client) primaryURL(trackingNumber string) string {
	u, _ := url.Parse(c.config.BaseURL)
	q := u.Query()
	q.Set("trackingRef", trackingNumber)
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) officialURL(trackingNumber string) string {
	u, _ := url.Parse(c.config.OfficialURL)
	q := u.Query()
	q.Set("trackingRef", trackingNumber)
	q.Set("host", c.config.Host)
	q.Set("noSubTracking", "false")
	q.Set("url", "/public-tracking")
	u.RawQuery = q.Encode()
	return u.String()
}
