package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/tracking-proxy/pkg/monitor"
	"github.com/Sternrassler/tracking-proxy/pkg/ratelimit"
	"github.com/Sternrassler/tracking-proxy/pkg/store"
	"github.com/Sternrassler/tracking-proxy/pkg/tracking"
)

// stubFetcher returns a fixed in-transit payload, or err when set.
type stubFetcher struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, number string, timeout time.Duration) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(fmt.Sprintf(`{"code":200,"status":"IN_TRANSIT","statusText":"In transit","trackingRef":%q}`, number)), nil
}

// errTracker fails every call with err.
type errTracker struct{ err error }

func (t errTracker) Query(ctx context.Context, number string, opts tracking.QueryOptions) (*tracking.TrackingResult, error) {
	return nil, t.err
}

func (t errTracker) QueryBatch(ctx context.Context, numbers []string, opts tracking.BatchOptions) ([]tracking.BatchResult, error) {
	return nil, t.err
}

// blockingTracker waits for the request context to end, then reports every
// member as failed the way the executor does for undispatched chunks.
type blockingTracker struct{}

func (blockingTracker) Query(ctx context.Context, number string, opts tracking.QueryOptions) (*tracking.TrackingResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingTracker) QueryBatch(ctx context.Context, numbers []string, opts tracking.BatchOptions) ([]tracking.BatchResult, error) {
	<-ctx.Done()
	results := make([]tracking.BatchResult, len(numbers))
	for i, n := range numbers {
		results[i] = tracking.BatchResult{Index: i, TrackingNumber: n, Error: ctx.Err().Error()}
	}
	return results, nil
}

type testEnv struct {
	server  *Server
	handler http.Handler
	store   *store.Store
	fetcher *stubFetcher
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fetcher := &stubFetcher{}
	cfg := tracking.DefaultConfig()
	cfg.Stats = st
	cfg.Queries = st
	exec, err := tracking.New(cfg, fetcher)
	require.NoError(t, err)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"data":[1]}`))
	}))
	t.Cleanup(upstream.Close)

	mon, err := monitor.New([]monitor.Endpoint{
		{Name: "primary", URL: upstream.URL, Method: http.MethodPost, TestData: map[string]any{"trackingNumber": "ABC123"}},
	})
	require.NoError(t, err)

	deps := Deps{
		Tracker: exec,
		Store:   st,
		Monitor: mon,
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv := NewServer(deps)
	return &testEnv{server: srv, handler: srv.Router(), store: st, fetcher: fetcher}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, headers ...string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

// dataAs re-decodes the envelope data into v.
func dataAs(t *testing.T, resp Response, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestReady(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := newTestEnv(t, func(d *Deps) { d.Redis = client })

	rec, resp := env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	mr.Close()
	rec, resp = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)

	var checks map[string]string
	dataAs(t, resp, &checks)
	assert.Equal(t, "ok", checks["store"])
	assert.NotEqual(t, "ok", checks["redis"])
}

func TestGetTracking(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/tracking?trackingNumber=JobNum:%20ABC123", nil, "User-Agent", "api-test")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)

	var result tracking.TrackingResult
	dataAs(t, resp, &result)
	assert.Equal(t, "ABC123", result.TrackingNumber)
	assert.Equal(t, "IN_TRANSIT", result.Status.Code)

	// cached on the second call, forced on the third
	env.do(t, http.MethodGet, "/api/tracking?trackingNumber=ABC123", nil)
	env.do(t, http.MethodGet, "/api/tracking?trackingNumber=ABC123&refresh=true", nil)
	assert.Equal(t, 2, env.fetcher.calls)

	entries, err := env.store.RecentQueries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "api-test", entries[1].UserAgent)
	assert.NotEmpty(t, entries[1].RequestID)
	assert.NotEmpty(t, entries[1].IPAddress)
}

func TestGetTracking_MissingNumber(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/tracking", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "trackingNumber")
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("%w: bad", tracking.ErrInvalidInput), http.StatusBadRequest},
		{"batch too large", tracking.ErrBatchTooLarge, http.StatusBadRequest},
		{"timeout", fmt.Errorf("retry: %w", tracking.ErrTimeout), http.StatusGatewayTimeout},
		{"upstream", tracking.ErrUpstream, http.StatusBadGateway},
		{"unavailable", fmt.Errorf("%w: primary down", tracking.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *Deps) { d.Tracker = errTracker{err: tt.err} })

			rec, resp := env.do(t, http.MethodGet, "/api/tracking?trackingNumber=ABC123", nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestStatusFor_StoreAndMonitorErrors(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("%w: hourly", store.ErrInvalidPeriod)))
	assert.Equal(t, http.StatusNotFound, statusFor(monitor.ErrUnknownEndpoint))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
}

func TestPostBatch(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/tracking/batch", map[string]any{
		"trackingNumbers": []string{"ABC123", "BAD#1", "DEF456"},
		"concurrency":     2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body batchResponse
	dataAs(t, resp, &body)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 2, body.Succeeded)
	assert.Equal(t, 1, body.Failed)
	require.Len(t, body.Results, 3)
	assert.Equal(t, "ABC123", body.Results[0].TrackingNumber)
	assert.False(t, body.Results[1].Success)
	assert.Equal(t, "DEF456", body.Results[2].TrackingNumber)
}

func TestPostBatch_FreeTextInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"labels and duplicates", "JobNum: ABC123\nDEF456, ABC123", []string{"ABC123", "DEF456"}},
		{"full width comma", "ABC123，DEF456", []string{"ABC123", "DEF456"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec, resp := env.do(t, http.MethodPost, "/api/tracking/batch", map[string]any{
				"input": tt.input,
			})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var body batchResponse
			dataAs(t, resp, &body)
			require.Equal(t, len(tt.want), body.Total)
			for i, number := range tt.want {
				assert.Equal(t, number, body.Results[i].TrackingNumber)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   any
	}{
		{"single query", http.MethodGet, "/api/tracking?trackingNumber=ABC123", nil},
		{"batch", http.MethodPost, "/api/tracking/batch", map[string]any{"trackingNumbers": []string{"ABC123", "DEF456"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *Deps) {
				d.Tracker = blockingTracker{}
				d.RequestTimeout = 20 * time.Millisecond
			})

			rec, resp := env.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusGatewayTimeout, rec.Code, rec.Body.String())
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, "deadline exceeded")
		})
	}
}

func TestPostBatch_Rejected(t *testing.T) {
	tooMany := make([]string, 51)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("TRK%04d", i)
	}

	tests := []struct {
		name string
		body any
	}{
		{"invalid json", "{"},
		{"empty request", map[string]any{}},
		{"only invalid input", map[string]any{"input": "a, b"}},
		{"too many", map[string]any{"trackingNumbers": tooMany}},
		{"concurrency too high", map[string]any{"trackingNumbers": []string{"ABC123"}, "concurrency": 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec, resp := env.do(t, http.MethodPost, "/api/tracking/batch", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.False(t, resp.Success)
			assert.Equal(t, 0, env.fetcher.calls)
		})
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/stats", map[string]int{"count": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "stats recorded", resp.Message)

	rec, _ = env.do(t, http.MethodPost, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp = env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary store.Summary
	dataAs(t, resp, &summary)
	assert.Equal(t, int64(4), summary.Today)
	assert.Equal(t, int64(4), summary.Total)

	rec, resp = env.do(t, http.MethodGet, "/api/stats?type=chart&period=daily&limit=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var points []store.ChartPoint
	dataAs(t, resp, &points)
	require.Len(t, points, 1)
	assert.Equal(t, int64(4), points[0].Count)

	rec, _ = env.do(t, http.MethodGet, "/api/stats?type=chart&period=hourly", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/stats", map[string]int{"count": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfig(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.AdminPassword = "s3cret" })

	rec, resp := env.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg map[string]json.RawMessage
	dataAs(t, resp, &cfg)
	assert.Contains(t, cfg, "title")

	patch := map[string]any{"contact": map[string]string{"email": "ops@example.com"}}

	rec, _ = env.do(t, http.MethodPost, "/api/config", patch)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/config", patch, "X-Admin-Password", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp = env.do(t, http.MethodPost, "/api/config", patch, "X-Admin-Password", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dataAs(t, resp, &cfg)
	assert.Contains(t, cfg, "title", "existing keys survive the merge")
	assert.JSONEq(t, `{"email":"ops@example.com"}`, string(cfg["contact"]))

	rec, _ = env.do(t, http.MethodPost, "/api/config", map[string]any{}, "X-Admin-Password", "s3cret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfig_OpenWithoutPassword(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/config", map[string]any{"title": "Tracking"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMonitor(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/monitor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report monitor.Report
	dataAs(t, resp, &report)
	assert.Equal(t, 1, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Healthy)

	rec, resp = env.do(t, http.MethodGet, "/api/monitor?endpoint=primary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status monitor.EndpointStatus
	dataAs(t, resp, &status)
	assert.Equal(t, monitor.StatusHealthy, status.Status)

	rec, _ = env.do(t, http.MethodPost, "/api/monitor", map[string]string{"endpoint": "primary"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/monitor?endpoint=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/monitor", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentQueries(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/tracking?trackingNumber=ABC123", nil)
	env.do(t, http.MethodGet, "/api/tracking?trackingNumber=DEF456", nil)

	rec, resp := env.do(t, http.MethodGet, "/api/queries/recent?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []store.QueryLog
	dataAs(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "DEF456", entries[0].TrackingNumber)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter, err := ratelimit.NewLimiter(client, 2, time.Hour, zerolog.Nop())
	require.NoError(t, err)

	env := newTestEnv(t, func(d *Deps) { d.Limiter = limiter })

	for i := 0; i < 2; i++ {
		rec, _ := env.do(t, http.MethodGet, "/api/tracking?trackingNumber=ABC123", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, _ := env.do(t, http.MethodGet, "/api/tracking?trackingNumber=ABC123", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other routes are not limited
	rec, _ = env.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_ForwardedHeaders(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		wantOK     int
	}{
		{"untrusted headers share one bucket", false, 2},
		{"trusted proxy keys by forwarded ip", true, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })

			limiter, err := ratelimit.NewLimiter(client, 2, time.Hour, zerolog.Nop())
			require.NoError(t, err)

			env := newTestEnv(t, func(d *Deps) {
				d.Limiter = limiter
				d.TrustProxy = tt.trustProxy
			})

			ok := 0
			for i := 0; i < 5; i++ {
				rec, _ := env.do(t, http.MethodGet, "/api/tracking?trackingNumber=ABC123", nil,
					"X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
				if rec.Code == http.StatusOK {
					ok++
				}
			}
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.AllowedOrigins = []string{"https://app.example"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/tracking/batch", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
