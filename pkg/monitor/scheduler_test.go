package monitor

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	m, err := New([]Endpoint{{Name: "primary", URL: "http://x"}})
	require.NoError(t, err)

	_, err = NewScheduler(m, "not a schedule")
	assert.ErrorContains(t, err, "invalid monitor schedule")
}

func TestScheduler_StartStoresReport(t *testing.T) {
	srv := newUpstream(t)
	m, err := New([]Endpoint{
		{Name: "ok", URL: srv.URL + "/ok", Method: http.MethodPost},
		{Name: "down", URL: srv.URL + "/down"},
	})
	require.NoError(t, err)

	s, err := NewScheduler(m, "@every 1h")
	require.NoError(t, err)
	assert.Nil(t, s.Last())

	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	defer s.Stop(ctx)

	report := s.Last()
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Healthy)
	assert.Equal(t, 1, report.Summary.Unhealthy)
}

func TestScheduler_StartAfterStop(t *testing.T) {
	srv := newUpstream(t)
	m, err := New([]Endpoint{{Name: "ok", URL: srv.URL + "/ok", Method: http.MethodPost}})
	require.NoError(t, err)

	s, err := NewScheduler(m, "@every 1s")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Start(context.Background())

	assert.Nil(t, s.Last())
	assert.True(t, s.cron.Entries()[0].Next.IsZero(), "schedule started after Stop")
}
