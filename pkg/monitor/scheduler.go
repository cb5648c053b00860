package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/tracking-proxy/pkg/logging"
)

// Scheduler runs CheckAll on a cron schedule and keeps the latest report.
type Scheduler struct {
	monitor *Monitor
	cron    *cron.Cron
	last    atomic.Pointer[Report]
	logger  zerolog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewScheduler creates a scheduler for schedule, which accepts standard
// five-field cron expressions and descriptors such as "@every 5m".
func NewScheduler(m *Monitor, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		monitor: m,
		cron:    cron.New(),
		logger:  logging.NewLogger("monitor-scheduler"),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start starts the schedule and runs one check immediately. It does nothing
// once Stop has been called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.Debug().Msg("Endpoint monitor already stopped, not starting")
		return
	}
	s.cron.Start()
	s.mu.Unlock()

	s.logger.Info().Int("endpoints", len(s.monitor.endpoints)).Msg("Starting endpoint monitor")
	s.store(s.monitor.CheckAll(ctx))
}

// Stop stops the schedule and waits for a running scheduled check, or until
// ctx is done. A later Start is a no-op.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	s.stopped = true
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info().Msg("Endpoint monitor stopped")
	case <-ctx.Done():
		s.logger.Warn().Msg("Endpoint monitor stop timed out")
	}
}

// Last returns the most recent report, or nil before the first check.
func (s *Scheduler) Last() *Report {
	return s.last.Load()
}

func (s *Scheduler) run() {
	s.store(s.monitor.CheckAll(context.Background()))
}

func (s *Scheduler) store(r Report) {
	s.last.Store(&r)
	if r.Summary.Healthy < r.Summary.Total {
		s.logger.Warn().
			Int("healthy", r.Summary.Healthy).
			Int("total", r.Summary.Total).
			Msg("Some tracking endpoints are not healthy")
		return
	}
	s.logger.Info().
		Int("total", r.Summary.Total).
		Int64("avg_response_ms", r.Summary.AverageResponseTime).
		Msg("All tracking endpoints healthy")
}
