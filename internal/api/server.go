// Package api exposes the tracking proxy over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/tracking-proxy/pkg/logging"
	"github.com/Sternrassler/tracking-proxy/pkg/metrics"
	"github.com/Sternrassler/tracking-proxy/pkg/monitor"
	"github.com/Sternrassler/tracking-proxy/pkg/ratelimit"
	"github.com/Sternrassler/tracking-proxy/pkg/store"
	"github.com/Sternrassler/tracking-proxy/pkg/tracking"
)

// Tracker resolves tracking numbers. *tracking.Executor implements it.
type Tracker interface {
	Query(ctx context.Context, trackingNumber string, opts tracking.QueryOptions) (*tracking.TrackingResult, error)
	QueryBatch(ctx context.Context, numbers []string, opts tracking.BatchOptions) ([]tracking.BatchResult, error)
}

// Deps holds the collaborators of the HTTP layer.
type Deps struct {
	Tracker   Tracker
	Store     *store.Store
	Monitor   *monitor.Monitor
	Scheduler *monitor.Scheduler // optional, serves cached reports

	// Redis is pinged by /ready when set.
	Redis *redis.Client

	// Limiter guards the tracking routes when set.
	Limiter *ratelimit.Limiter

	AllowedOrigins []string
	AdminPassword  string

	// TrustProxy takes the client IP from X-Forwarded-For and X-Real-IP.
	// Only set it when every request passes a proxy that overwrites them.
	TrustProxy bool

	// RequestTimeout bounds tracking and batch requests. Zero disables it.
	RequestTimeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	deps     Deps
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	return &Server{
		deps:     deps,
		validate: validator.New(),
		logger:   logging.NewLogger("api"),
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.deps.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Password", "X-Request-Id"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Route("/tracking", func(t chi.Router) {
			if s.deps.Limiter != nil {
				t.Use(s.deps.Limiter.Middleware(ratelimit.ClientIP))
			}
			t.Use(requestInfo)
			if s.deps.RequestTimeout > 0 {
				t.Use(requestDeadline(s.deps.RequestTimeout))
			}
			t.Get("/", s.getTracking)
			t.Post("/batch", s.postBatch)
		})

		api.Get("/stats", s.getStats)
		api.Post("/stats", s.postStats)

		api.Get("/config", s.getConfig)
		api.With(adminOnly(s.deps.AdminPassword)).Post("/config", s.postConfig)

		api.Get("/monitor", s.getMonitor)
		api.Post("/monitor", s.postMonitor)

		api.Get("/queries/recent", s.recentQueries)
	})

	return r
}
