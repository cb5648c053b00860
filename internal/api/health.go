package api

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 2 * time.Second

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}

// ready checks the store and, when configured, Redis.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	healthy := true

	if err := s.deps.Store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		healthy = false
	}
	if s.deps.Redis != nil {
		checks["redis"] = "ok"
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		s.logger.Warn().Interface("checks", checks).Msg("Readiness check failed")
		JSON(w, http.StatusServiceUnavailable, Response{
			Success:   false,
			Data:      checks,
			Error:     "not ready",
			Timestamp: time.Now().UTC(),
		})
		return
	}
	writeData(w, http.StatusOK, checks, "")
}
