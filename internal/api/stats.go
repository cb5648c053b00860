package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Sternrassler/tracking-proxy/pkg/store"
)

const (
	defaultChartLimit   = 30
	defaultQueriesLimit = 20
	maxListLimit        = 100
)

type statsRequest struct {
	Count int `json:"count" validate:"gte=0,lte=1000"`
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// anything but a chart request with a period falls back to the summary
	if q.Get("type") == "chart" && q.Get("period") != "" {
		period, err := store.ParsePeriod(q.Get("period"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		points, err := s.deps.Store.ChartData(r.Context(), period, limitParam(r, defaultChartLimit))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeData(w, http.StatusOK, points, "")
		return
	}

	summary, err := s.deps.Store.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summary, "")
}

func (s *Server) postStats(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	if err := s.deps.Store.RecordQuery(r.Context(), req.Count); err != nil {
		s.fail(w, r, err)
		return
	}
	summary, err := s.deps.Store.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summary, "stats recorded")
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Store.SiteConfig(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cfg, "")
}

func (s *Server) postConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	if len(patch) == 0 {
		writeError(w, http.StatusBadRequest, "no config fields given")
		return
	}

	merged, err := s.deps.Store.MergeSiteConfig(r.Context(), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info().Int("fields", len(patch)).Msg("Site config updated")
	writeData(w, http.StatusOK, merged, "config updated")
}

func (s *Server) recentQueries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Store.RecentQueries(r.Context(), limitParam(r, defaultQueriesLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, entries, "")
}

// limitParam reads ?limit=, clamped to [1, maxListLimit].
func limitParam(r *http.Request, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		return fallback
	}
	return min(n, maxListLimit)
}
