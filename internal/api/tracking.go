package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/tracking-proxy/pkg/tracking"
)

type batchRequest struct {
	TrackingNumbers []string `json:"trackingNumbers" validate:"required_without=Input"`
	Input           string   `json:"input" validate:"required_without=TrackingNumbers"`
	Concurrency     int      `json:"concurrency" validate:"gte=0,lte=50"`
}

type batchResponse struct {
	Total     int                    `json:"total"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Results   []tracking.BatchResult `json:"results"`
}

func (s *Server) getTracking(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("trackingNumber")
	if strings.TrimSpace(number) == "" {
		writeError(w, http.StatusBadRequest, "trackingNumber is required")
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	result, err := s.deps.Tracker.Query(r.Context(), number, tracking.QueryOptions{ForceRefresh: refresh})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result, "")
}

func (s *Server) postBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	numbers := req.TrackingNumbers
	if len(numbers) == 0 {
		numbers = tracking.ParseBatchInput(req.Input)
	}

	results, err := s.deps.Tracker.QueryBatch(r.Context(), numbers, tracking.BatchOptions{Concurrency: req.Concurrency})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// a batch cut short by the deadline is not reported as a success
	if ctxErr := r.Context().Err(); ctxErr != nil {
		s.fail(w, r, fmt.Errorf("batch of %d aborted: %w", len(numbers), ctxErr))
		return
	}

	resp := batchResponse{Total: len(results), Results: results}
	for _, res := range results {
		if res.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	writeData(w, http.StatusOK, resp, "")
}

// fail writes err as an envelope, logging server side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Int("status_code", status).Msg("Request failed")
	}
	writeError(w, status, err.Error())
}
