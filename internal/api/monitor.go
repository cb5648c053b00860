package api

import (
	"encoding/json"
	"net/http"
)

type monitorRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

func (s *Server) getMonitor(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("endpoint"); name != "" {
		s.checkEndpoint(w, r, name)
		return
	}

	if s.deps.Scheduler != nil {
		if report := s.deps.Scheduler.Last(); report != nil {
			writeData(w, http.StatusOK, report, "")
			return
		}
	}
	writeData(w, http.StatusOK, s.deps.Monitor.CheckAll(r.Context()), "")
}

func (s *Server) postMonitor(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	s.checkEndpoint(w, r, req.Endpoint)
}

func (s *Server) checkEndpoint(w http.ResponseWriter, r *http.Request, name string) {
	ep, err := s.deps.Monitor.Find(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s.deps.Monitor.Check(r.Context(), ep), "")
}
