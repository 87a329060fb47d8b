// ABOUTME: Liveness and readiness endpoints for the console server
// ABOUTME: Readiness pings the local store and asks the upstream API for its setup status

package server

import (
	"encoding/json"
	"net/http"
)

// readiness is the /health/ready body.
type readiness struct {
	Ready    bool   `json:"ready"`
	Store    string `json:"store"`
	Upstream string `json:"upstream"`
	Setup    *bool  `json:"setup_completed,omitempty"`
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 when the store answers and the upstream API, if
// configured, reports its setup status.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	res := readiness{Ready: true, Store: "ok", Upstream: "ok"}

	if err := s.store.Ping(r.Context()); err != nil {
		res.Ready = false
		res.Store = err.Error()
	}

	defaults := s.sessions.Defaults()
	if defaults.Base() == "" {
		res.Upstream = "not configured"
	} else if status, err := s.api.SetupStatus(r.Context(), defaults); err != nil {
		res.Ready = false
		res.Upstream = err.Error()
	} else {
		res.Setup = &status.Completed
	}

	code := http.StatusOK
	if !res.Ready {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(res)
}
