// Copyright 2025 sigaid authors

package authorityserver

import (
	"net/http"
	"time"

	"github.com/sigaid/core/registry"
)

// healthResponse mirrors the teacher's HealthStatus shape (main.go),
// trimmed to the one store this Authority actually owns: the KV store
// shared by registry, lease and statechain.
type healthResponse struct {
	Status        string `json:"status"` // "ok" | "degraded"
	Store         string `json:"store"`  // "connected" | "disconnected"
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "only GET is allowed")
		return
	}

	store := "connected"
	status := "ok"
	// A cheap liveness probe against the shared KV store: a registry
	// lookup of a sentinel agent_id that is never expected to exist.
	// ErrNotFound means the store answered; any other error means the
	// store itself is unreachable.
	if _, err := s.registry.Get("__healthz_probe__"); err != nil && err != registry.ErrNotFound {
		store = "disconnected"
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        status,
		Store:         store,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}
