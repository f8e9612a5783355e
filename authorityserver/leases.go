// Copyright 2025 sigaid authors

package authorityserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/sigaid/core/lease"
	"github.com/sigaid/core/wire"
)

// handleLeasesCollection serves POST /v1/leases.
func (s *Server) handleLeasesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "only POST is allowed")
		return
	}

	var req wire.AcquireRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	resp, err := s.leases.Acquire(req, s.now())
	if err != nil {
		s.writeAcquireError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeAcquireError(w http.ResponseWriter, err error) {
	var held *lease.ErrLeaseHeld
	switch {
	case asLeaseHeld(err, &held):
		s.writeJSON(w, http.StatusConflict, wire.LeaseHeldResponse{
			Error:           "lease_held",
			HolderSessionID: held.HolderSessionID,
			ExpiresAt:       held.ExpiresAt.UTC().Format(time.RFC3339),
		})
	case err == lease.ErrUnknownAgent:
		s.writeError(w, http.StatusNotFound, "unknown agent_id")
	case err == lease.ErrInvalidSignature, err == lease.ErrClockSkew, err == lease.ErrNonceReplay:
		s.writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.logger.Printf("acquire: %v", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func asLeaseHeld(err error, out **lease.ErrLeaseHeld) bool {
	held, ok := err.(*lease.ErrLeaseHeld)
	if ok {
		*out = held
	}
	return ok
}

// handleLeaseByAgent serves PUT/DELETE/GET /v1/leases/{agent_id}.
func (s *Server) handleLeaseByAgent(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/leases/"), "/")
	if agentID == "" {
		s.writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.handleRenew(w, r, agentID)
	case http.MethodDelete:
		s.handleRelease(w, r, agentID)
	case http.MethodGet:
		s.handleLeaseStatus(w, r, agentID)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "only PUT, DELETE and GET are allowed")
	}
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request, agentID string) {
	var req wire.RenewRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	resp, err := s.leases.Renew(agentID, req, s.now())
	if err != nil {
		switch err {
		case lease.ErrSessionMismatch:
			s.writeError(w, http.StatusForbidden, "session mismatch")
		case lease.ErrLeaseExpired:
			s.writeError(w, http.StatusGone, "lease expired")
		default:
			s.logger.Printf("renew %s: %v", agentID, err)
			s.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request, agentID string) {
	var req wire.ReleaseRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.leases.Release(agentID, req); err != nil {
		s.logger.Printf("release %s: %v", agentID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to release lease")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeaseStatus(w http.ResponseWriter, r *http.Request, agentID string) {
	resp, err := s.leases.Status(agentID, s.now())
	if err != nil {
		s.logger.Printf("status %s: %v", agentID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to load lease status")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}
