// Copyright 2025 sigaid authors

package authorityserver

import (
	"crypto/ed25519"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/sigaid/core/registry"
	"github.com/sigaid/core/wire"
)

// handleAgentsCollection serves POST /v1/agents.
func (s *Server) handleAgentsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "only POST is allowed")
		return
	}

	var req wire.AgentRegisterRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.AgentID == "" {
		s.writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	pub, err := base64.StdEncoding.DecodeString(req.PublicKeyBase64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		s.writeError(w, http.StatusBadRequest, "public_key_base64 must decode to a 32-byte Ed25519 key")
		return
	}

	rec, err := s.registry.Register(req.AgentID, ed25519.PublicKey(pub), req.Metadata)
	if err != nil {
		if err == registry.ErrAlreadyRegistered {
			s.writeError(w, http.StatusConflict, "agent already registered")
			return
		}
		s.logger.Printf("register %s: %v", req.AgentID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to register agent")
		return
	}

	s.writeJSON(w, http.StatusCreated, toAgentResponse(rec))
}

// handleAgentByID serves GET /v1/agents/{agent_id}.
func (s *Server) handleAgentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "only GET is allowed")
		return
	}

	agentID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/agents/"), "/")
	if agentID == "" {
		s.writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	rec, err := s.registry.Get(agentID)
	if err != nil {
		if err == registry.ErrNotFound {
			s.writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		s.logger.Printf("get %s: %v", agentID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to load agent")
		return
	}

	s.writeJSON(w, http.StatusOK, toAgentResponse(rec))
}

func toAgentResponse(rec registry.Record) wire.AgentResponse {
	return wire.AgentResponse{
		AgentID:         rec.AgentID,
		PublicKeyBase64: base64.StdEncoding.EncodeToString(rec.PublicKey),
		Metadata:        rec.Metadata,
		ReputationScore: rec.ReputationScore,
		RegisteredAt:    rec.RegisteredAt.UTC().Format(time.RFC3339),
	}
}
