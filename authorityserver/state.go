// Copyright 2025 sigaid authors

package authorityserver

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sigaid/core/registry"
	"github.com/sigaid/core/statechain"
	"github.com/sigaid/core/wire"
)

// handleState serves the three /v1/state/{agent_id}[/history] routes.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/state/")
	rest = strings.TrimSuffix(rest, "/")
	agentID, isHistory := rest, false
	if idx := strings.Index(rest, "/"); idx >= 0 {
		agentID, isHistory = rest[:idx], rest[idx+1:] == "history"
		if !isHistory {
			s.writeError(w, http.StatusNotFound, "unknown route")
			return
		}
	}
	if agentID == "" {
		s.writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	switch {
	case isHistory:
		s.handleStateHistory(w, r, agentID)
	case r.Method == http.MethodPost:
		s.handleStateAppend(w, r, agentID)
	case r.Method == http.MethodGet:
		s.handleStateHead(w, r, agentID)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "only POST and GET are allowed")
	}
}

// bearerToken extracts the lease token from "Authorization: Bearer <token>",
// the mechanism spec §6 names for authenticating callers against the
// Authority.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func (s *Server) handleStateAppend(w http.ResponseWriter, r *http.Request, agentID string) {
	token := bearerToken(r)
	if token == "" {
		s.writeError(w, http.StatusForbidden, "no active lease")
		return
	}
	if _, err := s.leases.ValidateTokenForAgent(agentID, token, s.now()); err != nil {
		s.writeError(w, http.StatusForbidden, "no active lease")
		return
	}

	var wireEntry wire.StateEntry
	if err := s.decodeJSON(r, &wireEntry); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if wireEntry.AgentID != agentID {
		s.writeError(w, http.StatusBadRequest, "agent_id does not match path")
		return
	}

	entry, err := statechain.EntryFromWire(wireEntry)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pub, err := s.registry.PublicKey(agentID)
	if err != nil {
		if err == registry.ErrNotFound {
			s.writeError(w, http.StatusNotFound, "unknown agent_id")
			return
		}
		s.logger.Printf("append %s: %v", agentID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to load agent key")
		return
	}

	if err := s.chain.Append(pub, entry); err != nil {
		s.writeAppendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry.ToWire())
}

func (s *Server) writeAppendError(w http.ResponseWriter, err error) {
	if fork, ok := err.(*statechain.ErrFork); ok {
		head := fork.CurrentHead.ToWire()
		s.writeJSON(w, http.StatusConflict, wire.StateConflictResponse{Error: "fork", CurrentHead: &head})
		return
	}
	switch {
	case errors.Is(err, statechain.ErrSequenceMismatch):
		s.writeJSON(w, http.StatusConflict, wire.StateConflictResponse{Error: "sequence_mismatch"})
	case err == statechain.ErrBadSignature, err == statechain.ErrEntryHashMismatch:
		s.writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.logger.Printf("append: %v", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleStateHead(w http.ResponseWriter, r *http.Request, agentID string) {
	sequence, hash, found, err := s.chain.Head(agentID)
	if err != nil {
		s.logger.Printf("head %s: %v", agentID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to load chain head")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "agent has no state entries")
		return
	}
	s.writeJSON(w, http.StatusOK, wire.StateHeadResponse{
		Sequence:        sequence,
		EntryHashBase64: base64.StdEncoding.EncodeToString(hash[:]),
	})
}

func (s *Server) handleStateHistory(w http.ResponseWriter, r *http.Request, agentID string) {
	limit := parseIntParam(r, "limit", 100)
	offset := parseIntParam(r, "offset", 0)

	entries, err := s.chain.History(agentID, int64(offset), int64(limit))
	if err != nil {
		s.logger.Printf("history %s: %v", agentID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	out := make([]wire.StateEntry, len(entries))
	for i, e := range entries {
		out[i] = e.ToWire()
	}
	s.writeJSON(w, http.StatusOK, wire.StateHistoryResponse{Entries: out})
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVal
	}
	return v
}
