// Copyright 2025 sigaid authors

package authorityserver

import (
	"net/http"
	"time"

	"github.com/sigaid/core/proof"
	"github.com/sigaid/core/registry"
	"github.com/sigaid/core/wire"
)

// handleVerify serves POST /v1/verify. The Authority has no independent
// record of the challenge an external service issued, so it always runs
// the expectedChallenge-less form of proof.Verify — the challenge match
// (spec §4.E step 2) is the calling service's own responsibility before
// it ever reaches this endpoint.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "only POST is allowed")
		return
	}

	var req wire.VerifyRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	bundle, err := proof.FromWire(req.Proof)
	if err != nil {
		s.writeJSON(w, http.StatusOK, wire.VerifyResponse{
			Valid:      false,
			AgentID:    req.Proof.AgentID,
			ReasonCode: string(proof.ReasonBadAgentID),
		})
		return
	}

	maxAge := s.defaultMaxStateAge
	if req.MaxStateAgeSeconds > 0 {
		maxAge = time.Duration(req.MaxStateAgeSeconds) * time.Second
	}
	policy := proof.Policy{
		RequireLease:       req.RequireLease,
		MaxStateAge:        maxAge,
		MinReputationScore: req.MinReputationScore,
	}

	result := proof.Verify(bundle, nil, policy, s.authority, s.now())
	if result.Valid && policy.MinReputationScore != nil {
		result = s.applyReputationFloor(string(bundle.AgentID), *policy.MinReputationScore, result)
	}

	s.writeJSON(w, http.StatusOK, wire.VerifyResponse{
		Valid:      result.Valid,
		AgentID:    string(bundle.AgentID),
		ReasonCode: string(result.ReasonCode),
		Offline:    result.Offline,
	})
}

// applyReputationFloor gates an otherwise-valid result on the agent's
// registry reputation score. No reason code in spec.md §4.E's closed
// taxonomy covers this case, so a failing floor check reports Valid:false
// with no reason_code — reputation is a policy overlay on top of the
// cryptographic verification, not a verification failure itself.
func (s *Server) applyReputationFloor(agentID string, min float64, result proof.Result) proof.Result {
	rec, err := s.registry.Get(agentID)
	if err != nil {
		if err == registry.ErrNotFound {
			return proof.Result{Valid: false, Offline: result.Offline}
		}
		s.logger.Printf("reputation lookup %s: %v", agentID, err)
		return proof.Result{Valid: false, Offline: result.Offline, ReasonCode: proof.ReasonAuthorityUnavailable}
	}
	if rec.ReputationScore < min {
		return proof.Result{Valid: false, Offline: result.Offline}
	}
	return result
}
