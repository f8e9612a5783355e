// Copyright 2025 sigaid authors
//
// Package authorityserver wires the registry, lease and statechain stores
// into the Authority's HTTP surface: the spec's endpoint table plus a
// /healthz operational endpoint. Handlers follow the teacher's
// pkg/server/proof_handlers.go shape — one receiver type, manual method
// checks, strings.TrimPrefix path parsing, shared writeJSON/writeError
// helpers — generalized from Postgres-backed proof lookups to the
// lease/state-chain/verify operations this Authority actually serves.
package authorityserver

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/sigaid/core/lease"
	"github.com/sigaid/core/proof"
	"github.com/sigaid/core/registry"
	"github.com/sigaid/core/statechain"
)

// Clock lets tests substitute a fixed time source; production wiring
// passes time.Now.
type Clock func() time.Time

// Server bundles the Authority's three stores behind the HTTP contract.
type Server struct {
	registry           *registry.Store
	leases             *lease.Manager
	chain              *statechain.Store
	authority          proof.AuthorityClient
	now                Clock
	logger             *log.Logger
	defaultMaxStateAge time.Duration
	startedAt          time.Time
}

// New constructs a Server. defaultMaxStateAge is used for /v1/verify
// requests that don't set max_state_age_seconds.
func New(reg *registry.Store, leases *lease.Manager, chain *statechain.Store, defaultMaxStateAge time.Duration, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[Authority] ", log.LstdFlags)
	}
	return &Server{
		registry:           reg,
		leases:             leases,
		chain:              chain,
		authority:          &authorityClientAdapter{leases: leases, chain: chain},
		now:                time.Now,
		logger:             logger,
		defaultMaxStateAge: defaultMaxStateAge,
		startedAt:          time.Now(),
	}
}

// Mux builds the *http.ServeMux serving the Authority's full HTTP surface.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/agents", s.handleAgentsCollection)
	mux.HandleFunc("/v1/agents/", s.handleAgentByID)
	mux.HandleFunc("/v1/leases", s.handleLeasesCollection)
	mux.HandleFunc("/v1/leases/", s.handleLeaseByAgent)
	mux.HandleFunc("/v1/state/", s.handleState)
	mux.HandleFunc("/v1/verify", s.handleVerify)
	return mux
}

// authorityClientAdapter implements proof.AuthorityClient over the
// Authority's own in-process stores, so /v1/verify can call proof.Verify
// the same way an external service's in-process verifier would.
type authorityClientAdapter struct {
	leases *lease.Manager
	chain  *statechain.Store
}

func (a *authorityClientAdapter) ValidateLeaseToken(agentID, token string, now time.Time) (string, error) {
	claims, err := a.leases.ValidateTokenForAgent(agentID, token, now)
	if err != nil {
		return "", err
	}
	return claims.SessionID, nil
}

func (a *authorityClientAdapter) CurrentHead(agentID string) (int64, [32]byte, bool, error) {
	return a.chain.Head(agentID)
}

func (s *Server) decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("error encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
