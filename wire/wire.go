// Copyright 2025 sigaid authors
//
// Package wire defines the JSON request/response shapes of the HTTP
// contract shared by the agent client and the Authority server. All
// timestamps are RFC 3339 UTC; all hashes and signatures are base64
// unless the field name says otherwise (several legacy-shaped fields use
// hex, matching the wire contract's normative field names).
package wire

// AgentRegisterRequest is the body of POST /v1/agents.
type AgentRegisterRequest struct {
	AgentID         string            `json:"agent_id"`
	PublicKeyBase64 string            `json:"public_key_base64"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// AgentResponse is the body of GET /v1/agents/{agent_id} and the 201
// response of POST /v1/agents.
type AgentResponse struct {
	AgentID         string            `json:"agent_id"`
	PublicKeyBase64 string            `json:"public_key_base64"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ReputationScore float64           `json:"reputation_score"`
	RegisteredAt    string            `json:"registered_at"`
}

// AcquireRequest is the body of POST /v1/leases.
type AcquireRequest struct {
	AgentID      string `json:"agent_id"`
	SessionID    string `json:"session_id"`
	Timestamp    string `json:"timestamp"`
	NonceHex     string `json:"nonce_hex"`
	TTLSeconds   int64  `json:"ttl_seconds"`
	SignatureHex string `json:"signature_hex"`
}

// AcquireResponse is the 200 body of POST /v1/leases.
type AcquireResponse struct {
	LeaseToken string `json:"lease_token"`
	AcquiredAt string `json:"acquired_at"`
	ExpiresAt  string `json:"expires_at"`
	Sequence   int64  `json:"sequence"`
}

// LeaseHeldResponse is the 409 body of POST /v1/leases.
type LeaseHeldResponse struct {
	Error           string `json:"error"`
	HolderSessionID string `json:"holder_session_id"`
	ExpiresAt       string `json:"expires_at"`
}

// RenewRequest is the body of PUT /v1/leases/{agent_id}.
type RenewRequest struct {
	SessionID    string `json:"session_id"`
	CurrentToken string `json:"current_token"`
	TTLSeconds   int64  `json:"ttl_seconds"`
}

// RenewResponse is the 200 body of PUT /v1/leases/{agent_id}.
type RenewResponse struct {
	LeaseToken string `json:"lease_token"`
	ExpiresAt  string `json:"expires_at"`
	Sequence   int64  `json:"sequence"`
}

// ReleaseRequest is the body of DELETE /v1/leases/{agent_id}.
type ReleaseRequest struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// LeaseStatusResponse is the body of GET /v1/leases/{agent_id}.
type LeaseStatusResponse struct {
	State      string `json:"state"` // "free" | "held" (an expired lease reports "free")
	SessionID  string `json:"session_id,omitempty"`
	AcquiredAt string `json:"acquired_at,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	Sequence   int64  `json:"sequence,omitempty"`
}

// StateEntry is the wire form of a StateEntry, used both as the body of
// POST /v1/state/{agent_id} and as an element of a history response.
type StateEntry struct {
	AgentID           string `json:"agent_id"`
	Sequence          int64  `json:"sequence"`
	PrevHashBase64    string `json:"prev_hash_base64"`
	Timestamp         string `json:"timestamp"`
	ActionType        string `json:"action_type"`
	ActionSummary     string `json:"action_summary"`
	ActionDataHashB64 string `json:"action_data_hash_base64"`
	SignatureBase64   string `json:"signature_base64"`
	EntryHashBase64   string `json:"entry_hash_base64"`
}

// StateConflictResponse is the 409 body of POST /v1/state/{agent_id},
// covering both the "fork" and "sequence_mismatch" error shapes; exactly
// one of the two is populated depending on Error.
type StateConflictResponse struct {
	Error       string      `json:"error"` // "fork" | "sequence_mismatch"
	CurrentHead *StateEntry `json:"current_head,omitempty"`
}

// StateHeadResponse is the body of GET /v1/state/{agent_id}.
type StateHeadResponse struct {
	Sequence        int64  `json:"sequence"`
	EntryHashBase64 string `json:"entry_hash_base64"`
}

// StateHistoryResponse is the body of GET /v1/state/{agent_id}/history.
type StateHistoryResponse struct {
	Entries []StateEntry `json:"entries"`
}

// InclusionProofResponse carries a Merkle inclusion proof for one sequence
// number against a committed root.
type InclusionProofResponse struct {
	Sequence        int64    `json:"sequence"`
	EntryHashBase64 string   `json:"entry_hash_base64"`
	Siblings        []string `json:"siblings_base64"`
	RootBase64      string   `json:"root_base64"`
}

// ProofBundle is the wire form of a ProofBundle: what an agent sends a
// verifier and what a verifier sends the Authority's /v1/verify endpoint.
type ProofBundle struct {
	AgentID               string     `json:"agent_id"`
	LeaseToken            string     `json:"lease_token"`
	StateHead             StateEntry `json:"state_head"`
	ChallengeBase64       string     `json:"challenge_base64"`
	ChallengeSignatureB64 string     `json:"challenge_signature_base64"`
	BundleTimestamp       string     `json:"bundle_timestamp"`
	BundleSignatureBase64 string     `json:"bundle_signature_base64"`
}

// VerifyRequest is the body of POST /v1/verify.
type VerifyRequest struct {
	Proof              ProofBundle `json:"proof"`
	RequireLease       bool        `json:"require_lease,omitempty"`
	MaxStateAgeSeconds int64       `json:"max_state_age_seconds,omitempty"`
	MinReputationScore *float64    `json:"min_reputation_score,omitempty"`
}

// VerifyResponse is the 200 body of POST /v1/verify.
type VerifyResponse struct {
	Valid      bool   `json:"valid"`
	AgentID    string `json:"agent_id"`
	ReasonCode string `json:"reason_code,omitempty"`
	Offline    bool   `json:"offline,omitempty"`
}

// ErrorResponse is the generic error body used for status codes that
// don't carry a more specific shape (e.g. 401, 403, 410).
type ErrorResponse struct {
	Error string `json:"error"`
}
