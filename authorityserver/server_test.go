// Copyright 2025 sigaid authors

package authorityserver

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigaid/core/identity"
	"github.com/sigaid/core/internal/crypto"
	"github.com/sigaid/core/kv"
	"github.com/sigaid/core/lease"
	"github.com/sigaid/core/proof"
	"github.com/sigaid/core/registry"
	"github.com/sigaid/core/statechain"
	"github.com/sigaid/core/wire"
)

type testHarness struct {
	srv     *Server
	mux     *http.ServeMux
	kp      *identity.KeyPair
	agentID string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	store, err := kv.OpenGoLevelDB("authorityserver-test", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := registry.NewStore(store)
	var tokenKey [lease.TokenKeySize]byte
	copy(tokenKey[:], mustRandomBytes(t, lease.TokenKeySize))
	leases := lease.NewManager(store, reg, 2*time.Minute, tokenKey)
	chain := statechain.NewStore(store)

	srv := New(reg, leases, chain, 5*time.Minute, nil)

	kp, err := identity.Generate()
	require.NoError(t, err)
	agentID, err := kp.AgentID()
	require.NoError(t, err)

	_, err = reg.Register(agentID.String(), kp.PublicKey(), map[string]string{"role": "test"})
	require.NoError(t, err)

	return &testHarness{srv: srv, mux: srv.Mux(), kp: kp, agentID: agentID.String()}
}

func mustRandomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b, err := crypto.RandomBytes(n)
	require.NoError(t, err)
	return b
}

// edPriv reconstructs the raw Ed25519 private key from a KeyPair's seed, for
// tests that need statechain.NewEntry's lower-level signature.
func edPriv(t *testing.T, kp *identity.KeyPair) ed25519.PrivateKey {
	t.Helper()
	seed, err := kp.Seed()
	require.NoError(t, err)
	return ed25519.NewKeyFromSeed(seed[:])
}

func (h *testHarness) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

// acquireMessage mirrors lease.Manager's unexported canonical layout for the
// signature an AcquireRequest carries: agent_id || session_id || ts || nonce
// || ttl, each field length-prefixed except the trailing fixed-width ttl.
func acquireMessage(agentID, sessionID, ts string, nonce []byte, ttlSeconds int64) []byte {
	appendField := func(buf, field []byte) []byte {
		l := uint16(len(field))
		buf = append(buf, byte(l>>8), byte(l))
		return append(buf, field...)
	}
	buf := appendField(nil, []byte(agentID))
	buf = appendField(buf, []byte(sessionID))
	buf = appendField(buf, []byte(ts))
	buf = appendField(buf, nonce)
	var ttlBuf [8]byte
	for i := 0; i < 8; i++ {
		ttlBuf[i] = byte(uint64(ttlSeconds) >> uint(8*(7-i)))
	}
	return append(buf, ttlBuf[:]...)
}

func (h *testHarness) acquireLease(t *testing.T, sessionID string, now time.Time, ttl int64) wire.AcquireResponse {
	t.Helper()
	nonce := mustRandomBytes(t, 16)
	ts := now.UTC().Format(time.RFC3339)
	msg := acquireMessage(h.agentID, sessionID, ts, nonce, ttl)
	sig, err := h.kp.Sign(crypto.DomainLease, msg)
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/v1/leases", wire.AcquireRequest{
		AgentID:      h.agentID,
		SessionID:    sessionID,
		Timestamp:    ts,
		NonceHex:     hex.EncodeToString(nonce),
		TTLSeconds:   ttl,
		SignatureHex: hex.EncodeToString(sig),
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp wire.AcquireResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleAgentsRegisterAndGet(t *testing.T) {
	store, err := kv.OpenGoLevelDB("authorityserver-agents-test", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	reg := registry.NewStore(store)
	var tokenKey [lease.TokenKeySize]byte
	srv := New(reg, lease.NewManager(store, reg, 2*time.Minute, tokenKey), statechain.NewStore(store), time.Minute, nil)
	mux := srv.Mux()

	kp, err := identity.Generate()
	require.NoError(t, err)
	agentID, err := kp.AgentID()
	require.NoError(t, err)

	body := wire.AgentRegisterRequest{
		AgentID:         agentID.String(),
		PublicKeyBase64: base64.StdEncoding.EncodeToString(kp.PublicKey()),
	}
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/v1/agents", &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/v1/agents/"+agentID.String(), nil)
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var got wire.AgentResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &got))
	require.Equal(t, agentID.String(), got.AgentID)

	// Duplicate registration is rejected.
	var buf2 bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf2).Encode(body))
	req3 := httptest.NewRequest(http.MethodPost, "/v1/agents", &buf2)
	rec3 := httptest.NewRecorder()
	mux.ServeHTTP(rec3, req3)
	require.Equal(t, http.StatusConflict, rec3.Code)
}

func TestLeaseLifecycleOverHTTP(t *testing.T) {
	h := newTestHarness(t)
	now := time.Now().UTC()

	acquired := h.acquireLease(t, "session-1", now, 60)
	require.NotEmpty(t, acquired.LeaseToken)

	statusRec := h.do(t, http.MethodGet, "/v1/leases/"+h.agentID, nil, nil)
	require.Equal(t, http.StatusOK, statusRec.Code)
	var status wire.LeaseStatusResponse
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	require.Equal(t, "held", status.State)

	renewRec := h.do(t, http.MethodPut, "/v1/leases/"+h.agentID, wire.RenewRequest{
		SessionID:    "session-1",
		CurrentToken: acquired.LeaseToken,
		TTLSeconds:   60,
	}, nil)
	require.Equal(t, http.StatusOK, renewRec.Code)
	var renewed wire.RenewResponse
	require.NoError(t, json.Unmarshal(renewRec.Body.Bytes(), &renewed))
	require.Equal(t, int64(1), renewed.Sequence)

	releaseRec := h.do(t, http.MethodDelete, "/v1/leases/"+h.agentID, wire.ReleaseRequest{
		SessionID: "session-1",
		Token:     renewed.LeaseToken,
	}, nil)
	require.Equal(t, http.StatusNoContent, releaseRec.Code)
}

func TestLeaseAcquireConflict(t *testing.T) {
	h := newTestHarness(t)
	now := time.Now().UTC()
	h.acquireLease(t, "session-1", now, 60)

	nonce := mustRandomBytes(t, 16)
	ts := now.Add(time.Second).UTC().Format(time.RFC3339)
	msg := acquireMessage(h.agentID, "session-2", ts, nonce, 60)
	sig, err := h.kp.Sign(crypto.DomainLease, msg)
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/v1/leases", wire.AcquireRequest{
		AgentID: h.agentID, SessionID: "session-2", Timestamp: ts,
		NonceHex: hex.EncodeToString(nonce), TTLSeconds: 60,
		SignatureHex: hex.EncodeToString(sig),
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	var held wire.LeaseHeldResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &held))
	require.Equal(t, "session-1", held.HolderSessionID)
}

func TestStateAppendRequiresActiveLease(t *testing.T) {
	h := newTestHarness(t)
	now := time.Now().UTC()

	priv := edPriv(t, h.kp)
	entry, err := statechain.NewEntry(priv, h.kp.PublicKey(), -1, statechain.ZeroHash, "login", "agent started", []byte("payload"))
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/v1/state/"+h.agentID, entry.ToWire(), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	acquired := h.acquireLease(t, "session-1", now, 60)
	rec2 := h.do(t, http.MethodPost, "/v1/state/"+h.agentID, entry.ToWire(), map[string]string{
		"Authorization": "Bearer " + acquired.LeaseToken,
	})
	require.Equal(t, http.StatusCreated, rec2.Code)

	headRec := h.do(t, http.MethodGet, "/v1/state/"+h.agentID, nil, nil)
	require.Equal(t, http.StatusOK, headRec.Code)
	var head wire.StateHeadResponse
	require.NoError(t, json.Unmarshal(headRec.Body.Bytes(), &head))
	require.Equal(t, int64(0), head.Sequence)

	historyRec := h.do(t, http.MethodGet, "/v1/state/"+h.agentID+"/history", nil, nil)
	require.Equal(t, http.StatusOK, historyRec.Code)
	var history wire.StateHistoryResponse
	require.NoError(t, json.Unmarshal(historyRec.Body.Bytes(), &history))
	require.Len(t, history.Entries, 1)
}

func TestVerifyOverHTTP(t *testing.T) {
	h := newTestHarness(t)
	now := time.Now().UTC()

	priv := edPriv(t, h.kp)
	entry, err := statechain.NewEntry(priv, h.kp.PublicKey(), -1, statechain.ZeroHash, "login", "agent started", []byte("payload"))
	require.NoError(t, err)

	acquired := h.acquireLease(t, "session-1", now, 60)
	appendRec := h.do(t, http.MethodPost, "/v1/state/"+h.agentID, entry.ToWire(), map[string]string{
		"Authorization": "Bearer " + acquired.LeaseToken,
	})
	require.Equal(t, http.StatusCreated, appendRec.Code)

	challenge := mustRandomBytes(t, 32)
	bundle, err := proof.Build(h.kp, acquired.LeaseToken, entry, challenge, time.Now().UTC())
	require.NoError(t, err)

	reqBody := wire.VerifyRequest{
		Proof:        bundle.ToWire(),
		RequireLease: true,
	}

	rec := h.do(t, http.MethodPost, "/v1/verify", reqBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp wire.VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Valid)
	require.Equal(t, h.agentID, resp.AgentID)
}

func TestHealthzReportsOK(t *testing.T) {
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
}
