// Copyright 2025 sigaid authors

package authorityclient_test

import (
	"context"
	"crypto/ed25519"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigaid/core/authorityclient"
	"github.com/sigaid/core/authorityserver"
	"github.com/sigaid/core/identity"
	"github.com/sigaid/core/kv"
	"github.com/sigaid/core/lease"
	"github.com/sigaid/core/registry"
	"github.com/sigaid/core/statechain"
)

func newTestServer(t *testing.T) (*httptest.Server, *identity.KeyPair, string) {
	t.Helper()
	store, err := kv.OpenGoLevelDB("authorityclient-test", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := registry.NewStore(store)
	var tokenKey [lease.TokenKeySize]byte
	leases := lease.NewManager(store, reg, 2*time.Minute, tokenKey)
	chain := statechain.NewStore(store)
	srv := authorityserver.New(reg, leases, chain, 5*time.Minute, nil)

	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)

	kp, err := identity.Generate()
	require.NoError(t, err)
	agentID, err := kp.AgentID()
	require.NoError(t, err)
	_, err = reg.Register(agentID.String(), kp.PublicKey(), nil)
	require.NoError(t, err)

	return ts, kp, agentID.String()
}

func TestClientAcquireRenewReleaseOverHTTP(t *testing.T) {
	ts, kp, agentID := newTestServer(t)
	transport := authorityclient.New(ts.URL, "")
	client := lease.NewClient(transport, agentID, kp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Acquire(ctx, 2*time.Minute))
	require.NoError(t, client.Renew(ctx, 2*time.Minute))
	require.NoError(t, client.Release(ctx))
}

func TestClientGetAgentOverHTTP(t *testing.T) {
	ts, _, agentID := newTestServer(t)
	transport := authorityclient.New(ts.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := transport.GetAgent(ctx, agentID)
	require.NoError(t, err)
	require.Equal(t, agentID, resp.AgentID)
}

func TestClientAppendStateRejectsWithoutLease(t *testing.T) {
	ts, kp, agentID := newTestServer(t)
	transport := authorityclient.New(ts.URL, "")

	seed, err := kp.Seed()
	require.NoError(t, err)
	priv := ed25519.NewKeyFromSeed(seed[:])
	entry, err := statechain.NewEntry(priv, kp.PublicKey(), -1, statechain.ZeroHash, "login", "agent started", []byte("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = transport.AppendState(ctx, agentID, "not-a-real-token", entry.ToWire())
	require.Error(t, err)
}

func TestClientHeadNotFoundOverHTTP(t *testing.T) {
	ts, _, agentID := newTestServer(t)
	transport := authorityclient.New(ts.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := transport.Head(ctx, agentID)
	require.Error(t, err)
}

