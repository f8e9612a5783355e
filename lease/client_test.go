// Copyright 2025 sigaid authors

package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigaid/core/identity"
	"github.com/sigaid/core/wire"
)

// fakeTransport drives the Manager's state machine directly in memory, so
// Client's retry/renew logic can be exercised without a live HTTP server.
type fakeTransport struct {
	mgr     *Manager
	mu      sync.Mutex
	renews  int
	onRenew func()
}

func (f *fakeTransport) Acquire(_ context.Context, req wire.AcquireRequest) (wire.AcquireResponse, error) {
	return f.mgr.Acquire(req, time.Now().UTC())
}

func (f *fakeTransport) Renew(_ context.Context, agentID string, req wire.RenewRequest) (wire.RenewResponse, error) {
	f.mu.Lock()
	f.renews++
	cb := f.onRenew
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	return f.mgr.Renew(agentID, req, time.Now().UTC())
}

func (f *fakeTransport) Release(_ context.Context, agentID string, req wire.ReleaseRequest) error {
	return f.mgr.Release(agentID, req)
}

func newTestClient(t *testing.T) (*Client, *fakeTransport, string) {
	t.Helper()
	m, kp, agentID := newTestManager(t)
	transport := &fakeTransport{mgr: m}
	client := NewClient(transport, agentID, kp)
	return client, transport, agentID
}

func TestClientAcquireAndRelease(t *testing.T) {
	client, _, agentID := newTestClient(t)
	ctx := context.Background()

	err := client.Acquire(ctx, 30*time.Second)
	require.NoError(t, err)
	require.True(t, client.acquired)

	err = client.Release(ctx)
	require.NoError(t, err)
	require.False(t, client.acquired)

	_, _ = agentID, err
}

func TestClientWithLeaseReleasesOnPanic(t *testing.T) {
	client, _, _ := newTestClient(t)
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = client.WithLease(ctx, 30*time.Second, func(ctx context.Context) error {
			panic("boom")
		})
	}()

	require.False(t, client.acquired)
}

func TestClientAcquireRetriesUntilFree(t *testing.T) {
	m, kp, agentID := newTestManager(t)
	transport := &fakeTransport{mgr: m}

	holderKP, err := identity.Generate()
	require.NoError(t, err)
	_ = holderKP

	now := time.Now().UTC()
	heldReq := signedAcquire(t, kp, agentID, "holder-session", now, 1)
	_, err = m.Acquire(heldReq, now)
	require.NoError(t, err)

	client := NewClient(transport, agentID, kp)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- client.Acquire(ctx, 30*time.Second)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("acquire did not complete in time")
	}
	client.stopAutoRenew()
}
