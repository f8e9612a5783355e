// Copyright 2025 sigaid authors

package lease

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigaid/core/internal/crypto"
	"github.com/sigaid/core/wire"
)

// Transport is the subset of the Authority's lease HTTP endpoints a Client
// needs. Kept as an interface, not a concrete HTTP type, so tests can drive
// the state machine without a live server — the Authority's real HTTP
// client implements this against the §6 endpoint table.
type Transport interface {
	Acquire(ctx context.Context, req wire.AcquireRequest) (wire.AcquireResponse, error)
	Renew(ctx context.Context, agentID string, req wire.RenewRequest) (wire.RenewResponse, error)
	Release(ctx context.Context, agentID string, req wire.ReleaseRequest) error
}

// ErrLeaseDenied is returned when the Authority rejects an acquire attempt
// for a reason other than "currently held" (e.g. unknown agent, bad
// signature) — these are not retried.
var ErrLeaseDenied = errors.New("lease: acquire denied")

// backoffMin/backoffMax bound the client's exponential-backoff-with-
// full-jitter retry loop while a lease is held by someone else.
const (
	backoffMin = 200 * time.Millisecond
	backoffMax = 10 * time.Second
)

// renewFraction is the point in a lease's lifetime (as a fraction of TTL
// past acquisition) at which the background loop attempts its first renew.
const renewFraction = 0.8

// safetyMargin is how long before expiry the client gives up retrying a
// renewal and lets the lease lapse rather than risk operating unleased.
const safetyMargin = 2 * time.Second

// Client is the agent-side lease handle: it acquires, renews in the
// background, and releases a single agent's exclusive lease.
type Client struct {
	transport Transport
	keyPair   identitySigner
	agentID   string

	mu        sync.Mutex
	sessionID string
	token     string
	expiresAt time.Time
	acquired  bool

	cancelRenew context.CancelFunc
	renewDone   chan struct{}

	logger *log.Logger
}

// identitySigner is the minimal signing surface Client needs from an
// identity.KeyPair, kept narrow so this package doesn't import identity
// just for a function pointer.
type identitySigner interface {
	Sign(domain crypto.Domain, message []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// NewClient builds a Client for agentID, signing acquire/renew requests
// with keyPair.
func NewClient(transport Transport, agentID string, keyPair identitySigner) *Client {
	return &Client{
		transport: transport,
		keyPair:   keyPair,
		agentID:   agentID,
		logger:    log.New(log.Writer(), "[lease] ", log.LstdFlags),
	}
}

// Acquire blocks until the lease is obtained or ctx is done, retrying with
// bounded exponential backoff and full jitter while the lease is held by
// another session. It starts the background auto-renew loop on success.
func (c *Client) Acquire(ctx context.Context, ttl time.Duration) error {
	sessionID := uuid.NewString()
	backoff := backoffMin

	for {
		now := time.Now().UTC()
		nonce, err := crypto.RandomBytes(16)
		if err != nil {
			return err
		}
		ts := now.Format(time.RFC3339)
		msg := acquireMessage(c.agentID, sessionID, ts, nonce, int64(ttl.Seconds()))
		sig, err := c.keyPair.Sign(crypto.DomainLease, msg)
		if err != nil {
			return fmt.Errorf("lease: sign acquire request: %w", err)
		}

		req := wire.AcquireRequest{
			AgentID:      c.agentID,
			SessionID:    sessionID,
			Timestamp:    ts,
			NonceHex:     hex.EncodeToString(nonce),
			TTLSeconds:   int64(ttl.Seconds()),
			SignatureHex: hex.EncodeToString(sig),
		}

		resp, err := c.transport.Acquire(ctx, req)
		if err == nil {
			expiresAt, perr := time.Parse(time.RFC3339, resp.ExpiresAt)
			if perr != nil {
				return fmt.Errorf("lease: parse expires_at: %w", perr)
			}
			c.mu.Lock()
			c.sessionID = sessionID
			c.token = resp.LeaseToken
			c.expiresAt = expiresAt
			c.acquired = true
			c.mu.Unlock()
			c.startAutoRenew(ttl)
			return nil
		}

		var held *ErrLeaseHeld
		if !errors.As(err, &held) {
			return fmt.Errorf("%w: %v", ErrLeaseDenied, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(backoff)):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// jitter applies full jitter to d: a uniformly random duration in [0, d].
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)))
}

// Renew manually renews the lease once. The background loop calls this on
// its own schedule; most callers should rely on WithLease/Acquire instead.
func (c *Client) Renew(ctx context.Context, ttl time.Duration) error {
	c.mu.Lock()
	sessionID, token := c.sessionID, c.token
	c.mu.Unlock()

	resp, err := c.transport.Renew(ctx, c.agentID, wire.RenewRequest{
		SessionID:    sessionID,
		CurrentToken: token,
		TTLSeconds:   int64(ttl.Seconds()),
	})
	if err != nil {
		return err
	}
	expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresAt)
	if err != nil {
		return fmt.Errorf("lease: parse expires_at: %w", err)
	}

	c.mu.Lock()
	c.token = resp.LeaseToken
	c.expiresAt = expiresAt
	c.mu.Unlock()
	return nil
}

// Release gives up the lease. It is best-effort and idempotent: a failed
// or redundant release never returns an error callers need to handle
// specially, matching spec §4.C's release semantics.
func (c *Client) Release(ctx context.Context) error {
	c.stopAutoRenew()

	c.mu.Lock()
	sessionID, token, acquired := c.sessionID, c.token, c.acquired
	c.acquired = false
	c.mu.Unlock()

	if !acquired {
		return nil
	}
	if err := c.transport.Release(ctx, c.agentID, wire.ReleaseRequest{SessionID: sessionID, Token: token}); err != nil {
		c.logger.Printf("release agent=%s session=%s: %v", c.agentID, sessionID, err)
	}
	return nil
}

// WithLease acquires the lease, runs fn, and releases the lease on every
// exit path from fn including a panic.
func (c *Client) WithLease(ctx context.Context, ttl time.Duration, fn func(ctx context.Context) error) error {
	if err := c.Acquire(ctx, ttl); err != nil {
		return err
	}
	defer c.Release(ctx)

	return fn(ctx)
}

// startAutoRenew launches the background renewal loop, grounded on the
// ticker+context.CancelFunc lifecycle the Authority's own health monitor
// uses for periodic background work.
func (c *Client) startAutoRenew(ttl time.Duration) {
	c.stopAutoRenew()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelRenew = cancel
	c.renewDone = make(chan struct{})

	go c.autoRenewLoop(ctx, ttl, c.renewDone)
}

func (c *Client) stopAutoRenew() {
	c.mu.Lock()
	cancel := c.cancelRenew
	done := c.renewDone
	c.cancelRenew = nil
	c.renewDone = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (c *Client) autoRenewLoop(ctx context.Context, ttl time.Duration, done chan struct{}) {
	defer close(done)

	backoff := backoffMin
	for {
		c.mu.Lock()
		expiresAt := c.expiresAt
		c.mu.Unlock()

		renewAt := expiresAt.Add(-time.Duration(float64(ttl) * (1 - renewFraction)))
		wait := time.Until(renewAt)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		deadline := expiresAt.Add(-safetyMargin)
		if time.Now().After(deadline) {
			c.logger.Printf("agent=%s auto-renew: past safety deadline, giving up", c.agentID)
			return
		}

		renewCtx, cancel := context.WithDeadline(ctx, deadline)
		err := c.Renew(renewCtx, ttl)
		cancel()
		if err != nil {
			c.logger.Printf("agent=%s auto-renew failed: %v", c.agentID, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(backoff)):
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}
		backoff = backoffMin
	}
}
