// Copyright 2025 sigaid authors

package lease

import (
	"sync"
	"time"
)

// NonceCache is a bounded, in-memory replay cache keyed by (agent_id,
// nonce), with entries expiring after a clock-skew window. It is
// intentionally not persisted: the window it must cover is the same few
// minutes as the clock-skew tolerance itself, so an Authority restart
// loses at most a short, bounded exposure window.
type NonceCache struct {
	mu     sync.Mutex
	seenAt map[string]time.Time
	window time.Duration
}

// NewNonceCache creates a cache that considers an entry stale, and evicts
// it, after window has elapsed since it was first seen.
func NewNonceCache(window time.Duration) *NonceCache {
	return &NonceCache{
		seenAt: make(map[string]time.Time),
		window: window,
	}
}

// CheckAndRecord reports whether (agentID, nonce) has been seen within the
// window, recording it as seen if not. A true result ("ok to proceed")
// means this is the first time this nonce has been presented for this
// agent within the window.
func (c *NonceCache) CheckAndRecord(agentID, nonce string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked(now)

	key := agentID + ":" + nonce
	if _, seen := c.seenAt[key]; seen {
		return false
	}
	c.seenAt[key] = now
	return true
}

// evictLocked drops every entry older than window. Callers must hold c.mu.
func (c *NonceCache) evictLocked(now time.Time) {
	for k, t := range c.seenAt {
		if now.Sub(t) > c.window {
			delete(c.seenAt, k)
		}
	}
}

// Size reports the number of entries currently cached.
func (c *NonceCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seenAt)
}
