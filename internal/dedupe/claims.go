// ABOUTME: Claim cache for (actor, session ID) pairs with a TTL and a size cap
// ABOUTME: A claim blocks repeat completions until it expires or is released

package dedupe

import (
	"sync"
	"time"
)

// Key identifies one session completion.
type Key struct {
	Actor     string
	SessionID string
}

type claim struct {
	expires time.Time
	seq     uint64
}

// queued is a claim in arrival order; it is stale once the live claim for
// Key carries a different seq.
type queued struct {
	key Key
	seq uint64
}

// Claims tracks in-flight and recently completed session claims.
type Claims struct {
	mu      sync.Mutex
	live    map[Key]claim
	order   []queued
	nextSeq uint64

	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures Claims.
type Option func(*Claims)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Claims) { c.now = now }
}

// New creates a claim cache. Claims live for ttl; once maxSize claims are
// held the oldest is dropped to admit a new one. A background sweep removes
// expired claims until Close.
func New(ttl time.Duration, maxSize int, opts ...Option) *Claims {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Claims{
		live:    make(map[Key]claim),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop(min(ttl, time.Minute))
	return c
}

// Claim takes the claim for k. It returns false when k is already claimed
// and the claim has not expired.
func (c *Claims) Claim(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if cl, ok := c.live[k]; ok && now.Before(cl.expires) {
		return false
	}

	if _, ok := c.live[k]; !ok && len(c.live) >= c.maxSize {
		c.dropExpiredLocked(now)
		if len(c.live) >= c.maxSize {
			c.dropOldestLocked()
		}
	}

	c.nextSeq++
	c.live[k] = claim{expires: now.Add(c.ttl), seq: c.nextSeq}
	c.order = append(c.order, queued{key: k, seq: c.nextSeq})
	c.compactLocked()
	return true
}

// Release gives up the claim for k so the same session can be submitted again.
func (c *Claims) Release(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.live, k)
	c.compactLocked()
}

// Held reports whether k is currently claimed.
func (c *Claims) Held(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.live[k]
	return ok && c.now().Before(cl.expires)
}

// Len returns the number of claims held, including expired ones the sweep has
// not yet removed.
func (c *Claims) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Close stops the sweep. Safe to call more than once.
func (c *Claims) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Claims) isLive(q queued) bool {
	cl, ok := c.live[q.key]
	return ok && cl.seq == q.seq
}

func (c *Claims) dropOldestLocked() {
	for len(c.order) > 0 {
		q := c.order[0]
		c.order = c.order[1:]
		if c.isLive(q) {
			delete(c.live, q.key)
			return
		}
	}
}

func (c *Claims) dropExpiredLocked(now time.Time) {
	for k, cl := range c.live {
		if !now.Before(cl.expires) {
			delete(c.live, k)
		}
	}
}

// compactLocked rewrites order without stale entries once they dominate it.
func (c *Claims) compactLocked() {
	if len(c.order) <= 2*len(c.live)+16 {
		return
	}
	kept := make([]queued, 0, len(c.live))
	for _, q := range c.order {
		if c.isLive(q) {
			kept = append(kept, q)
		}
	}
	c.order = kept
}

func (c *Claims) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropExpiredLocked(c.now())
	c.compactLocked()
}

func (c *Claims) sweepLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}
