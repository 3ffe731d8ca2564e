// ABOUTME: Store abstraction for rate-limit state plus the in-memory implementation
// ABOUTME: MemoryStore guards a map with a mutex and sweeps expired windows periodically

package ratelimit

import (
	"context"
	"sync"
	"time"
)

const memorySweepInterval = 5 * time.Minute

// State is the counter for one (actor, namespace) pair.
type State struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

func (s State) equal(o State) bool {
	return s.Count == o.Count && s.WindowStart.Equal(o.WindowStart)
}

// Store holds rate-limit state. Implementations must make CompareAndSwap
// atomic with respect to other callers sharing the same key.
type Store interface {
	// Get returns the state for key and whether it exists.
	Get(ctx context.Context, key string) (State, bool, error)
	// Put unconditionally stores state for key.
	Put(ctx context.Context, key string, state State, ttl time.Duration) error
	// CompareAndSwap stores next only if the current value equals old.
	// A nil old means the key must not exist.
	CompareAndSwap(ctx context.Context, key string, old *State, next State, ttl time.Duration) (bool, error)
	Close() error
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a MemoryStore and starts its sweep loop.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// lookupLocked treats expired entries as absent. Must be called with mu held.
func (s *MemoryStore) lookupLocked(key string, now time.Time) (State, bool) {
	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		return State{}, false
	}
	return e.state, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.lookupLocked(key, time.Now())
	return st, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, state State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{state: state, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, key string, old *State, next State, ttl time.Duration) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.lookupLocked(key, now)
	switch {
	case old == nil && found:
		return false, nil
	case old != nil && (!found || !current.equal(*old)):
		return false, nil
	}

	s.entries[key] = memoryEntry{state: next, expiresAt: now.Add(ttl)}
	return true, nil
}

// Len returns the number of tracked keys, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(memorySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Close stops the sweep loop. It is safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.stopCh)
	})
	return nil
}
