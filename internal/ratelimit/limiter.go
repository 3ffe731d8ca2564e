// ABOUTME: Fixed-window request limiter keyed by actor and operation namespace
// ABOUTME: State lives behind a Store so in-memory and Redis backends share one algorithm

package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Namespaces used by gateway operations. Each has its own counters.
const (
	NamespaceCredential      = "credential"
	NamespaceFiles           = "files"
	NamespaceFolders         = "folders"
	NamespaceGenerate        = "generate"
	NamespaceSessionComplete = "session-complete"
	NamespaceSessionsList    = "sessions-list"
	NamespaceUpload          = "upload"
	NamespaceChat            = "chat"
	NamespaceSessionContent  = "session-content"
)

// defaultCASAttempts bounds how often Check retries a lost compare-and-swap
// before giving up and allowing the request.
const defaultCASAttempts = 5

// Policy is the threshold for one namespace.
type Policy struct {
	Namespace   string
	MaxAttempts int
	Window      time.Duration
}

// Policies observed for the gateway operations.
var (
	CredentialPolicy      = Policy{Namespace: NamespaceCredential, MaxAttempts: 10, Window: time.Minute}
	FilesPolicy           = Policy{Namespace: NamespaceFiles, MaxAttempts: 30, Window: time.Minute}
	FoldersPolicy         = Policy{Namespace: NamespaceFolders, MaxAttempts: 20, Window: time.Minute}
	GeneratePolicy        = Policy{Namespace: NamespaceGenerate, MaxAttempts: 10, Window: time.Minute}
	SessionCompletePolicy = Policy{Namespace: NamespaceSessionComplete, MaxAttempts: 5, Window: time.Minute}
	SessionsListPolicy    = Policy{Namespace: NamespaceSessionsList, MaxAttempts: 30, Window: time.Minute}
	UploadPolicy          = Policy{Namespace: NamespaceUpload, MaxAttempts: 10, Window: time.Minute}
	ChatPolicy            = Policy{Namespace: NamespaceChat, MaxAttempts: 50, Window: time.Minute}
	SessionContentPolicy  = Policy{Namespace: NamespaceSessionContent, MaxAttempts: 30, Window: time.Minute}
)

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed     bool
	Count       int
	Limit       int
	WindowStart time.Time
	WindowEnd   time.Time
}

// Remaining returns how many more requests fit in the current window.
func (d Decision) Remaining() int {
	if d.Limit <= 0 || d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

// Limiter applies fixed-window limits on top of a Store.
type Limiter struct {
	store       Store
	logger      *slog.Logger
	now         func() time.Time
	casAttempts int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter backed by store.
func New(store Store, logger *slog.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		store:       store,
		logger:      logger,
		now:         time.Now,
		casAttempts: defaultCASAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the store key for an actor within a namespace.
func Key(namespace, actor string) string {
	return namespace + ":" + actor
}

// Check records a request by actor under p and reports whether it is allowed.
// It never fails: store errors and persistent contention allow the request.
func (l *Limiter) Check(ctx context.Context, actor string, p Policy) Decision {
	if p.MaxAttempts <= 0 {
		return Decision{Allowed: true}
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}

	key := Key(p.Namespace, actor)
	ttl := p.Window + time.Second

	for attempt := 0; attempt < l.casAttempts; attempt++ {
		now := l.now()

		current, found, err := l.store.Get(ctx, key)
		if err != nil {
			l.logger.Error("rate limit store read failed", "namespace", p.Namespace, "error", err)
			return Decision{Allowed: true, Limit: p.MaxAttempts}
		}

		var prev *State
		if found {
			prev = &current
		}

		var next State
		switch {
		case !found || now.Sub(current.WindowStart) > p.Window:
			next = State{Count: 1, WindowStart: now}
		case current.Count >= p.MaxAttempts:
			return Decision{
				Allowed:     false,
				Count:       current.Count,
				Limit:       p.MaxAttempts,
				WindowStart: current.WindowStart,
				WindowEnd:   current.WindowStart.Add(p.Window),
			}
		default:
			next = State{Count: current.Count + 1, WindowStart: current.WindowStart}
		}

		swapped, err := l.store.CompareAndSwap(ctx, key, prev, next, ttl)
		if err != nil {
			l.logger.Error("rate limit store write failed", "namespace", p.Namespace, "error", err)
			return Decision{Allowed: true, Limit: p.MaxAttempts}
		}
		if swapped {
			return Decision{
				Allowed:     true,
				Count:       next.Count,
				Limit:       p.MaxAttempts,
				WindowStart: next.WindowStart,
				WindowEnd:   next.WindowStart.Add(p.Window),
			}
		}
	}

	l.logger.Warn("rate limit contention, allowing request", "namespace", p.Namespace, "attempts", l.casAttempts)
	return Decision{Allowed: true, Limit: p.MaxAttempts}
}

// Close releases the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
