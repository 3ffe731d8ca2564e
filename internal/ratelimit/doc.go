// Package ratelimit throttles per-actor request rates for gateway operations.
//
// Each operation owns a namespace (credential, files, session-complete, ...)
// and a Policy. Counters use a fixed window: the first request opens a window
// with count 1, later requests increment until MaxAttempts, and the first
// request after the window has elapsed resets the count to 1.
//
// State lives behind the Store interface. MemoryStore is process-local;
// RedisStore shares counters across gateway instances:
//
//	store := ratelimit.NewMemoryStore()
//	limiter := ratelimit.New(store, logger)
//	if d := limiter.Check(ctx, actorID, ratelimit.CredentialPolicy); !d.Allowed {
//	    // reject with 429
//	}
//
// Check never returns an error. A failing store allows the request, which
// weakens the throttle without blocking legitimate traffic.
package ratelimit
