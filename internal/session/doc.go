// Package session validates end-of-session study summaries and records them.
//
// Validate checks every field of a raw JSON summary and reports all failures
// together. Service adds the completion timestamp, claims the (actor, session)
// pair in a dedupe cache so concurrent repeats cannot race, and writes the
// record through a store.SessionStore.
package session
