// Package dedupe holds short-lived claims on (actor, session ID) pairs.
//
// The session service takes a claim before writing a completion, so two
// concurrent submissions of the same session cannot both reach the store.
// A failed write releases its claim; a successful or duplicate one keeps it
// until the TTL runs out.
package dedupe
