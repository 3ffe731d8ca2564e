// Package dispatch asks the remote voice-agent worker to join a room.
//
// The worker is triggered through a configured webhook endpoint with an
// optional bearer key. The trigger is idempotent on the worker side, so
// transport failures and 5xx responses are retried with a bounded policy.
package dispatch
