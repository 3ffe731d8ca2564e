// Package upstream is the JSON-over-HTTP client used for every outbound call
// the gateway makes: agent dispatch, content generation, and homework proxying.
//
// Each call runs under the caller's context plus a per-call timeout. Non-2xx
// responses become apierr upstream errors carrying the remote status and body,
// and transport failures become upstream errors wrapping the cause.
//
// Retries are opt-in per call. Only idempotent calls should pass a RetryPolicy;
// the policy retries transport errors and 5xx responses with exponential
// backoff and stops early when the context is done.
package upstream
