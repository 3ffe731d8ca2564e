// Package gateway orchestrates the session-gateway server components.
//
// # Overview
//
// The gateway package owns every long-lived component: the session store,
// the rate limiter and its state store, the credential issuer, the upstream
// clients for the agent worker and the content backend, and the webhook
// generation queue. It exposes them through one HTTP server.
//
// # HTTP API
//
// Routes are registered in gateway.go and handled in api.go:
//
//   - POST /api/livekit/token - Issue a room join credential (bearer)
//   - POST /api/livekit/agent - Ask the agent worker to join a room
//   - POST /api/vapi/webhook - Receive agent events (optional shared secret)
//   - GET /api/homework/files - List homework files (bearer)
//   - GET /api/homework/folders - List homework folders (bearer)
//   - POST /api/homework/folders - Create a homework folder (bearer)
//   - POST /api/homework/upload - Upload a file for indexing, multipart (bearer)
//   - POST /api/homework/chat - Relay a homework chat turn (bearer)
//   - GET /api/session/content - Fetch cached session content by cacheKey (bearer)
//   - POST /api/voice/generate-visual - Generate study material (bearer)
//   - POST /api/study-session/complete - Record a session summary (bearer)
//   - GET /api/study-sessions - List recorded sessions (bearer)
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (pings the store)
//   - GET /metrics - Prometheus metrics, when enabled
//
// Failed requests answer with:
//
//	{"error": "...", "details": ..., "upstreamStatus": 502}
//
// where details carries the upstream body, a generic note when the upstream
// was unreachable, or the failing session fields.
// Throttled routes set X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset, plus Retry-After on 429.
//
// # Listeners
//
// The server listens on server.http_addr, or on a Tailscale node when
// tailscale.enabled is set (plain HTTP on :80, HTTPS with tailnet certs, or
// Funnel on :443).
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Canceling the context shuts down the HTTP server, drains the generation
// queue, and closes the limiter and store.
package gateway
