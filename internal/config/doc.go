// Package config handles configuration loading for session-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SESSION_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/session-gateway/gateway.yaml
//  3. ~/.config/session-gateway/gateway.yaml
//
// Files ending in .toml are read as TOML; anything else is YAML. Both use
// the same keys.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${SESSION_GATEWAY_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	database:
//	  path: "/var/lib/session-gateway/gateway.db"
//
//	auth:
//	  jwt_secret: "${SESSION_GATEWAY_JWT_SECRET}"   # at least 32 bytes
//
//	livekit:
//	  url: "wss://example.livekit.cloud"
//	  api_key: "${LIVEKIT_API_KEY}"
//	  api_secret: "${LIVEKIT_API_SECRET}"
//
//	agent:
//	  webhook_url: "https://agent.example.com/join"
//	  api_key: "${AGENT_API_KEY}"
//	  timeout: "15s"
//	  retry_attempts: 3
//
//	backend:
//	  base_url: "https://backend.example.com"
//	  timeout: "15s"
//
//	webhook:
//	  secret: "${VAPI_WEBHOOK_SECRET}"   # optional X-Vapi-Secret check
//	  workers: 4
//	  queue_size: 64
//	  generation_timeout: "60s"
//
//	ratelimit:
//	  backend: "memory"   # memory, redis
//	  redis:
//	    addr: "localhost:6379"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Validation
//
// Load validates the server address (unless Tailscale is enabled), the
// database path, the JWT secret length, URL schemes, the rate limit backend,
// and duration syntax. LiveKit keys and upstream URLs may be left empty;
// the operations that need them fail per request with a configuration error.
package config
