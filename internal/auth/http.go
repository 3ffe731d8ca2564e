// ABOUTME: HTTP middleware for JWT and shared-secret authentication
// ABOUTME: Extracts the bearer token, verifies it, and adds the actor to the context

package auth

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates
// JWT tokens and adds the actor to the request context.
func HTTPAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logger.Debug("rejecting request", "path", r.URL.Path, "reason", errMsg)
				writeUnauthorized(w)
				return
			}

			actorID, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("rejecting request", "path", r.URL.Path, "error", err)
				writeUnauthorized(w)
				return
			}

			ctx := WithAuth(r.Context(), &AuthContext{ActorID: actorID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SharedSecretMiddleware requires header to equal secret. An empty secret
// disables the check.
func SharedSecretMiddleware(header, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
