// Package auth authenticates actors calling the session gateway.
//
// # Actor Tokens
//
// Clients send an HS256 JWT in the Authorization header:
//
//	Authorization: Bearer <token>
//
// The token's "sub" claim is the actor ID. Tokens are signed with the
// configured auth.jwt_secret, which must be at least MinSecretLength bytes.
// The CLI mints tokens for testing:
//
//	session-gateway token --actor user-123
//
// # Middleware
//
// HTTPAuthMiddleware verifies the token and stores an AuthContext in the
// request context; handlers read it with FromContext or ActorID.
//
// SharedSecretMiddleware protects endpoints called by the voice-agent
// platform, which sends a static secret header instead of a JWT.
package auth
