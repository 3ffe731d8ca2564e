// Package credential issues room join credentials for the real-time session
// platform.
//
// A credential is an HS256 JWT in the LiveKit grant layout: the issuer is the
// platform API key, the subject is the sanitized participant identity, and a
// "video" grant names the room and its capabilities. Every credential carries
// the full capability set and a fixed ten minute lifetime.
//
// Room and participant names pass through Sanitize before signing. Callers must
// use the sanitized values returned in Credential rather than assume their
// input was echoed back.
package credential
