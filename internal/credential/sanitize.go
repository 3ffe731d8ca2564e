// ABOUTME: Identifier sanitization for room and participant names
// ABOUTME: Keeps only [A-Za-z0-9-_] and truncates to MaxIdentifierLength

package credential

// MaxIdentifierLength is the longest room or participant name put in a credential.
const MaxIdentifierLength = 50

// Sanitize removes every character outside [A-Za-z0-9-_] and truncates the
// result to MaxIdentifierLength. It is idempotent.
func Sanitize(s string) string {
	out := make([]byte, 0, min(len(s), MaxIdentifierLength))
	for i := 0; i < len(s) && len(out) < MaxIdentifierLength; i++ {
		if isAllowed(s[i]) {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func isAllowed(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}
