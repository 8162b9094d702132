package storage

import (
	"strings"
	"unicode"
)

// SanitizeName reduces an arbitrary display name to a safe path component:
// lowercase ASCII letters, digits and single hyphens. Everything else
// collapses to a hyphen.
func SanitizeName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	var b strings.Builder
	lastHyphen := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// BaseName strips the extension from a filename and sanitizes the rest.
func BaseName(filename string) string {
	base := filename
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	return SanitizeName(base)
}
