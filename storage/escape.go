package storage

import (
	"fmt"
	"strings"
)

// EscapeKey maps an arbitrary key to a storage-safe identifier.
//
// Letters, digits, '-' and '_' pass through unchanged. Every other byte is
// replaced by "=HH" (uppercase hex). Because '=' itself is escaped, the
// mapping is injective: distinct keys never collide. The original key is
// carried in the stored record, never recovered from the escaped form.
func EscapeKey(key string) string {
	if !needsEscape(key) {
		return key
	}

	var b strings.Builder
	b.Grow(len(key) + 8)
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isSafeByte(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}

func needsEscape(key string) bool {
	for i := 0; i < len(key); i++ {
		if !isSafeByte(key[i]) {
			return true
		}
	}
	return false
}

func isSafeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	default:
		return false
	}
}
