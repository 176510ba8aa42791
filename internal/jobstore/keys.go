package jobstore

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// maxRefLen bounds the readable part of a key.
const maxRefLen = 96

// Key builds the storage key of a print reference. Refs come from the print
// service and from request paths, so anything outside [A-Za-z0-9_-] is
// replaced; a hash of the raw ref keeps such keys distinct.
func Key(prefix, ref string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "mfp"
	}
	safe := sanitizeRef(ref)
	if len(safe) > maxRefLen {
		safe = safe[:maxRefLen]
	}
	if safe == ref {
		return fmt.Sprintf("%s:job:%s", prefix, safe)
	}
	return fmt.Sprintf("%s:job:%s:h=%016x", prefix, safe, xxhash.Sum64String(ref))
}

func sanitizeRef(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		if !isAlphaNum(r) && r != '_' && r != '-' {
			out = '-'
		}
		if out == '-' && prev == '-' {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
