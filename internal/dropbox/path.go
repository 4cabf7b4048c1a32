package dropbox

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath returns p in the form the API expects: NFC-normalized,
// one leading slash, no trailing slash, duplicate slashes collapsed, and
// the root as "". Identifiers such as "id:abc" or "rev:123" pass through
// with only NFC applied.
func NormalizePath(p string) string {
	p = norm.NFC.String(strings.TrimSpace(p))

	if isPathIdentifier(p) {
		return p
	}

	parts := strings.Split(p, "/")
	kept := parts[:0]

	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}

	if len(kept) == 0 {
		return ""
	}

	return "/" + strings.Join(kept, "/")
}

func isPathIdentifier(p string) bool {
	for _, prefix := range []string{"id:", "rev:", "ns:"} {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}

	return false
}
