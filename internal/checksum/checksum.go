// Package checksum computes content digests used for change detection and ETags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns a strong HTTP entity tag for data.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

// Matches reports whether an If-Match header value accepts the entity tag.
// An empty header or "*" always matches.
func Matches(ifMatch, etag string) bool {
	ifMatch = strings.TrimSpace(ifMatch)
	if ifMatch == "" || ifMatch == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || `"`+candidate+`"` == etag {
			return true
		}
	}
	return false
}
