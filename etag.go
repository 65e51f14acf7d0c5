package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// etagFor hashes a response body into a strong entity tag.
func etagFor(body []byte) string {
	hash := sha256.Sum256(body)
	return `"` + hex.EncodeToString(hash[:8]) + `"`
}

// etagMatches reports whether an If-None-Match header matches tag.
func etagMatches(ifNoneMatch, tag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == tag {
			return true
		}
	}
	return false
}

// etagEligible reports whether a response gets an ETag: successful GET or
// HEAD responses only.
func etagEligible(method string, status int) bool {
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	return status >= 200 && status < 300
}
