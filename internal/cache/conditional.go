package cache

import (
	"net/http"
	"strings"
)

// Path prefixes never served from cache.
var uncacheablePrefixes = []string{"/api/auth", "/admin"}

// ShouldCache reports whether a request is eligible for the response
// cache: idempotent reads against the public government data surface.
// Authentication and administrative paths are never cached.
func ShouldCache(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	for _, prefix := range uncacheablePrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	return strings.Contains(r.URL.Path, "/government/")
}

// ConditionalMatch reports whether the request's conditional headers match
// the cached entry's validators, so the caller can answer 304 without a
// body. If-None-Match takes precedence over If-Modified-Since.
func ConditionalMatch(r *http.Request, entry *Entry) bool {
	if inm := strings.TrimSpace(r.Header.Get("If-None-Match")); inm != "" {
		stored := strings.Trim(entry.ETag, `"`)
		for _, part := range strings.Split(inm, ",") {
			candidate := strings.Trim(strings.TrimSpace(part), `"`)
			if candidate == "*" || candidate == stored {
				return true
			}
		}
		return false
	}

	if ims := strings.TrimSpace(r.Header.Get("If-Modified-Since")); ims != "" {
		imsTime, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		// Not modified when the stored representation is at or before the
		// client's timestamp.
		return !entry.LastModified.After(imsTime)
	}

	return false
}
