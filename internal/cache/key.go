package cache

import (
	"net/http"
	"sort"
	"strings"
)

// AnonymousIdentity is the caller identity used in cache keys when no
// credential is present.
const AnonymousIdentity = "anonymous"

// KeyFromRequest builds the cache key for a request and caller identity:
// METHOD|path|identity|sorted(query). The identity is part of the key so
// permission-scoped responses are never cross-served between callers with
// different access. Host and scheme are intentionally excluded.
func KeyFromRequest(r *http.Request, identity string) string {
	if identity == "" {
		identity = AnonymousIdentity
	}

	b := strings.Builder{}
	b.WriteString(r.Method)
	b.WriteString("|")
	b.WriteString(r.URL.Path)
	b.WriteString("|")
	b.WriteString(identity)
	b.WriteString("|")

	// Sorted query to normalize the key
	query := r.URL.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := query[k]
		sort.Strings(vals)
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strings.Join(vals, ","))
		b.WriteString("&")
	}

	return b.String()
}
