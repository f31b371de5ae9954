package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestShouldCache(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   bool
	}{
		{"government data read", "GET", "/api/v1/government/volunteers", true},
		{"government stats", "GET", "/api/v1/government/stats", true},
		{"post never cached", "POST", "/api/v1/government/volunteers", false},
		{"delete never cached", "DELETE", "/api/v1/government/volunteers", false},
		{"auth path", "GET", "/api/auth/login", false},
		{"admin path", "GET", "/admin/keys", false},
		{"non-government read", "GET", "/api/v1/volunteers", false},
		{"health", "GET", "/health", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if got := ShouldCache(r); got != tt.want {
				t.Errorf("ShouldCache(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestConditionalMatchIfNoneMatch(t *testing.T) {
	entry := &Entry{ETag: `"abc123"`, LastModified: time.Now().UTC().Truncate(time.Second)}

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"exact quoted match", `"abc123"`, true},
		{"unquoted match", "abc123", true},
		{"wildcard", "*", true},
		{"match in list", `"zzz", "abc123"`, true},
		{"no match", `"other"`, false},
		{"empty list entry only", `"nope", "also-nope"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/government/ngos", nil)
			r.Header.Set("If-None-Match", tt.header)
			if got := ConditionalMatch(r, entry); got != tt.want {
				t.Errorf("ConditionalMatch(If-None-Match: %s) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestConditionalMatchIfModifiedSince(t *testing.T) {
	modified := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{ETag: `"abc"`, LastModified: modified}

	tests := []struct {
		name  string
		since time.Time
		want  bool
	}{
		{"client has same timestamp", modified, true},
		{"client is newer", modified.Add(time.Hour), true},
		{"client is older", modified.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/government/ngos", nil)
			r.Header.Set("If-Modified-Since", tt.since.Format(http.TimeFormat))
			if got := ConditionalMatch(r, entry); got != tt.want {
				t.Errorf("ConditionalMatch(If-Modified-Since: %s) = %v, want %v", tt.since, got, tt.want)
			}
		})
	}
}

func TestConditionalMatchPrecedence(t *testing.T) {
	entry := &Entry{ETag: `"abc"`, LastModified: time.Now().Add(-time.Hour)}

	// A failing If-None-Match wins over a passing If-Modified-Since.
	r := httptest.NewRequest("GET", "/api/v1/government/ngos", nil)
	r.Header.Set("If-None-Match", `"mismatch"`)
	r.Header.Set("If-Modified-Since", time.Now().Format(http.TimeFormat))
	if ConditionalMatch(r, entry) {
		t.Error("If-None-Match mismatch should take precedence over If-Modified-Since")
	}
}

func TestConditionalMatchMalformedDate(t *testing.T) {
	entry := &Entry{ETag: `"abc"`, LastModified: time.Now().Add(-time.Hour)}

	r := httptest.NewRequest("GET", "/api/v1/government/ngos", nil)
	r.Header.Set("If-Modified-Since", "not a date")
	if ConditionalMatch(r, entry) {
		t.Error("malformed If-Modified-Since should not match")
	}
}

func TestConditionalMatchNoHeaders(t *testing.T) {
	entry := &Entry{ETag: `"abc"`, LastModified: time.Now()}

	r := httptest.NewRequest("GET", "/api/v1/government/ngos", nil)
	if ConditionalMatch(r, entry) {
		t.Error("request without conditional headers should not match")
	}
}
