package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Application error codes carried in problem responses.
const (
	CodeMissingAPIKey           = "MISSING_API_KEY"
	CodeInvalidAPIKey           = "INVALID_API_KEY"
	CodeExpiredAPIKey           = "EXPIRED_API_KEY"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeBurstRateExceeded       = "BURST_RATE_EXCEEDED"
	CodeInternalServerError     = "INTERNAL_SERVER_ERROR"
)

// Problem is an RFC 7807 problem-details response body.
type Problem struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Code       string `json:"code"`
	Detail     string `json:"detail,omitempty"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	Method     string `json:"method"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	APIVersion string `json:"apiVersion,omitempty"`
}

// NewProblem builds a problem body for the given request.
func NewProblem(r *http.Request, status int, code, title string) Problem {
	return Problem{
		Type:       "/errors/" + code,
		Title:      title,
		Status:     status,
		Code:       code,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       r.URL.Path,
		Method:     r.Method,
		APIVersion: VersionFromContext(r.Context()),
	}
}

// WriteProblem sends a problem-details response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Error-Code", p.Code)
	if p.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(p.RetryAfter))
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeInternalError(w http.ResponseWriter, r *http.Request) {
	WriteProblem(w, NewProblem(r, http.StatusInternalServerError, CodeInternalServerError, "Internal server error"))
}
