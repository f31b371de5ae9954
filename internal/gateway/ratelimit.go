package gateway

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/careconnect/data-gateway/internal/middleware"
	"github.com/careconnect/data-gateway/internal/ratelimit"
)

// tierMessages explain the hourly quota on 429 responses.
var tierMessages = map[string]string{
	"basic":      "Basic tier allows 1000 requests per hour. Upgrade for higher limits.",
	"standard":   "Standard tier allows 5000 requests per hour.",
	"premium":    "Premium tier allows 10000 requests per hour.",
	"enterprise": "Enterprise tier allows 50000 requests per hour.",
}

// rateLimitResponse is the 429 body for quota rejections.
type rateLimitResponse struct {
	Error    string          `json:"error"`
	Message  string          `json:"message"`
	Tier     string          `json:"tier"`
	Limits   rateLimitLimits `json:"limits"`
	Endpoint string          `json:"endpoint"`
}

type rateLimitLimits struct {
	Hourly int `json:"hourly"`
	Burst  int `json:"burst"`
}

// RateLimit enforces the burst window first, then the hourly window,
// both scaled by the endpoint's cost multiplier. Health and ping probes
// are never counted.
func RateLimit(limiter ratelimit.Limiter, profile *ratelimit.CostProfile, logger *zap.Logger) middleware.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptFromRateLimit(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			tier := TierFromContext(r.Context())
			limits := tier.Limits()
			multiplier := profile.Multiplier(r.URL.Path)

			effectiveBurst := ratelimit.EffectiveLimit(limits.BurstMax, multiplier)
			effectiveHourly := ratelimit.EffectiveLimit(limits.HourlyMax, multiplier)

			identity := limitIdentity(r)

			// Burst is the stricter, shorter window.
			if err := limiter.Allow(r.Context(), identity, ratelimit.ScopeBurst, effectiveBurst); err != nil {
				writeLimitError(w, r, err, string(tier), effectiveHourly, effectiveBurst, logger)
				return
			}
			if err := limiter.Allow(r.Context(), identity, ratelimit.ScopeHourly, effectiveHourly); err != nil {
				writeLimitError(w, r, err, string(tier), effectiveHourly, effectiveBurst, logger)
				return
			}

			w.Header().Set("X-RateLimit-Tier", string(tier))
			w.Header().Set("X-RateLimit-Hourly", strconv.Itoa(effectiveHourly))
			w.Header().Set("X-RateLimit-Burst", strconv.Itoa(effectiveBurst))

			next.ServeHTTP(w, r)
		})
	}
}

func writeLimitError(w http.ResponseWriter, r *http.Request, err error, tier string, hourly, burst int, logger *zap.Logger) {
	var limitErr *ratelimit.LimitExceededError
	if !errors.As(err, &limitErr) {
		logger.Error("rate limiter failure", zap.Error(err), zap.String("path", r.URL.Path))
		writeInternalError(w, r)
		return
	}

	limitErr.Tier = tier
	limitErr.Endpoint = r.URL.Path

	code := CodeRateLimitExceeded
	errTitle := "Rate limit exceeded"
	message := tierMessages[tier]
	if limitErr.Scope == ratelimit.ScopeBurst {
		code = CodeBurstRateExceeded
		errTitle = "Burst rate limit exceeded"
		message = "Too many requests in a short time. Burst limit: " + strconv.Itoa(burst) + " per minute."
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("Retry-After", strconv.Itoa(limitErr.RetryAfter()))
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(rateLimitResponse{
		Error:    errTitle,
		Message:  message,
		Tier:     limitErr.Tier,
		Limits:   rateLimitLimits{Hourly: hourly, Burst: burst},
		Endpoint: limitErr.Endpoint,
	})
}

func exemptFromRateLimit(path string) bool {
	return strings.Contains(path, "/health") || strings.Contains(path, "/ping") || strings.Contains(path, "/live")
}

// limitIdentity keys counters by credential ID, falling back to the
// client IP for unauthenticated probes.
func limitIdentity(r *http.Request) string {
	if cred, ok := CredentialFromContext(r.Context()); ok {
		return "api_key_" + cred.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "ip_" + r.RemoteAddr
	}
	return "ip_" + host
}
