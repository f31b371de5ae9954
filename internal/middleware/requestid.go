package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/careconnect/data-gateway/internal/logging"
)

// Middleware defines a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so the first in the list runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// RequestID propagates request and correlation IDs through the request
// context and echoes them on the response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := getOrGenerateID(r.Header.Get("X-Request-ID"))
			correlationID := getOrGenerateID(r.Header.Get("X-Correlation-ID"))

			ctx := logging.WithRequestID(r.Context(), requestID)
			ctx = logging.WithCorrelationID(ctx, correlationID)

			w.Header().Set("X-Request-ID", requestID)
			w.Header().Set("X-Correlation-ID", correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// getOrGenerateID returns the provided ID if non-empty, otherwise a new UUID.
func getOrGenerateID(existingID string) string {
	existingID = strings.TrimSpace(existingID)
	if existingID == "" {
		return uuid.New().String()
	}
	return existingID
}
