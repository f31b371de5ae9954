package gateway

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/careconnect/data-gateway/internal/apikey"
	"github.com/careconnect/data-gateway/internal/middleware"
)

// APIKeyHeader carries the credential on data-plane requests.
const APIKeyHeader = "X-API-Key"

// Authenticate validates the X-API-Key header, resolves the tier, and
// stores both in the request context. Requests without a usable key are
// rejected before reaching any handler.
func Authenticate(validator *apikey.Validator, logger *zap.Logger) middleware.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)

			cred, err := validator.Validate(r.Context(), key)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}

			tier := apikey.ResolveTier(&cred)

			ctx := WithCredential(r.Context(), &cred)
			ctx = WithTier(ctx, tier)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects authenticated requests whose credential does
// not carry the given permission.
func RequirePermission(required apikey.Permission) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, ok := CredentialFromContext(r.Context())
			if !ok {
				WriteProblem(w, NewProblem(r, http.StatusUnauthorized, CodeMissingAPIKey, "API key is required"))
				return
			}

			if err := apikey.Authorize(cred, required); err != nil {
				writeAuthError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var permErr *apikey.InsufficientPermissionError
	switch {
	case errors.Is(err, apikey.ErrMissingKey):
		WriteProblem(w, NewProblem(r, http.StatusUnauthorized, CodeMissingAPIKey, "API key is required"))
	case errors.Is(err, apikey.ErrExpiredKey):
		WriteProblem(w, NewProblem(r, http.StatusUnauthorized, CodeExpiredAPIKey, "API key has expired"))
	case errors.Is(err, apikey.ErrInvalidKey):
		WriteProblem(w, NewProblem(r, http.StatusUnauthorized, CodeInvalidAPIKey, "Invalid API key"))
	case errors.As(err, &permErr):
		p := NewProblem(r, http.StatusForbidden, CodeInsufficientPermissions, "Insufficient permissions")
		p.Detail = "Required permission: " + string(permErr.Permission)
		WriteProblem(w, p)
	default:
		writeInternalError(w, r)
	}
}
