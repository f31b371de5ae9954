package gateway

import (
	"context"

	"github.com/careconnect/data-gateway/internal/apikey"
)

type ctxKey string

const (
	credentialKey ctxKey = "gateway.credential"
	tierKey       ctxKey = "gateway.tier"
	versionKey    ctxKey = "gateway.apiVersion"
)

// WithCredential stores the authenticated credential in the context.
func WithCredential(ctx context.Context, cred *apikey.Credential) context.Context {
	return context.WithValue(ctx, credentialKey, cred)
}

// CredentialFromContext retrieves the authenticated credential, if any.
func CredentialFromContext(ctx context.Context) (*apikey.Credential, bool) {
	cred, ok := ctx.Value(credentialKey).(*apikey.Credential)
	return cred, ok
}

// WithTier stores the resolved rate-limit tier in the context.
func WithTier(ctx context.Context, tier apikey.Tier) context.Context {
	return context.WithValue(ctx, tierKey, tier)
}

// TierFromContext retrieves the resolved tier, defaulting to basic.
func TierFromContext(ctx context.Context) apikey.Tier {
	if tier, ok := ctx.Value(tierKey).(apikey.Tier); ok {
		return tier
	}
	return apikey.TierBasic
}

// WithVersion stores the requested API version in the context.
func WithVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, versionKey, version)
}

// VersionFromContext retrieves the requested API version, if any.
func VersionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(versionKey).(string); ok {
		return v
	}
	return ""
}
