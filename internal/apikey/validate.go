package apikey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Errors related to credential validation.
var (
	ErrMissingKey  = errors.New("API key is missing")
	ErrInvalidKey  = errors.New("API key is invalid")
	ErrExpiredKey  = errors.New("API key has expired")
	ErrKeyNotFound = errors.New("API key not found")
)

// InsufficientPermissionError is returned when a credential lacks the
// permission a route requires. It carries the missing permission so the
// caller can build a structured problem response.
type InsufficientPermissionError struct {
	Permission Permission
}

func (e *InsufficientPermissionError) Error() string {
	return fmt.Sprintf("insufficient permissions: %s required", e.Permission)
}

// Store defines the persistence interface for credentials.
type Store interface {
	// GetByKey retrieves a credential by its secret key string.
	GetByKey(ctx context.Context, key string) (Credential, error)

	// GetByID retrieves a credential by its stable identifier.
	GetByID(ctx context.Context, id string) (Credential, error)

	// Create stores a new credential.
	Create(ctx context.Context, cred Credential) error

	// Update replaces the mutable fields of an existing credential.
	Update(ctx context.Context, cred Credential) error

	// List retrieves all credentials.
	List(ctx context.Context) ([]Credential, error)

	// IncrementUsage atomically increments the usage counter and sets the
	// last-used timestamp for the credential with the given key.
	IncrementUsage(ctx context.Context, key string) error
}

// Validator validates inbound API keys against a Store.
type Validator struct {
	store   Store
	timeout time.Duration
	logger  *zap.Logger
}

// NewValidator creates a Validator backed by the given store. Lookups are
// bounded by timeout; usage tracking failures are logged, never surfaced.
func NewValidator(store Store, timeout time.Duration, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Validator{store: store, timeout: timeout, logger: logger}
}

// Validate checks an inbound key and returns the matching credential.
// It fails with ErrMissingKey when no key is supplied, ErrInvalidKey when
// no usable record matches (unknown, paused, or revoked), and ErrExpiredKey
// when the credential's expiry has passed.
//
// On success it best-effort increments the usage counter and last-used
// timestamp; a failure to persist that side effect does not fail the request.
func (v *Validator) Validate(ctx context.Context, key string) (Credential, error) {
	if key == "" {
		return Credential{}, ErrMissingKey
	}

	if err := ValidateKeyFormat(key); err != nil {
		return Credential{}, ErrInvalidKey
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cred, err := v.store.GetByKey(lookupCtx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Credential{}, ErrInvalidKey
		}
		return Credential{}, fmt.Errorf("failed to retrieve credential: %w", err)
	}

	if cred.Status != StatusActive {
		return Credential{}, ErrInvalidKey
	}

	if cred.IsExpired() {
		return Credential{}, ErrExpiredKey
	}

	// Usage counters are informational; lost updates under races are tolerated.
	trackCtx, trackCancel := context.WithTimeout(ctx, v.timeout)
	defer trackCancel()
	if err := v.store.IncrementUsage(trackCtx, key); err != nil {
		v.logger.Warn("failed to track credential usage",
			zap.String("key", ObfuscateKey(key)),
			zap.Error(err))
	}

	return cred, nil
}

// Authorize checks that the credential grants the required permission.
func Authorize(cred *Credential, required Permission) error {
	if cred == nil {
		return ErrMissingKey
	}
	if !cred.HasPermission(required) {
		return &InsufficientPermissionError{Permission: required}
	}
	return nil
}
