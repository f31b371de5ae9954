// Package apikey implements the API credential lifecycle for the government
// data gateway: key format and generation, credential status and permission
// checks, quota tier resolution, and the administrative operations that
// mutate credentials.
package apikey

import (
	"fmt"
	"strings"
	"time"
)

// Status is the stored lifecycle state of a credential.
type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusRevoked Status = "revoked"
	// StatusExpired is a derived state: storage keeps the credential active
	// and expiry is computed from ExpiresAt at read time.
	StatusExpired Status = "expired"
)

// Resources that permissions can reference.
var knownResources = map[string]struct{}{
	"volunteers":  {},
	"ngos":        {},
	"events":      {},
	"campaigns":   {},
	"communities": {},
	"stories":     {},
	"reports":     {},
}

// Permission is a capability token of the form "{read|write}:{resource}".
type Permission string

// Valid reports whether the permission names a known action and resource.
func (p Permission) Valid() bool {
	action, resource, ok := strings.Cut(string(p), ":")
	if !ok {
		return false
	}
	if action != "read" && action != "write" {
		return false
	}
	_, known := knownResources[resource]
	return known
}

// ReadPermission returns the read capability token for a resource.
func ReadPermission(resource string) Permission {
	return Permission("read:" + resource)
}

// Credential represents an API credential and its permission set.
type Credential struct {
	ID           string       // Stable identifier (UUID), used for rate-limit keying and admin operations
	Key          string       // The opaque secret token (gov_...), used for authentication
	Name         string       // Human-readable name
	Organization string       // Owning organization, drives tier resolution
	CreatedBy    string       // Reference to the administrator who issued the key
	Status       Status       // Stored status; expired is derived, never stored
	Permissions  []Permission // Capability tokens granted to this credential
	TierOverride Tier         // Optional admin-assigned tier (empty for automatic resolution)
	UsageCount   int64        // Monotonic count of validated requests
	LastUsedAt   *time.Time   // When the credential was last used (nil if never)
	ExpiresAt    *time.Time   // When the credential expires (nil for no expiration)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsExpired reports whether the credential's expiry has passed.
func (c *Credential) IsExpired() bool {
	return c.ExpiresAt != nil && time.Now().After(*c.ExpiresAt)
}

// IsUsable reports whether the credential may authenticate a request:
// stored status active and not past its expiry.
func (c *Credential) IsUsable() bool {
	return c.Status == StatusActive && !c.IsExpired()
}

// EffectiveStatus returns the stored status, substituting the derived
// expired state when the expiry has passed an otherwise active credential.
func (c *Credential) EffectiveStatus() Status {
	if c.Status == StatusActive && c.IsExpired() {
		return StatusExpired
	}
	return c.Status
}

// HasPermission reports whether the permission token is present in the
// credential's permission set.
func (c *Credential) HasPermission(p Permission) bool {
	for _, granted := range c.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// ValidatePermissions checks that every permission on the credential is a
// known capability token.
func (c *Credential) ValidatePermissions() error {
	for _, p := range c.Permissions {
		if !p.Valid() {
			return fmt.Errorf("unknown permission %q", p)
		}
	}
	return nil
}
