package apikey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/careconnect/data-gateway/internal/audit"
	"github.com/google/uuid"
)

// ErrNotActive is returned when pausing a credential that is not active.
var ErrNotActive = errors.New("credential is not active")

// ErrNotPaused is returned when resuming a credential that is not paused.
var ErrNotPaused = errors.New("credential is not paused")

// Actor identifies the administrator performing a mutation, for audit
// attribution.
type Actor struct {
	ID        string
	IPAddress string
	UserAgent string
}

// IssueOptions controls credential issuance.
type IssueOptions struct {
	Name         string
	Organization string
	Permissions  []Permission
	TierOverride Tier          // Optional; empty for automatic resolution
	Expiration   time.Duration // Zero or negative for no expiration
}

// EditOptions holds the mutable fields an administrator may change.
type EditOptions struct {
	Name         *string
	Permissions  []Permission
	TierOverride *Tier
	ExpiresAt    *time.Time
}

// Manager performs administrative mutations on credentials. Every
// successful mutation emits exactly one audit entry before returning.
type Manager struct {
	store    Store
	recorder *audit.Recorder
}

// NewManager creates a Manager over the given store and audit recorder.
func NewManager(store Store, recorder *audit.Recorder) *Manager {
	return &Manager{store: store, recorder: recorder}
}

// Issue generates and stores a new credential.
func (m *Manager) Issue(ctx context.Context, actor Actor, opts IssueOptions) (Credential, error) {
	key, err := GenerateKey()
	if err != nil {
		return Credential{}, fmt.Errorf("failed to generate key: %w", err)
	}

	now := time.Now().UTC()
	cred := Credential{
		ID:           uuid.New().String(),
		Key:          key,
		Name:         opts.Name,
		Organization: opts.Organization,
		CreatedBy:    actor.ID,
		Status:       StatusActive,
		Permissions:  opts.Permissions,
		TierOverride: opts.TierOverride,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if opts.Expiration > 0 {
		expiry := now.Add(opts.Expiration)
		cred.ExpiresAt = &expiry
	}

	if err := cred.ValidatePermissions(); err != nil {
		return Credential{}, err
	}

	if err := m.store.Create(ctx, cred); err != nil {
		return Credential{}, fmt.Errorf("failed to store credential: %w", err)
	}

	m.record(actor, audit.ActionGenerateKey, &cred, nil)
	return cred, nil
}

// Revoke permanently disables a credential. Revocation is terminal: a
// revoked credential is always rejected, even if it never expired.
func (m *Manager) Revoke(ctx context.Context, actor Actor, id string) (Credential, error) {
	cred, err := m.transition(ctx, id, StatusRevoked, nil)
	if err != nil {
		return Credential{}, err
	}
	m.record(actor, audit.ActionRevokeKey, &cred, nil)
	return cred, nil
}

// Pause temporarily disables an active credential.
func (m *Manager) Pause(ctx context.Context, actor Actor, id string) (Credential, error) {
	from := StatusActive
	cred, err := m.transition(ctx, id, StatusPaused, &from)
	if err != nil {
		if errors.Is(err, errWrongStatus) {
			return Credential{}, ErrNotActive
		}
		return Credential{}, err
	}
	m.record(actor, audit.ActionPauseKey, &cred, nil)
	return cred, nil
}

// Resume re-enables a paused credential.
func (m *Manager) Resume(ctx context.Context, actor Actor, id string) (Credential, error) {
	from := StatusPaused
	cred, err := m.transition(ctx, id, StatusActive, &from)
	if err != nil {
		if errors.Is(err, errWrongStatus) {
			return Credential{}, ErrNotPaused
		}
		return Credential{}, err
	}
	m.record(actor, audit.ActionResumeKey, &cred, nil)
	return cred, nil
}

// Edit updates the mutable fields of a credential.
func (m *Manager) Edit(ctx context.Context, actor Actor, id string, opts EditOptions) (Credential, error) {
	cred, err := m.store.GetByID(ctx, id)
	if err != nil {
		return Credential{}, err
	}

	changes := map[string]any{}
	if opts.Name != nil && *opts.Name != cred.Name {
		changes["name"] = *opts.Name
		cred.Name = *opts.Name
	}
	if opts.Permissions != nil {
		cred.Permissions = opts.Permissions
		if err := cred.ValidatePermissions(); err != nil {
			return Credential{}, err
		}
		changes["permissions"] = opts.Permissions
	}
	if opts.TierOverride != nil {
		cred.TierOverride = *opts.TierOverride
		changes["tier_override"] = string(*opts.TierOverride)
	}
	if opts.ExpiresAt != nil {
		cred.ExpiresAt = opts.ExpiresAt
		changes["expires_at"] = opts.ExpiresAt.Format(time.RFC3339)
	}
	cred.UpdatedAt = time.Now().UTC()

	if err := m.store.Update(ctx, cred); err != nil {
		return Credential{}, fmt.Errorf("failed to update credential: %w", err)
	}

	m.record(actor, audit.ActionEditKey, &cred, map[string]any{"changes": changes})
	return cred, nil
}

// BulkRevoke revokes multiple credentials, emitting a single audit entry
// for the batch. Credentials that cannot be revoked are skipped and the
// count of revoked credentials is returned.
func (m *Manager) BulkRevoke(ctx context.Context, actor Actor, ids []string) (int, error) {
	revoked := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := m.transition(ctx, id, StatusRevoked, nil); err != nil {
			continue
		}
		revoked = append(revoked, id)
	}

	if len(revoked) > 0 {
		entry := audit.NewEntry(audit.ActionBulkRevokeKeys, actor.ID, audit.TargetAPIKey,
			strings.Join(revoked, ","), fmt.Sprintf("%d API keys", len(revoked))).
			WithDetail("key_ids", revoked).
			WithDetail("count", len(revoked)).
			WithClient(actor.IPAddress, actor.UserAgent)
		m.recorder.Record(entry)
	}
	return len(revoked), nil
}

var errWrongStatus = errors.New("credential is in the wrong status for this transition")

func (m *Manager) transition(ctx context.Context, id string, to Status, from *Status) (Credential, error) {
	cred, err := m.store.GetByID(ctx, id)
	if err != nil {
		return Credential{}, err
	}
	if from != nil && cred.Status != *from {
		return Credential{}, errWrongStatus
	}
	cred.Status = to
	cred.UpdatedAt = time.Now().UTC()
	if err := m.store.Update(ctx, cred); err != nil {
		return Credential{}, fmt.Errorf("failed to update credential: %w", err)
	}
	return cred, nil
}

func (m *Manager) record(actor Actor, action string, cred *Credential, details map[string]any) {
	entry := audit.NewEntry(action, actor.ID, audit.TargetAPIKey, cred.ID, cred.Name).
		WithDetail("key", ObfuscateKey(cred.Key)).
		WithClient(actor.IPAddress, actor.UserAgent)
	for k, v := range details {
		entry.WithDetail(k, v)
	}
	m.recorder.Record(entry)
}
