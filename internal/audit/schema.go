// Package audit provides the append-only audit trail for administrative
// actions on API credentials and access requests. Entries are immutable
// once written; no update or delete operation exists.
package audit

import (
	"time"
)

// TargetType identifies what kind of resource an administrative action affected.
type TargetType string

const (
	TargetAPIKey        TargetType = "api_key"
	TargetAccessRequest TargetType = "access_request"
	TargetCache         TargetType = "cache"
)

// Administrative actions recorded in the audit trail.
const (
	ActionGenerateKey    = "generate_key"
	ActionRevokeKey      = "revoke_key"
	ActionEditKey        = "edit_key"
	ActionPauseKey       = "pause_key"
	ActionResumeKey      = "resume_key"
	ActionApproveRequest = "approve_request"
	ActionRejectRequest  = "reject_request"
	ActionBulkRevokeKeys = "bulk_revoke_keys"
	ActionPurgeCache     = "purge_cache"
)

// Entry is an immutable record of a privileged administrative action.
type Entry struct {
	// Timestamp when the action occurred (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Action is one of the administrative action constants.
	Action string `json:"action"`

	// PerformedBy identifies the administrator who performed the action.
	PerformedBy string `json:"performed_by"`

	// TargetType and TargetID identify the affected resource.
	TargetType TargetType `json:"target_type"`
	TargetID   string     `json:"target_id"`

	// TargetName is the human-readable name of the affected resource.
	TargetName string `json:"target_name"`

	// Details contains additional structured context (no secrets).
	Details map[string]any `json:"details,omitempty"`

	// IPAddress and UserAgent of the administrative client.
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// NewEntry creates an audit entry for the given action and target.
// The timestamp is set to the current time.
func NewEntry(action, performedBy string, targetType TargetType, targetID, targetName string) *Entry {
	return &Entry{
		Timestamp:   time.Now().UTC(),
		Action:      action,
		PerformedBy: performedBy,
		TargetType:  targetType,
		TargetID:    targetID,
		TargetName:  targetName,
	}
}

// WithDetail adds a detail key-value pair to the entry. Secrets must be
// obfuscated before being recorded.
func (e *Entry) WithDetail(key string, value any) *Entry {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithClient records the IP address and user agent of the administrative client.
func (e *Entry) WithClient(ip, userAgent string) *Entry {
	e.IPAddress = ip
	e.UserAgent = userAgent
	return e
}
