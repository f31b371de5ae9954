package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Access request lifecycle states.
const (
	AccessRequestPending     = "pending"
	AccessRequestUnderReview = "under_review"
	AccessRequestApproved    = "approved"
	AccessRequestRejected    = "rejected"
)

// ErrAccessRequestNotFound is returned when an access request does not exist.
var ErrAccessRequestNotFound = errors.New("access request not found")

// AccessRequest is an organization's application for API access.
type AccessRequest struct {
	ID            string
	Organization  string
	ContactPerson string
	Email         string
	Purpose       string
	DataTypes     []string
	Justification string
	Status        string
	ReviewNotes   string
	ReviewedBy    string
	ReviewedAt    *time.Time
	APIKeyID      string // Set when approval issued a credential
	CreatedAt     time.Time
}

// CreateAccessRequest stores a new access request.
func (d *DB) CreateAccessRequest(ctx context.Context, req AccessRequest) error {
	dataTypes, err := json.Marshal(req.DataTypes)
	if err != nil {
		return fmt.Errorf("failed to encode data types: %w", err)
	}

	query := `
	INSERT INTO access_requests (id, organization, contact_person, email, purpose, data_types, justification, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = d.db.ExecContext(
		ctx,
		query,
		req.ID,
		req.Organization,
		req.ContactPerson,
		req.Email,
		req.Purpose,
		string(dataTypes),
		req.Justification,
		req.Status,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create access request: %w", err)
	}

	return nil
}

// GetAccessRequest retrieves an access request by ID.
func (d *DB) GetAccessRequest(ctx context.Context, id string) (AccessRequest, error) {
	query := `
	SELECT id, organization, contact_person, email, purpose, data_types, justification, status, review_notes, reviewed_by, reviewed_at, api_key_id, created_at
	FROM access_requests
	WHERE id = ?
	`

	var req AccessRequest
	var dataTypes string
	var justification, reviewNotes, reviewedBy, apiKeyID sql.NullString
	var reviewedAt sql.NullTime

	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&req.ID,
		&req.Organization,
		&req.ContactPerson,
		&req.Email,
		&req.Purpose,
		&dataTypes,
		&justification,
		&req.Status,
		&reviewNotes,
		&reviewedBy,
		&reviewedAt,
		&apiKeyID,
		&req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AccessRequest{}, ErrAccessRequestNotFound
		}
		return AccessRequest{}, fmt.Errorf("failed to get access request: %w", err)
	}

	if err := json.Unmarshal([]byte(dataTypes), &req.DataTypes); err != nil {
		return AccessRequest{}, fmt.Errorf("failed to decode data types: %w", err)
	}
	req.Justification = justification.String
	req.ReviewNotes = reviewNotes.String
	req.ReviewedBy = reviewedBy.String
	req.APIKeyID = apiKeyID.String
	if reviewedAt.Valid {
		req.ReviewedAt = &reviewedAt.Time
	}

	return req, nil
}

// ListAccessRequests retrieves access requests, optionally filtered by
// status, newest first.
func (d *DB) ListAccessRequests(ctx context.Context, status string) ([]AccessRequest, error) {
	query := `
	SELECT id, organization, contact_person, email, purpose, data_types, justification, status, review_notes, reviewed_by, reviewed_at, api_key_id, created_at
	FROM access_requests
	`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list access requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var requests []AccessRequest
	for rows.Next() {
		var req AccessRequest
		var dataTypes string
		var justification, reviewNotes, reviewedBy, apiKeyID sql.NullString
		var reviewedAt sql.NullTime

		err := rows.Scan(
			&req.ID,
			&req.Organization,
			&req.ContactPerson,
			&req.Email,
			&req.Purpose,
			&dataTypes,
			&justification,
			&req.Status,
			&reviewNotes,
			&reviewedBy,
			&reviewedAt,
			&apiKeyID,
			&req.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access request: %w", err)
		}

		if err := json.Unmarshal([]byte(dataTypes), &req.DataTypes); err != nil {
			return nil, fmt.Errorf("failed to decode data types: %w", err)
		}
		req.Justification = justification.String
		req.ReviewNotes = reviewNotes.String
		req.ReviewedBy = reviewedBy.String
		req.APIKeyID = apiKeyID.String
		if reviewedAt.Valid {
			req.ReviewedAt = &reviewedAt.Time
		}

		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate access requests: %w", err)
	}

	return requests, nil
}

// ReviewAccessRequest records the review outcome for an access request.
func (d *DB) ReviewAccessRequest(ctx context.Context, id, status, notes, reviewedBy, apiKeyID string) error {
	query := `
	UPDATE access_requests
	SET status = ?, review_notes = ?, reviewed_by = ?, reviewed_at = ?, api_key_id = ?
	WHERE id = ?
	`

	result, err := d.db.ExecContext(ctx, query, status, notes, reviewedBy, time.Now().UTC(), nullString(apiKeyID), id)
	if err != nil {
		return fmt.Errorf("failed to review access request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccessRequestNotFound
	}

	return nil
}
