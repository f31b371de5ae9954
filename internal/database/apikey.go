package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/careconnect/data-gateway/internal/apikey"
)

// Create stores a new credential.
func (d *DB) Create(ctx context.Context, cred apikey.Credential) error {
	permissions, err := marshalPermissions(cred.Permissions)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO api_keys (id, key, name, organization, created_by, status, permissions, tier_override, usage_count, last_used_at, expires_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = d.db.ExecContext(
		ctx,
		query,
		cred.ID,
		cred.Key,
		cred.Name,
		cred.Organization,
		cred.CreatedBy,
		string(cred.Status),
		permissions,
		nullString(string(cred.TierOverride)),
		cred.UsageCount,
		cred.LastUsedAt,
		cred.ExpiresAt,
		cred.CreatedAt,
		cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// GetByKey retrieves a credential by its secret key string.
func (d *DB) GetByKey(ctx context.Context, key string) (apikey.Credential, error) {
	return d.getCredential(ctx, "key", key)
}

// GetByID retrieves a credential by its stable identifier.
func (d *DB) GetByID(ctx context.Context, id string) (apikey.Credential, error) {
	return d.getCredential(ctx, "id", id)
}

func (d *DB) getCredential(ctx context.Context, column, value string) (apikey.Credential, error) {
	query := fmt.Sprintf(`
	SELECT id, key, name, organization, created_by, status, permissions, tier_override, usage_count, last_used_at, expires_at, created_at, updated_at
	FROM api_keys
	WHERE %s = ?
	`, column)

	row := d.db.QueryRowContext(ctx, query, value)
	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apikey.Credential{}, apikey.ErrKeyNotFound
		}
		return apikey.Credential{}, fmt.Errorf("failed to get API key: %w", err)
	}
	return cred, nil
}

// Update replaces the mutable fields of an existing credential.
func (d *DB) Update(ctx context.Context, cred apikey.Credential) error {
	permissions, err := marshalPermissions(cred.Permissions)
	if err != nil {
		return err
	}

	query := `
	UPDATE api_keys
	SET name = ?, organization = ?, status = ?, permissions = ?, tier_override = ?, expires_at = ?, updated_at = ?
	WHERE id = ?
	`

	result, err := d.db.ExecContext(
		ctx,
		query,
		cred.Name,
		cred.Organization,
		string(cred.Status),
		permissions,
		nullString(string(cred.TierOverride)),
		cred.ExpiresAt,
		cred.UpdatedAt,
		cred.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apikey.ErrKeyNotFound
	}

	return nil
}

// List retrieves all credentials, newest first.
func (d *DB) List(ctx context.Context) ([]apikey.Credential, error) {
	query := `
	SELECT id, key, name, organization, created_by, status, permissions, tier_override, usage_count, last_used_at, expires_at, created_at, updated_at
	FROM api_keys
	ORDER BY created_at DESC
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []apikey.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate API keys: %w", err)
	}

	return creds, nil
}

// IncrementUsage atomically increments the usage counter and sets the
// last-used timestamp for the credential with the given key.
func (d *DB) IncrementUsage(ctx context.Context, key string) error {
	query := `
	UPDATE api_keys
	SET usage_count = usage_count + 1, last_used_at = ?
	WHERE key = ?
	`

	result, err := d.db.ExecContext(ctx, query, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apikey.ErrKeyNotFound
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for credential scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (apikey.Credential, error) {
	var cred apikey.Credential
	var status, permissions string
	var tierOverride sql.NullString
	var lastUsedAt, expiresAt sql.NullTime

	err := s.Scan(
		&cred.ID,
		&cred.Key,
		&cred.Name,
		&cred.Organization,
		&cred.CreatedBy,
		&status,
		&permissions,
		&tierOverride,
		&cred.UsageCount,
		&lastUsedAt,
		&expiresAt,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return apikey.Credential{}, err
	}

	cred.Status = apikey.Status(status)
	if err := json.Unmarshal([]byte(permissions), &cred.Permissions); err != nil {
		return apikey.Credential{}, fmt.Errorf("failed to decode permissions: %w", err)
	}
	if tierOverride.Valid {
		cred.TierOverride = apikey.Tier(tierOverride.String)
	}
	if lastUsedAt.Valid {
		cred.LastUsedAt = &lastUsedAt.Time
	}
	if expiresAt.Valid {
		cred.ExpiresAt = &expiresAt.Time
	}

	return cred, nil
}

func marshalPermissions(perms []apikey.Permission) (string, error) {
	if perms == nil {
		perms = []apikey.Permission{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return "", fmt.Errorf("failed to encode permissions: %w", err)
	}
	return string(data), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
