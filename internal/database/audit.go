package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/careconnect/data-gateway/internal/audit"
)

// Append writes an audit entry. Entries are immutable: no update or
// delete statement exists for the audit_log table.
func (d *DB) Append(ctx context.Context, entry *audit.Entry) error {
	if entry == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	var details sql.NullString
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = sql.NullString{String: string(data), Valid: true}
	}

	query := `
	INSERT INTO audit_log (timestamp, action, performed_by, target_type, target_id, target_name, details, ip_address, user_agent)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(
		ctx,
		query,
		entry.Timestamp,
		entry.Action,
		entry.PerformedBy,
		string(entry.TargetType),
		entry.TargetID,
		entry.TargetName,
		details,
		nullString(entry.IPAddress),
		nullString(entry.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListAuditEntries returns the most recent audit entries, newest first,
// up to limit.
func (d *DB) ListAuditEntries(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
	SELECT timestamp, action, performed_by, target_type, target_id, target_name, details, ip_address, user_agent
	FROM audit_log
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []audit.Entry
	for rows.Next() {
		var entry audit.Entry
		var targetType string
		var details, ipAddress, userAgent sql.NullString

		err := rows.Scan(
			&entry.Timestamp,
			&entry.Action,
			&entry.PerformedBy,
			&targetType,
			&entry.TargetID,
			&entry.TargetName,
			&details,
			&ipAddress,
			&userAgent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.TargetType = audit.TargetType(targetType)
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	return entries, nil
}
