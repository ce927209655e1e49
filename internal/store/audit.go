package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oryxcart/sentinel/internal/security"
)

// AuditRepo persists and reads audit trail entries. Entries are write-once;
// there is deliberately no update or delete here.
type AuditRepo struct {
	store *Store
}

// NewAuditRepo creates an audit repository.
func NewAuditRepo(store *Store) *AuditRepo {
	return &AuditRepo{store: store}
}

// InsertAuditEntry writes one entry.
func (r *AuditRepo) InsertAuditEntry(ctx context.Context, entry *security.AuditEntry) error {
	_, err := r.store.Execute(ctx,
		`INSERT INTO audit_trail
			(id, entity_type, entity_id, action, actor_id, source_ip, user_agent, details, old_data, new_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		string(entry.EntityType),
		nullString(entry.EntityID),
		entry.Action,
		nullString(entry.ActorID),
		nullString(entry.SourceIP),
		nullString(entry.UserAgent),
		encodeJSON(entry.Details),
		encodeJSON(entry.OldData),
		encodeJSON(entry.NewData),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditFilter narrows ListAuditEntries.
type AuditFilter struct {
	Since      time.Time
	EntityType security.EntityType
	ActorID    string
	Limit      int
}

// ListAuditEntries returns entries matching the filter, newest first.
func (r *AuditRepo) ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*security.AuditEntry, error) {
	query := `SELECT id, entity_type, entity_id, action, actor_id, source_ip, user_agent, details, old_data, new_data, created_at
		FROM audit_trail WHERE 1=1`
	args := []any{}

	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since)
	}
	if filter.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, string(filter.EntityType))
	}
	if filter.ActorID != "" {
		query += " AND actor_id = ?"
		args = append(args, filter.ActorID)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*security.AuditEntry{}
	for rows.Next() {
		var (
			entry      security.AuditEntry
			entityType string
			entityID   sql.NullString
			actorID    sql.NullString
			sourceIP   sql.NullString
			userAgent  sql.NullString
			details    sql.NullString
			oldData    sql.NullString
			newData    sql.NullString
		)
		err := rows.Scan(&entry.ID, &entityType, &entityID, &entry.Action, &actorID,
			&sourceIP, &userAgent, &details, &oldData, &newData, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		entry.EntityType = security.EntityType(entityType)
		entry.EntityID = entityID.String
		entry.ActorID = actorID.String
		entry.SourceIP = sourceIP.String
		entry.UserAgent = userAgent.String
		entry.Details = decodeJSON[map[string]any](details)
		entry.OldData = decodeJSON[map[string]any](oldData)
		entry.NewData = decodeJSON[map[string]any](newData)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
