package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oryxcart/sentinel/internal/security"
)

// EventRepo persists and reads security events.
type EventRepo struct {
	store *Store
}

// NewEventRepo creates an event repository.
func NewEventRepo(store *Store) *EventRepo {
	return &EventRepo{store: store}
}

// InsertEvent writes one event including its final action statuses.
func (r *EventRepo) InsertEvent(ctx context.Context, event *security.Event) error {
	_, err := r.store.Execute(ctx,
		`INSERT INTO security_events
			(id, type, severity, actor_id, source_ip, user_agent, details, actions, resolved, resolved_by, resolved_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		string(event.Type),
		string(event.Severity),
		nullString(event.ActorID),
		nullString(event.SourceIP),
		nullString(event.UserAgent),
		encodeJSON(event.Details),
		encodeJSON(event.Actions),
		event.Resolved,
		nullString(event.ResolvedBy),
		nullTime(event.ResolvedAt),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// EventFilter narrows ListEvents. Zero values mean "no constraint".
type EventFilter struct {
	Since    time.Time
	Until    time.Time
	Type     security.EventType
	Severity security.Severity
	Limit    int
}

// ListEvents returns events matching the filter, newest first.
func (r *EventRepo) ListEvents(ctx context.Context, filter EventFilter) ([]*security.Event, error) {
	query := `SELECT id, type, severity, actor_id, source_ip, user_agent, details, actions, resolved, resolved_by, resolved_at, created_at
		FROM security_events WHERE 1=1`
	args := []any{}

	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		query += " AND created_at < ?"
		args = append(args, filter.Until)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	defer rows.Close()

	events := []*security.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetEvent returns one event by ID, or nil when absent.
func (r *EventRepo) GetEvent(ctx context.Context, id string) (*security.Event, error) {
	row := r.store.QueryRow(ctx,
		`SELECT id, type, severity, actor_id, source_ip, user_agent, details, actions, resolved, resolved_by, resolved_at, created_at
		 FROM security_events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// ResolveEvent marks an event resolved. Returns false when the event does
// not exist or was already resolved.
func (r *EventRepo) ResolveEvent(ctx context.Context, id, resolvedBy string) (bool, error) {
	result, err := r.store.Execute(ctx,
		`UPDATE security_events SET resolved = ?, resolved_by = ?, resolved_at = ? WHERE id = ? AND resolved = ?`,
		true, resolvedBy, time.Now().UTC(), id, false)
	if err != nil {
		return false, fmt.Errorf("resolve security event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*security.Event, error) {
	var (
		event      security.Event
		eventType  string
		severity   string
		actorID    sql.NullString
		sourceIP   sql.NullString
		userAgent  sql.NullString
		details    sql.NullString
		actions    sql.NullString
		resolvedBy sql.NullString
		resolvedAt sql.NullTime
	)
	err := row.Scan(&event.ID, &eventType, &severity, &actorID, &sourceIP, &userAgent,
		&details, &actions, &event.Resolved, &resolvedBy, &resolvedAt, &event.CreatedAt)
	if err != nil {
		return nil, err
	}
	event.Type = security.EventType(eventType)
	event.Severity = security.Severity(severity)
	event.ActorID = actorID.String
	event.SourceIP = sourceIP.String
	event.UserAgent = userAgent.String
	event.Details = decodeJSON[map[string]any](details)
	event.Actions = decodeJSON[[]*security.Action](actions)
	event.ResolvedBy = resolvedBy.String
	event.ResolvedAt = timePtr(resolvedAt)
	return &event, nil
}
