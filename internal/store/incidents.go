package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oryxcart/sentinel/internal/security"
)

// IncidentRepo persists operator-managed incident records.
type IncidentRepo struct {
	store *Store
}

// NewIncidentRepo creates an incident repository.
func NewIncidentRepo(store *Store) *IncidentRepo {
	return &IncidentRepo{store: store}
}

// InsertIncident writes one incident.
func (r *IncidentRepo) InsertIncident(ctx context.Context, inc *security.Incident) error {
	_, err := r.store.Execute(ctx,
		`INSERT INTO incidents
			(id, title, description, severity, status, assigned_to, event_ids, resolution, resolved_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID,
		inc.Title,
		nullString(inc.Description),
		string(inc.Severity),
		string(inc.Status),
		nullString(inc.AssignedTo),
		encodeJSON(inc.EventIDs),
		nullString(inc.Resolution),
		nullTime(inc.ResolvedAt),
		inc.CreatedAt,
		inc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// GetIncident returns one incident by ID, or nil when absent.
func (r *IncidentRepo) GetIncident(ctx context.Context, id string) (*security.Incident, error) {
	row := r.store.QueryRow(ctx,
		`SELECT id, title, description, severity, status, assigned_to, event_ids, resolution, resolved_at, created_at, updated_at
		 FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inc, err
}

// ListIncidents returns incidents, newest first. status narrows when set.
func (r *IncidentRepo) ListIncidents(ctx context.Context, status security.IncidentStatus, limit int) ([]*security.Incident, error) {
	query := `SELECT id, title, description, severity, status, assigned_to, event_ids, resolution, resolved_at, created_at, updated_at
		FROM incidents WHERE 1=1`
	args := []any{}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	incidents := []*security.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// IncidentUpdate carries the operator-editable fields.
type IncidentUpdate struct {
	Status     *security.IncidentStatus `json:"status,omitempty"`
	AssignedTo *string                  `json:"assigned_to,omitempty"`
	Resolution *string                  `json:"resolution,omitempty"`
}

// UpdateIncident merges the update. Returns false when the incident does
// not exist.
func (r *IncidentRepo) UpdateIncident(ctx context.Context, id string, upd IncidentUpdate) (bool, error) {
	current, err := r.GetIncident(ctx, id)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}

	status := current.Status
	if upd.Status != nil {
		status = *upd.Status
	}
	assignedTo := current.AssignedTo
	if upd.AssignedTo != nil {
		assignedTo = *upd.AssignedTo
	}
	resolution := current.Resolution
	if upd.Resolution != nil {
		resolution = *upd.Resolution
	}
	resolvedAt := current.ResolvedAt
	if (status == security.IncidentResolved || status == security.IncidentFalsePositive) && resolvedAt == nil {
		now := time.Now().UTC()
		resolvedAt = &now
	}

	_, err = r.store.Execute(ctx,
		`UPDATE incidents SET status = ?, assigned_to = ?, resolution = ?, resolved_at = ?, updated_at = ? WHERE id = ?`,
		string(status), nullString(assignedTo), nullString(resolution), nullTime(resolvedAt), time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("update incident: %w", err)
	}
	return true, nil
}

func scanIncident(row rowScanner) (*security.Incident, error) {
	var (
		inc         security.Incident
		description sql.NullString
		severity    string
		status      string
		assignedTo  sql.NullString
		eventIDs    sql.NullString
		resolution  sql.NullString
		resolvedAt  sql.NullTime
	)
	err := row.Scan(&inc.ID, &inc.Title, &description, &severity, &status, &assignedTo,
		&eventIDs, &resolution, &resolvedAt, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inc.Description = description.String
	inc.Severity = security.Severity(severity)
	inc.Status = security.IncidentStatus(status)
	inc.AssignedTo = assignedTo.String
	inc.EventIDs = decodeJSON[[]string](eventIDs)
	inc.Resolution = resolution.String
	inc.ResolvedAt = timePtr(resolvedAt)
	return &inc, nil
}
