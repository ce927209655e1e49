package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oryxcart/sentinel/internal/compliance"
	"github.com/oryxcart/sentinel/internal/security"
)

// ErrTerminalStatus rejects updates to violations already in a terminal
// state; resolved and false-positive never auto-revert.
var ErrTerminalStatus = errors.New("violation is in a terminal status")

// ViolationRepo persists and reads compliance violations.
type ViolationRepo struct {
	store *Store
}

// NewViolationRepo creates a violation repository.
func NewViolationRepo(store *Store) *ViolationRepo {
	return &ViolationRepo{store: store}
}

// InsertViolation writes one violation.
func (r *ViolationRepo) InsertViolation(ctx context.Context, v *compliance.Violation) error {
	_, err := r.store.Execute(ctx,
		`INSERT INTO compliance_violations
			(id, rule_id, rule_name, category, severity, entity_type, entity_id, data, status, assigned_to, resolution, resolved_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.RuleID,
		v.RuleName,
		string(v.Category),
		string(v.Severity),
		string(v.EntityType),
		v.EntityID,
		encodeJSON(v.Data),
		string(v.Status),
		nullString(v.AssignedTo),
		nullString(v.Resolution),
		nullTime(v.ResolvedAt),
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert compliance violation: %w", err)
	}
	return nil
}

// ViolationFilter narrows ListViolations. Zero values mean "no constraint".
type ViolationFilter struct {
	Since    time.Time
	Status   compliance.ViolationStatus
	Category compliance.RuleCategory
	Severity security.Severity
	Limit    int
}

// ListViolations returns violations matching the filter, newest first.
func (r *ViolationRepo) ListViolations(ctx context.Context, filter ViolationFilter) ([]*compliance.Violation, error) {
	query := `SELECT id, rule_id, rule_name, category, severity, entity_type, entity_id, data, status, assigned_to, resolution, resolved_at, created_at
		FROM compliance_violations WHERE 1=1`
	args := []any{}

	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, string(filter.Category))
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
		return nil, fmt.Errorf("list compliance violations: %w", err)
	}
	defer rows.Close()

	violations := []*compliance.Violation{}
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// GetViolation returns one violation by ID, or nil when absent.
func (r *ViolationRepo) GetViolation(ctx context.Context, id string) (*compliance.Violation, error) {
	row := r.store.QueryRow(ctx,
		`SELECT id, rule_id, rule_name, category, severity, entity_type, entity_id, data, status, assigned_to, resolution, resolved_at, created_at
		 FROM compliance_violations WHERE id = ?`, id)
	v, err := scanViolation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// ViolationUpdate carries the operator-editable fields.
type ViolationUpdate struct {
	Status     *compliance.ViolationStatus `json:"status,omitempty"`
	AssignedTo *string                     `json:"assigned_to,omitempty"`
	Resolution *string                     `json:"resolution,omitempty"`
}

// UpdateViolation merges the update into a violation. Moving into a
// terminal status stamps resolved_at; updating a violation already in a
// terminal status returns ErrTerminalStatus. Returns false when the
// violation does not exist.
func (r *ViolationRepo) UpdateViolation(ctx context.Context, id string, upd ViolationUpdate) (bool, error) {
	current, err := r.GetViolation(ctx, id)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}
	if current.Status.Terminal() && upd.Status != nil && *upd.Status != current.Status {
		return false, ErrTerminalStatus
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
	if status.Terminal() && resolvedAt == nil {
		now := time.Now().UTC()
		resolvedAt = &now
	}

	_, err = r.store.Execute(ctx,
		`UPDATE compliance_violations SET status = ?, assigned_to = ?, resolution = ?, resolved_at = ? WHERE id = ?`,
		string(status), nullString(assignedTo), nullString(resolution), nullTime(resolvedAt), id)
	if err != nil {
		return false, fmt.Errorf("update compliance violation: %w", err)
	}
	return true, nil
}

func scanViolation(row rowScanner) (*compliance.Violation, error) {
	var (
		v          compliance.Violation
		category   string
		severity   string
		entityType string
		status     string
		data       sql.NullString
		assignedTo sql.NullString
		resolution sql.NullString
		resolvedAt sql.NullTime
	)
	err := row.Scan(&v.ID, &v.RuleID, &v.RuleName, &category, &severity, &entityType,
		&v.EntityID, &data, &status, &assignedTo, &resolution, &resolvedAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.Category = compliance.RuleCategory(category)
	v.Severity = security.Severity(severity)
	v.EntityType = security.EntityType(entityType)
	v.Status = compliance.ViolationStatus(status)
	v.Data = decodeJSON[map[string]any](data)
	v.AssignedTo = assignedTo.String
	v.Resolution = resolution.String
	v.ResolvedAt = timePtr(resolvedAt)
	return &v, nil
}
