package store

import (
	"context"
	"fmt"
	"time"

	"github.com/oryxcart/sentinel/internal/compliance"
	"github.com/oryxcart/sentinel/internal/security"
)

// MetricsRepo answers the aggregate queries behind the security metrics
// dashboard. It satisfies security.MetricsSource.
type MetricsRepo struct {
	store *Store
}

// NewMetricsRepo creates a metrics repository.
func NewMetricsRepo(store *Store) *MetricsRepo {
	return &MetricsRepo{store: store}
}

// CountEvents returns total, critical and resolved event counts since the
// given time.
func (r *MetricsRepo) CountEvents(ctx context.Context, since time.Time) (total, critical, resolved int, err error) {
	row := r.store.QueryRow(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN severity = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN resolved THEN 1 ELSE 0 END), 0)
		 FROM security_events WHERE created_at >= ?`,
		string(security.SeverityCritical), since)
	if err = row.Scan(&total, &critical, &resolved); err != nil {
		return 0, 0, 0, fmt.Errorf("count events: %w", err)
	}
	return total, critical, resolved, nil
}

// MeanResolutionHours averages resolution time over resolved events in the
// window. Unresolved events are excluded, not treated as zero. The average
// is computed here rather than in SQL because sqlite and postgres disagree
// on timestamp arithmetic.
func (r *MetricsRepo) MeanResolutionHours(ctx context.Context, since time.Time) (float64, bool, error) {
	rows, err := r.store.Query(ctx,
		`SELECT created_at, resolved_at FROM security_events
		 WHERE created_at >= ? AND resolved = ? AND resolved_at IS NOT NULL`,
		since, true)
	if err != nil {
		return 0, false, fmt.Errorf("mean resolution time: %w", err)
	}
	defer rows.Close()

	var totalHours float64
	var n int
	for rows.Next() {
		var createdAt, resolvedAt time.Time
		if err := rows.Scan(&createdAt, &resolvedAt); err != nil {
			return 0, false, err
		}
		totalHours += resolvedAt.Sub(createdAt).Hours()
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return totalHours / float64(n), true, nil
}

// EventTypeCounts returns per-type event counts since the given time.
func (r *MetricsRepo) EventTypeCounts(ctx context.Context, since time.Time) (map[security.EventType]int, error) {
	rows, err := r.store.Query(ctx,
		`SELECT type, COUNT(*) FROM security_events WHERE created_at >= ? GROUP BY type`, since)
	if err != nil {
		return nil, fmt.Errorf("event type counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[security.EventType]int)
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return nil, err
		}
		counts[security.EventType(t)] = c
	}
	return counts, rows.Err()
}

// CountOpenViolations counts violations currently open or under
// investigation.
func (r *MetricsRepo) CountOpenViolations(ctx context.Context) (int, error) {
	var n int
	row := r.store.QueryRow(ctx,
		`SELECT COUNT(*) FROM compliance_violations WHERE status IN (?, ?)`,
		string(compliance.ViolationOpen), string(compliance.ViolationInvestigating))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count open violations: %w", err)
	}
	return n, nil
}
