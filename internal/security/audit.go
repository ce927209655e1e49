package security

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditStore persists audit trail entries.
type AuditStore interface {
	InsertAuditEntry(ctx context.Context, entry *AuditEntry) error
}

// Recorder writes immutable audit trail entries. It completes the entry's
// identity fields and persists immediately; there is no business logic
// here and an audit-write failure never aborts the caller's action.
type Recorder struct {
	logger  *zap.Logger
	audits  AuditStore
	metrics *Collector
}

// NewRecorder creates an audit trail recorder.
func NewRecorder(logger *zap.Logger, audits AuditStore, metrics *Collector) *Recorder {
	return &Recorder{logger: logger, audits: audits, metrics: metrics}
}

// Record completes and persists one audit entry, best-effort.
func (r *Recorder) Record(ctx context.Context, input AuditInput) (*AuditEntry, Outcome) {
	entry := &AuditEntry{
		ID:         uuid.NewString(),
		EntityType: input.EntityType,
		EntityID:   input.EntityID,
		Action:     input.Action,
		ActorID:    input.ActorID,
		SourceIP:   input.SourceIP,
		UserAgent:  input.UserAgent,
		Details:    input.Details,
		OldData:    input.OldData,
		NewData:    input.NewData,
		CreatedAt:  time.Now().UTC(),
	}

	if err := r.audits.InsertAuditEntry(ctx, entry); err != nil {
		if r.metrics != nil {
			r.metrics.WritesDropped.WithLabelValues("audit_trail").Inc()
		}
		r.logger.Error("Failed to persist audit entry",
			zap.String("entity_type", string(entry.EntityType)),
			zap.String("action", entry.Action),
			zap.Error(err),
		)
		return entry, OutcomeDropped
	}
	return entry, OutcomeOK
}
