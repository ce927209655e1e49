package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oryxcart/sentinel/internal/security"
)

// ViolationStore persists compliance violations.
type ViolationStore interface {
	InsertViolation(ctx context.Context, violation *Violation) error
}

// Engine evaluates data records against the active rule set. It detects
// and signals; enforcement of block-transaction and require-approval
// outcomes belongs to the calling business logic.
type Engine struct {
	logger     *zap.Logger
	rules      *RuleStore
	state      *security.State
	violations ViolationStore
	metrics    *security.Collector
}

// NewEngine creates a compliance engine.
func NewEngine(logger *zap.Logger, rules *RuleStore, state *security.State, violations ViolationStore, metrics *security.Collector) *Engine {
	return &Engine{
		logger:     logger,
		rules:      rules,
		state:      state,
		violations: violations,
		metrics:    metrics,
	}
}

// Evaluate runs a data record against every enabled rule and returns the
// violations found. No violations is the common case and yields an empty
// slice, never nil and never an error. Rule actions run best-effort and
// violation persistence is swallowed on failure, so a storage outage
// cannot turn a compliance check into a request failure.
func (e *Engine) Evaluate(ctx context.Context, entityType security.EntityType, entityID string, data map[string]any) []*Violation {
	found := []*Violation{}

	for _, rule := range e.rules.Rules() {
		if !rule.Enabled {
			continue
		}
		if !EvaluateConditions(e.logger, rule.Conditions, data) {
			continue
		}

		violation := &Violation{
			ID:         uuid.NewString(),
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			Category:   rule.Category,
			Severity:   rule.Severity,
			EntityType: entityType,
			EntityID:   entityID,
			Data:       data,
			Status:     ViolationOpen,
			CreatedAt:  time.Now().UTC(),
		}

		e.logger.Warn("Compliance violation detected",
			zap.String("rule_id", rule.ID),
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", entityID),
			zap.String("severity", string(rule.Severity)),
		)
		if e.metrics != nil {
			e.metrics.ViolationsDetected.Inc()
		}

		for _, action := range rule.Actions {
			e.executeAction(action, entityType, entityID, violation)
		}

		if err := e.violations.InsertViolation(ctx, violation); err != nil {
			if e.metrics != nil {
				e.metrics.WritesDropped.WithLabelValues("compliance_violations").Inc()
			}
			e.logger.Error("Failed to persist compliance violation",
				zap.String("violation_id", violation.ID),
				zap.String("rule_id", rule.ID),
				zap.Error(err),
			)
		}

		found = append(found, violation)
	}

	return found
}

// executeAction runs one rule action. Most action types are observability
// signals here; freeze-account is the only one that mutates shared state,
// and only for user entities.
func (e *Engine) executeAction(action Action, entityType security.EntityType, entityID string, violation *Violation) {
	fields := []zap.Field{
		zap.String("rule_id", violation.RuleID),
		zap.String("entity_type", string(entityType)),
		zap.String("entity_id", entityID),
	}

	switch action.Type {
	case ActionFreezeAccount:
		if entityType != security.EntityUser {
			e.logger.Warn("Freeze-account action skipped for non-user entity", fields...)
			return
		}
		e.state.SuspendActor(entityID)
		e.logger.Warn("Account frozen by compliance rule", fields...)

	case ActionBlockTransaction:
		// Signal only. Callers must honor the violation; the engine does
		// not intercept the transaction itself.
		e.logger.Warn("Transaction flagged for blocking", fields...)

	case ActionRequireApproval:
		e.logger.Info("Manual approval required", fields...)

	case ActionGenerateReport:
		e.logger.Info("Compliance report requested", append(fields,
			zap.Any("params", action.Params))...)

	case ActionNotifyAdmin:
		e.logger.Warn("Admin notification requested", fields...)

	case ActionRequestDocumentation:
		e.logger.Info("Documentation requested", append(fields,
			zap.Any("params", action.Params))...)

	case ActionEscalateToCompliance:
		e.logger.Warn("Escalated to compliance team", fields...)

	default:
		e.logger.Warn("Unknown compliance action type",
			append(fields, zap.String("action", string(action.Type)))...)
	}
}
