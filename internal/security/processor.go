package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventStore persists security events. Implementations must not retain the
// event after InsertEvent returns.
type EventStore interface {
	InsertEvent(ctx context.Context, event *Event) error
}

// ProcessorConfig tunes the event processor.
type ProcessorConfig struct {
	// FailedLoginThreshold is the in-window failed-login count at which the
	// source IP gets blocked.
	FailedLoginThreshold int
	// BlockTTL is how long automatic IP blocks last.
	BlockTTL time.Duration
}

// Processor turns raw event observations into fully populated, persisted
// SecurityEvents with their response actions executed.
type Processor struct {
	logger  *zap.Logger
	state   *State
	events  EventStore
	metrics *Collector
	config  ProcessorConfig
}

// NewProcessor creates an event processor.
func NewProcessor(logger *zap.Logger, state *State, events EventStore, metrics *Collector, config ProcessorConfig) *Processor {
	if config.FailedLoginThreshold <= 0 {
		config.FailedLoginThreshold = 5
	}
	if config.BlockTTL <= 0 {
		config.BlockTTL = 24 * time.Hour
	}
	return &Processor{
		logger:  logger,
		state:   state,
		events:  events,
		metrics: metrics,
		config:  config,
	}
}

// Process assigns identity to the observation, derives response actions
// from severity and type, executes them in order, and persists the result.
// Persistence failure is swallowed: a security event must never abort the
// request that triggered it. The returned Outcome reports whether the
// write landed.
func (p *Processor) Process(ctx context.Context, input EventInput) (*Event, Outcome) {
	event := &Event{
		ID:        newEventID(),
		Type:      input.Type,
		Severity:  input.Severity,
		ActorID:   input.ActorID,
		SourceIP:  input.SourceIP,
		UserAgent: input.UserAgent,
		Details:   input.Details,
		CreatedAt: time.Now().UTC(),
		Resolved:  false,
	}

	event.Actions = p.deriveActions(event)

	for _, action := range event.Actions {
		p.executeAction(event, action)
	}

	if p.metrics != nil {
		p.metrics.EventsProcessed.WithLabelValues(string(event.Type), string(event.Severity)).Inc()
	}

	outcome := OutcomeOK
	if err := p.events.InsertEvent(ctx, event); err != nil {
		outcome = OutcomeDropped
		if p.metrics != nil {
			p.metrics.WritesDropped.WithLabelValues("security_events").Inc()
		}
		p.logger.Error("Failed to persist security event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}

	return event, outcome
}

// deriveActions computes the response actions for an event. An audit-log
// action is always first; the rest depend on severity and type.
func (p *Processor) deriveActions(event *Event) []*Action {
	actions := []*Action{newAction(ActionAuditLog, nil)}

	switch event.Severity {
	case SeverityCritical:
		actions = append(actions, newAction(ActionEscalate, map[string]any{"reason": "critical severity"}))
		if event.ActorID != "" {
			actions = append(actions, newAction(ActionForceLogout, map[string]any{"actor_id": event.ActorID}))
		}
	case SeverityHigh:
		actions = append(actions, newAction(ActionAlert, nil))
		if event.Type == EventFailedLogin && event.ActorID != "" {
			actions = append(actions, newAction(ActionRequire2FA, map[string]any{"actor_id": event.ActorID}))
		}
	case SeverityMedium:
		actions = append(actions, newAction(ActionAlert, nil))
	}

	if event.Type == EventSuspiciousActivity && event.SourceIP != "" {
		actions = append(actions, newAction(ActionBlockIP, map[string]any{
			"ip":       event.SourceIP,
			"duration": p.config.BlockTTL.String(),
		}))
	}

	// Failed logins are counted per source IP; crossing the threshold
	// inside the window blocks the IP on the spot.
	if event.Type == EventFailedLogin && event.SourceIP != "" {
		count := p.state.RecordFailedLogin(event.SourceIP)
		if count >= p.config.FailedLoginThreshold {
			actions = append(actions, newAction(ActionBlockIP, map[string]any{
				"ip":            event.SourceIP,
				"failed_logins": count,
				"duration":      p.config.BlockTTL.String(),
			}))
		}
	}

	return actions
}

// executeAction runs one action synchronously. Every branch either marks
// the action executed or failed; unknown action types fail rather than
// panic so a bad row read back from storage cannot take down processing.
func (p *Processor) executeAction(event *Event, action *Action) {
	switch action.Type {
	case ActionBlockIP:
		if event.SourceIP == "" {
			p.failAction(action, "no source IP on event")
			return
		}
		p.state.BlockIP(event.SourceIP, p.config.BlockTTL)
		p.logger.Warn("Blocked IP",
			zap.String("ip", event.SourceIP),
			zap.String("event_id", event.ID),
			zap.Duration("ttl", p.config.BlockTTL),
		)
		p.markExecuted(action)

	case ActionBlockUser, ActionForceLogout:
		if event.ActorID == "" {
			p.failAction(action, "no actor on event")
			return
		}
		p.state.SuspendActor(event.ActorID)
		p.logger.Warn("Suspended actor",
			zap.String("actor_id", event.ActorID),
			zap.String("action", string(action.Type)),
			zap.String("event_id", event.ID),
		)
		p.markExecuted(action)

	case ActionAlert:
		p.logger.Warn("Security alert",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.String("severity", string(event.Severity)),
			zap.String("source_ip", event.SourceIP),
		)
		p.markExecuted(action)

	case ActionEscalate:
		p.logger.Error("Security event escalated",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.String("actor_id", event.ActorID),
		)
		p.markExecuted(action)

	case ActionRequire2FA:
		// Signal only; the authentication layer enforces the challenge.
		p.logger.Info("2FA challenge requested",
			zap.String("actor_id", event.ActorID),
			zap.String("event_id", event.ID),
		)
		p.markExecuted(action)

	case ActionAuditLog:
		// The audit write itself happens through the Recorder, decoupled
		// from event processing. The action records that it is owed.
		p.markExecuted(action)

	case ActionComplianceReport:
		p.logger.Info("Compliance report requested",
			zap.String("event_id", event.ID),
		)
		p.markExecuted(action)

	default:
		p.failAction(action, fmt.Sprintf("unrecognized action type %q", action.Type))
	}
}

func (p *Processor) markExecuted(action *Action) {
	now := time.Now().UTC()
	action.Status = ActionExecuted
	action.ExecutedAt = &now
}

func (p *Processor) failAction(action *Action, reason string) {
	action.Status = ActionFailed
	if action.Details == nil {
		action.Details = map[string]any{}
	}
	action.Details["failure"] = reason
	p.logger.Warn("Security action failed",
		zap.String("action", string(action.Type)),
		zap.String("reason", reason),
	)
}

func newAction(t ActionType, details map[string]any) *Action {
	return &Action{Type: t, Status: ActionPending, Details: details}
}

// newEventID produces a time-ordered, globally unique identifier.
func newEventID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
}
