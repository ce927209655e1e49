package security

import (
	"time"
)

// Severity classifies how dangerous an observation is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// EventType is the closed set of observed security occurrences.
type EventType string

const (
	EventLoginAttempt        EventType = "login_attempt"
	EventFailedLogin         EventType = "failed_login"
	EventSuspiciousActivity  EventType = "suspicious_activity"
	EventUnauthorizedAccess  EventType = "unauthorized_access"
	EventDataAccess          EventType = "data_access"
	EventPrivilegeEscalation EventType = "privilege_escalation"
	EventSystemBreach        EventType = "system_breach"
	EventComplianceViolation EventType = "compliance_violation"
)

// ActionType is the closed set of responses bound to an event.
type ActionType string

const (
	ActionAlert            ActionType = "alert"
	ActionBlockUser        ActionType = "block_user"
	ActionBlockIP          ActionType = "block_ip"
	ActionRequire2FA       ActionType = "require_2fa"
	ActionForceLogout      ActionType = "force_logout"
	ActionEscalate         ActionType = "escalate"
	ActionAuditLog         ActionType = "audit_log"
	ActionComplianceReport ActionType = "compliance_report"
)

// ActionStatus tracks execution of a single action.
type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionExecuted ActionStatus = "executed"
	ActionFailed   ActionStatus = "failed"
)

// EntityType identifies what kind of entity a record concerns.
type EntityType string

const (
	EntityUser        EntityType = "user"
	EntityTransaction EntityType = "transaction"
	EntityMerchant    EntityType = "merchant"
	EntitySystem      EntityType = "system"
	EntityAdmin       EntityType = "admin"
)

// Action is one response bound to a SecurityEvent. Actions are attached
// exactly once at event creation; only their status mutates afterwards.
type Action struct {
	Type       ActionType     `json:"type"`
	Status     ActionStatus   `json:"status"`
	ExecutedAt *time.Time     `json:"executed_at,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Event is one observed security-relevant occurrence.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Severity   Severity       `json:"severity"`
	ActorID    string         `json:"actor_id,omitempty"`
	SourceIP   string         `json:"source_ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Resolved   bool           `json:"resolved"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Actions    []*Action      `json:"actions"`
}

// EventInput is the caller-supplied portion of an event. ID, timestamp,
// resolution state and actions are computed by the processor.
type EventInput struct {
	Type      EventType
	Severity  Severity
	ActorID   string
	SourceIP  string
	UserAgent string
	Details   map[string]any
}

// AuditEntry is a write-once record of one administrative or sensitive
// action.
type AuditEntry struct {
	ID         string         `json:"id"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id,omitempty"`
	SourceIP   string         `json:"source_ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	OldData    map[string]any `json:"old_data,omitempty"`
	NewData    map[string]any `json:"new_data,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditInput is the caller-supplied portion of an audit entry.
type AuditInput struct {
	EntityType EntityType
	EntityID   string
	Action     string
	ActorID    string
	SourceIP   string
	UserAgent  string
	Details    map[string]any
	OldData    map[string]any
	NewData    map[string]any
}

// IncidentStatus tracks an incident record.
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentFalsePositive IncidentStatus = "false_positive"
)

// Incident is an operator-managed record tying together one or more
// events under investigation. Pure CRUD; no engine logic attaches to it.
type Incident struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Status      IncidentStatus `json:"status"`
	AssignedTo  string         `json:"assigned_to,omitempty"`
	EventIDs    []string       `json:"event_ids,omitempty"`
	Resolution  string         `json:"resolution,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

// Outcome reports how a best-effort persistence attempt ended. The engine
// swallows storage failures for telemetry writes; Outcome makes that policy
// visible to callers and tests instead of hiding it in a log line.
type Outcome string

const (
	// OutcomeOK means the write succeeded.
	OutcomeOK Outcome = "ok"
	// OutcomeDropped means the write failed and was deliberately swallowed.
	OutcomeDropped Outcome = "dropped"
)
