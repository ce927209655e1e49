package compliance

import (
	"time"

	"github.com/oryxcart/sentinel/internal/security"
)

// RuleCategory is the fixed taxonomy of compliance rules.
type RuleCategory string

const (
	CategoryAML    RuleCategory = "aml"
	CategoryKYC    RuleCategory = "kyc"
	CategoryGDPR   RuleCategory = "gdpr"
	CategoryPCI    RuleCategory = "pci"
	CategorySOX    RuleCategory = "sox"
	CategoryCCPA   RuleCategory = "ccpa"
	CategoryCustom RuleCategory = "custom"
)

// Operator is one comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpRegex       Operator = "regex"
)

// Connector joins a condition with the running result of the conditions
// before it. The first condition in a list has no connector.
type Connector string

const (
	ConnectorAnd Connector = "and"
	ConnectorOr  Connector = "or"
)

// Condition is one comparison clause against a dot-path field of the
// evaluated record.
type Condition struct {
	Field     string    `yaml:"field" json:"field"`
	Operator  Operator  `yaml:"operator" json:"operator"`
	Value     any       `yaml:"value" json:"value"`
	Connector Connector `yaml:"connector,omitempty" json:"connector,omitempty"`
}

// ActionType is the closed set of responses a matching rule can demand.
type ActionType string

const (
	ActionBlockTransaction     ActionType = "block_transaction"
	ActionRequireApproval      ActionType = "require_approval"
	ActionGenerateReport       ActionType = "generate_report"
	ActionNotifyAdmin          ActionType = "notify_admin"
	ActionFreezeAccount        ActionType = "freeze_account"
	ActionRequestDocumentation ActionType = "request_documentation"
	ActionEscalateToCompliance ActionType = "escalate_to_compliance"
)

// Action is one response attached to a rule.
type Action struct {
	Type   ActionType     `yaml:"type" json:"type"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Rule is a named, typed policy check.
type Rule struct {
	ID          string            `yaml:"id" json:"id"`
	Category    RuleCategory      `yaml:"category" json:"category"`
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Severity    security.Severity `yaml:"severity" json:"severity"`
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Conditions  []Condition       `yaml:"conditions" json:"conditions"`
	Actions     []Action          `yaml:"actions" json:"actions"`
	UpdatedAt   time.Time         `yaml:"-" json:"updated_at"`
}

// RuleUpdate holds the mergeable fields of a rule. Nil pointers leave the
// existing value in place.
type RuleUpdate struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Severity    *security.Severity `json:"severity,omitempty"`
	Enabled     *bool              `json:"enabled,omitempty"`
	Conditions  *[]Condition       `json:"conditions,omitempty"`
	Actions     *[]Action          `json:"actions,omitempty"`
}

// ViolationStatus tracks a violation's lifecycle. Resolved and
// false-positive are terminal.
type ViolationStatus string

const (
	ViolationOpen          ViolationStatus = "open"
	ViolationInvestigating ViolationStatus = "investigating"
	ViolationResolved      ViolationStatus = "resolved"
	ViolationFalsePositive ViolationStatus = "false_positive"
)

// Terminal reports whether a status permits no further transitions.
func (s ViolationStatus) Terminal() bool {
	return s == ViolationResolved || s == ViolationFalsePositive
}

// Violation is one rule match against a real-world entity. Rule name and
// category are denormalized so the audit record stays readable if the rule
// later changes.
type Violation struct {
	ID         string              `json:"id"`
	RuleID     string              `json:"rule_id"`
	RuleName   string              `json:"rule_name"`
	Category   RuleCategory        `json:"category"`
	Severity   security.Severity   `json:"severity"`
	EntityType security.EntityType `json:"entity_type"`
	EntityID   string              `json:"entity_id"`
	Data       map[string]any      `json:"data"`
	Status     ViolationStatus     `json:"status"`
	AssignedTo string              `json:"assigned_to,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	ResolvedAt *time.Time          `json:"resolved_at,omitempty"`
	Resolution string              `json:"resolution,omitempty"`
}
