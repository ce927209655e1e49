package compliance

import (
	"github.com/oryxcart/sentinel/internal/security"
)

// BuiltinRules is the rule set registered at process start. Administrative
// operations may add to or adjust these at runtime.
func BuiltinRules() []Rule {
	return []Rule{
		{
			ID:          "AML_LARGE_TXN",
			Category:    CategoryAML,
			Name:        "Large transaction monitoring",
			Description: "Flags transactions above the AML reporting threshold for review.",
			Severity:    security.SeverityHigh,
			Enabled:     true,
			Conditions: []Condition{
				{Field: "amount", Operator: OpGreaterThan, Value: 10000},
			},
			Actions: []Action{
				{Type: ActionGenerateReport, Params: map[string]any{"report": "aml_large_txn"}},
				{Type: ActionNotifyAdmin, Params: nil},
			},
		},
		{
			ID:          "KYC_UNVERIFIED_LIMIT",
			Category:    CategoryKYC,
			Name:        "Unverified user transaction cap",
			Description: "Unverified users may not transact above the verification limit.",
			Severity:    security.SeverityHigh,
			Enabled:     true,
			Conditions: []Condition{
				{Field: "userVerified", Operator: OpEquals, Value: false},
				{Field: "amount", Operator: OpGreaterThan, Value: 1000, Connector: ConnectorAnd},
			},
			Actions: []Action{
				{Type: ActionBlockTransaction, Params: nil},
				{Type: ActionRequestDocumentation, Params: map[string]any{"documents": []string{"id", "proof_of_address"}}},
			},
		},
		{
			ID:          "GDPR_DATA_ACCESS",
			Category:    CategoryGDPR,
			Name:        "Personal data access logging",
			Description: "Every access to personal data is reported for the processing register.",
			Severity:    security.SeverityMedium,
			Enabled:     true,
			Conditions: []Condition{
				{Field: "dataType", Operator: OpEquals, Value: "PERSONAL"},
			},
			Actions: []Action{
				{Type: ActionGenerateReport, Params: map[string]any{"report": "gdpr_access"}},
			},
		},
		{
			ID:          "SEC_FAILED_LOGINS",
			Category:    CategoryCustom,
			Name:        "Repeated failed login detection",
			Description: "Accounts with repeated failed logins are frozen pending review.",
			Severity:    security.SeverityHigh,
			Enabled:     true,
			Conditions: []Condition{
				{Field: "failedLoginCount", Operator: OpGreaterThan, Value: 4},
			},
			Actions: []Action{
				{Type: ActionFreezeAccount, Params: nil},
				{Type: ActionEscalateToCompliance, Params: nil},
			},
		},
	}
}
