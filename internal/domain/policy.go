package domain

import "time"

// PolicyConfig defines an alert policy: a CEL expression evaluated against
// every participant's composed fraud-signal facts. A match raises an Alert
// on the analysis.
type PolicyConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Expression is a CEL expression over node facts (score, high_risk,
	// cycle_count, net_flow, ...). It must evaluate to a boolean.
	Expression string `json:"expression"`

	// Severity of alerts raised by this policy.
	Severity Severity `json:"severity"`

	// Whether the policy is active.
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Severity grades policy alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// PolicyResult is the outcome of evaluating one policy against one node.
type PolicyResult struct {
	PolicyID string   `json:"policyId"`
	Name     string   `json:"name"`
	NodeID   string   `json:"nodeId"`
	Matched  bool     `json:"matched"`
	Severity Severity `json:"severity"`

	// Error holds the evaluation error message, if any. A policy that
	// errors never matches.
	Error string `json:"error,omitempty"`

	ProcessUs int64 `json:"processUs"`
}

// Alert is a policy match attached to an analysis and published on the bus.
type Alert struct {
	PolicyID   string   `json:"policyId"`
	PolicyName string   `json:"policyName"`
	NodeID     string   `json:"nodeId"`
	Severity   Severity `json:"severity"`
	Detail     string   `json:"detail,omitempty"`
}
