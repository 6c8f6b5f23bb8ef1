package policy

import "github.com/opensource-finance/talon/internal/domain"

// SeedPolicies returns the starter policy set, installed once when a
// tenant's policy store is empty. Operators are expected to tune or
// replace these via the policies API.
func SeedPolicies() []*domain.PolicyConfig {
	return []*domain.PolicyConfig{
		{
			ID:          "ring-conduit",
			Name:        "Ring Conduit",
			Description: "High-centrality participant inside a suspicious lending ring",
			Expression:  "high_risk && cycle_count > 0",
			Severity:    domain.SeverityHigh,
			Enabled:     true,
		},
		{
			ID:          "tight-ring-member",
			Name:        "Tight Ring Member",
			Description: "Member of a lending ring with three or fewer participants",
			Expression:  "cycle_count > 0 && min_cycle_length <= 3",
			Severity:    domain.SeverityMedium,
			Enabled:     true,
		},
		{
			ID:          "labeled-ring-overlap",
			Name:        "Labeled Ring Overlap",
			Description: "Participant with fraud-labeled loans inside a suspicious ring",
			Expression:  "fraud_edges > 0 && cycle_count > 0",
			Severity:    domain.SeverityCritical,
			Enabled:     true,
		},
		{
			ID:          "pass-through-hub",
			Name:        "Pass-Through Hub",
			Description: "Active borrower-lender whose money in roughly equals money out",
			Expression:  "loans_in >= 2 && loans_out >= 2 && net_flow > -500.0 && net_flow < 500.0",
			Severity:    domain.SeverityLow,
			Enabled:     true,
		},
	}
}
