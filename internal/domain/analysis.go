package domain

import (
	"time"
)

// FraudSignal is the composed, read-only output of one detection pass:
// per-node scores and classifications, the flagged cycle census, and
// per-edge cycle-highlight flags. It carries everything a presentation
// layer needs and nothing about how to render it.
type FraudSignal struct {
	Nodes  []NodeSignal  `json:"nodes"`
	Edges  []EdgeSignal  `json:"edges"`
	Cycles []CycleSignal `json:"cycles"`
}

// NodeSignal is the per-participant slice of a fraud signal.
type NodeSignal struct {
	ID string `json:"id"`

	// Score is the normalized betweenness centrality in [0,1].
	Score float64 `json:"score"`

	// HighRisk is true iff Score is strictly greater than the configured
	// threshold.
	HighRisk bool `json:"highRisk"`

	// Flow carries lending aggregates for the participant when profiling
	// is enabled.
	Flow *FlowProfile `json:"flow,omitempty"`
}

// EdgeSignal is the per-loan slice of a fraud signal. Edges appear in
// loan-book order, one per input record.
type EdgeSignal struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
	Label  Label   `json:"label"`

	// CycleEdge is true iff the edge lies on at least one suspicious cycle
	// in the traversal direction.
	CycleEdge bool `json:"cycleEdge"`
}

// CycleSignal is one enumerated simple cycle. Members are listed in
// traversal order starting from the canonical (first-inserted) participant;
// Length counts participants, not edges.
type CycleSignal struct {
	Members    []string `json:"members"`
	Length     int      `json:"length"`
	Suspicious bool     `json:"suspicious"`
}

// FlowProfile aggregates a participant's lending activity over one loan book.
type FlowProfile struct {
	TotalLent     float64 `json:"totalLent"`
	TotalBorrowed float64 `json:"totalBorrowed"`

	// NetFlow is TotalLent - TotalBorrowed. Near-zero net flow with high
	// volume marks pass-through conduits.
	NetFlow float64 `json:"netFlow"`

	LoansOut int `json:"loansOut"`
	LoansIn  int `json:"loansIn"`

	// Borrowers and Lenders count distinct counterparties.
	Borrowers int `json:"borrowers"`
	Lenders   int `json:"lenders"`

	// FraudEdges counts incident loans labeled Fraud (either direction).
	FraudEdges int `json:"fraudEdges"`
}

// Analysis is the complete, persisted result of one detection run.
type Analysis struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Status   string `json:"status"`

	// Params are the resolved parameters the run actually used.
	Params AnalysisParams `json:"params"`

	Signal  *FraudSignal    `json:"signal"`
	Summary AnalysisSummary `json:"summary"`
	Alerts  []Alert         `json:"alerts,omitempty"`

	Metadata  AnalysisMetadata `json:"metadata"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Analysis status constants.
const (
	StatusCompleted = "COMPLETED"
	StatusTruncated = "TRUNCATED" // cycle census hit the MaxCycles stop
	StatusFailed    = "FAILED"
)

// AnalysisSummary rolls the signal up into headline counts and a risk level.
type AnalysisSummary struct {
	Participants     int       `json:"participants"`
	Loans            int       `json:"loans"`
	Cycles           int       `json:"cycles"`
	SuspiciousCycles int       `json:"suspiciousCycles"`
	HighRiskNodes    int       `json:"highRiskNodes"`
	FlaggedEdges     int       `json:"flaggedEdges"`
	PolicyMatches    int       `json:"policyMatches"`
	RiskLevel        RiskLevel `json:"riskLevel"`
}

// AnalysisMetadata records per-stage processing times.
type AnalysisMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	BuildMs       int64  `json:"buildMs"`
	CycleMs       int64  `json:"cycleMs"`
	ScoreMs       int64  `json:"scoreMs"`
	ComposeMs     int64  `json:"composeMs"`
	PolicyMs      int64  `json:"policyMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// RiskLevel bands an analysis into an operator-facing severity.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// DetermineRiskLevel maps summary counts and alert severities to a band:
// critical when a critical policy fired or a suspicious ring has 3+ high-risk
// members, high when any suspicious cycle exists, medium on high-risk nodes
// or policy matches, low when only oversized cycles were found.
func DetermineRiskLevel(s AnalysisSummary, alerts []Alert) RiskLevel {
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			return RiskCritical
		}
	}
	if s.SuspiciousCycles > 0 {
		if s.HighRiskNodes >= 3 {
			return RiskCritical
		}
		return RiskHigh
	}
	if s.HighRiskNodes > 0 || s.PolicyMatches > 0 {
		return RiskMedium
	}
	if s.Cycles > 0 {
		return RiskLow
	}
	return RiskNone
}

// AnalyzeAccepted is the API response for an async analysis submission.
type AnalyzeAccepted struct {
	AnalysisID string `json:"analysisId"`
	TenantID   string `json:"tenantId"`
	Status     string `json:"status"`
}

// StatusQueued marks an async analysis that has been published but not
// yet processed.
const StatusQueued = "QUEUED"
