package domain

// Label annotates a loan record on the input side. It is metadata carried
// through to the output, not a detection result.
type Label string

const (
	LabelLegit Label = "Legit"
	LabelFraud Label = "Fraud"
)

// Loan represents a single peer-to-peer loan record: a directed transfer
// from lender to borrower. Multiple loans between the same pair are kept
// as separate records, never merged or summed.
type Loan struct {
	LenderID   string  `json:"lenderId"`
	BorrowerID string  `json:"borrowerId"`
	Amount     float64 `json:"amount"`
	Label      Label   `json:"label"`
}

// AnalysisMode selects the cycle enumeration strategy for a run.
type AnalysisMode string

const (
	// ModeBounded prunes cycle search at the suspicious-cycle bound during
	// generation. Fast; the cycle census only contains cycles up to the bound.
	ModeBounded AnalysisMode = "bounded"

	// ModeExhaustive enumerates every simple cycle (subject to MaxCycles)
	// and filters at composition, so the census includes near-miss rings.
	ModeExhaustive AnalysisMode = "exhaustive"
)

// AnalysisParams are the per-run knobs of the detection engine. Zero values
// fall back to the configured defaults; components receive resolved values
// explicitly and never read ambient configuration.
type AnalysisParams struct {
	// MaxCycleLength is the suspicious-cycle bound: a cycle is flagged iff
	// its participant count is <= this value.
	MaxCycleLength int `json:"maxCycleLength,omitempty"`

	// HighRiskThreshold flags a node iff its centrality score is strictly
	// greater than this value.
	HighRiskThreshold float64 `json:"highRiskThreshold,omitempty"`

	// Mode selects bounded or exhaustive enumeration.
	Mode AnalysisMode `json:"mode,omitempty"`

	// MaxCycles is a hard stop on enumerated cycles (0 = no cap).
	MaxCycles int `json:"maxCycles,omitempty"`

	// Workers bounds parallelism in the centrality sweep (0 = GOMAXPROCS).
	Workers int `json:"workers,omitempty"`
}

// AnalyzeRequest is the API request payload for a loan-book analysis.
type AnalyzeRequest struct {
	// Loans is the ordered loan book to analyze.
	Loans []Loan `json:"loans"`

	// Params overrides configured defaults for this run.
	Params *AnalysisParams `json:"params,omitempty"`
}

// AsyncAnalyzeRequest is the bus envelope for asynchronous analysis. The id
// is assigned by the API before publishing so callers can poll immediately.
type AsyncAnalyzeRequest struct {
	AnalysisID string         `json:"analysisId"`
	Loans      []Loan         `json:"loans"`
	Params     AnalysisParams `json:"params"`
}
