// Package signal composes cycle and centrality output into fraud signals.
package signal

import (
	"github.com/opensource-finance/talon/internal/cycles"
	"github.com/opensource-finance/talon/internal/domain"
	"github.com/opensource-finance/talon/internal/graph"
)

// Params control classification during composition.
type Params struct {
	// HighRiskThreshold flags a node iff its score is strictly greater.
	HighRiskThreshold float64

	// MaxCycleLength flags a cycle as suspicious iff its length is <= this.
	MaxCycleLength int
}

// DefaultParams returns the engine defaults.
func DefaultParams() Params {
	return Params{HighRiskThreshold: 0.1, MaxCycleLength: 5}
}

type arc struct {
	from, to string
}

// Compose merges the cycle census and centrality scores into an annotated
// fraud signal: per-node score + high-risk classification, the census with
// suspicious flags, and per-edge cycle-highlight flags. An edge u→v is
// flagged iff some suspicious cycle contains u immediately followed by v,
// wrapping from the last member back to the first; every parallel u→v edge
// carries the flag. Pure and deterministic: no I/O, no side effects. An
// empty graph yields an empty signal, never an error, and nodes missing
// from scores default to 0.
func Compose(g *graph.Graph, census []cycles.Cycle, scores map[string]float64, params Params) *domain.FraudSignal {
	sig := &domain.FraudSignal{
		Nodes:  make([]domain.NodeSignal, 0, g.Order()),
		Edges:  make([]domain.EdgeSignal, 0, g.Size()),
		Cycles: make([]domain.CycleSignal, 0, len(census)),
	}

	hot := make(map[arc]struct{})
	for _, c := range census {
		suspicious := len(c) <= params.MaxCycleLength
		if suspicious {
			for i := range c {
				hot[arc{c[i], c[(i+1)%len(c)]}] = struct{}{}
			}
		}
		sig.Cycles = append(sig.Cycles, domain.CycleSignal{
			Members:    c,
			Length:     len(c),
			Suspicious: suspicious,
		})
	}

	for _, id := range g.Nodes() {
		score := scores[id]
		sig.Nodes = append(sig.Nodes, domain.NodeSignal{
			ID:       id,
			Score:    score,
			HighRisk: score > params.HighRiskThreshold,
		})
	}

	for _, e := range g.Edges() {
		_, onCycle := hot[arc{e.From, e.To}]
		sig.Edges = append(sig.Edges, domain.EdgeSignal{
			From:      e.From,
			To:        e.To,
			Amount:    e.Amount,
			Label:     e.Label,
			CycleEdge: onCycle,
		})
	}

	return sig
}
