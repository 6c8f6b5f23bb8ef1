// Package flow profiles participant lending activity over one loan book.
package flow

import (
	"github.com/opensource-finance/talon/internal/domain"
	"github.com/opensource-finance/talon/internal/graph"
)

// Profile aggregates every participant's lending activity from the built
// graph: amounts in both directions, loan counts, distinct counterparties,
// and fraud-labeled incident edges. A single scan over the edge list; every
// node is keyed, isolated participants get a zero profile. Profiles feed
// the alert-policy engine as node facts and ride along on node signals in
// the analysis report.
func Profile(g *graph.Graph) map[string]*domain.FlowProfile {
	profiles := make(map[string]*domain.FlowProfile, g.Order())
	for _, id := range g.Nodes() {
		profiles[id] = &domain.FlowProfile{}
	}

	borrowers := make(map[string]map[string]struct{})
	lenders := make(map[string]map[string]struct{})

	for _, e := range g.Edges() {
		out := profiles[e.From]
		in := profiles[e.To]

		out.TotalLent += e.Amount
		out.LoansOut++
		in.TotalBorrowed += e.Amount
		in.LoansIn++

		if set := borrowers[e.From]; set == nil {
			borrowers[e.From] = map[string]struct{}{e.To: {}}
		} else {
			set[e.To] = struct{}{}
		}
		if set := lenders[e.To]; set == nil {
			lenders[e.To] = map[string]struct{}{e.From: {}}
		} else {
			set[e.From] = struct{}{}
		}

		if e.Label == domain.LabelFraud {
			out.FraudEdges++
			if e.From != e.To {
				in.FraudEdges++
			}
		}
	}

	for id, p := range profiles {
		p.NetFlow = p.TotalLent - p.TotalBorrowed
		p.Borrowers = len(borrowers[id])
		p.Lenders = len(lenders[id])
	}
	return profiles
}
