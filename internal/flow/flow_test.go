package flow

import (
	"testing"

	"github.com/opensource-finance/talon/internal/domain"
	"github.com/opensource-finance/talon/internal/graph"
)

func TestProfile(t *testing.T) {
	t.Run("Aggregates", func(t *testing.T) {
		g := graph.Build([]domain.Loan{
			{LenderID: "a", BorrowerID: "b", Amount: 100, Label: domain.LabelLegit},
			{LenderID: "a", BorrowerID: "b", Amount: 200, Label: domain.LabelLegit},
			{LenderID: "a", BorrowerID: "c", Amount: 300, Label: domain.LabelFraud},
			{LenderID: "b", BorrowerID: "a", Amount: 50, Label: domain.LabelLegit},
		})

		profiles := Profile(g)

		a := profiles["a"]
		if a.TotalLent != 600 {
			t.Errorf("expected a lent 600, got %.0f", a.TotalLent)
		}
		if a.TotalBorrowed != 50 {
			t.Errorf("expected a borrowed 50, got %.0f", a.TotalBorrowed)
		}
		if a.NetFlow != 550 {
			t.Errorf("expected a net flow 550, got %.0f", a.NetFlow)
		}
		if a.LoansOut != 3 || a.LoansIn != 1 {
			t.Errorf("expected a loans 3 out / 1 in, got %d/%d", a.LoansOut, a.LoansIn)
		}
		if a.Borrowers != 2 {
			t.Errorf("expected 2 distinct borrowers for a, got %d", a.Borrowers)
		}
		if a.FraudEdges != 1 {
			t.Errorf("expected 1 fraud edge on a, got %d", a.FraudEdges)
		}

		c := profiles["c"]
		if c.TotalBorrowed != 300 || c.FraudEdges != 1 {
			t.Errorf("expected fraud loan visible on borrower side, got %+v", c)
		}
	})

	t.Run("SelfLoop", func(t *testing.T) {
		g := graph.Build([]domain.Loan{
			{LenderID: "x", BorrowerID: "x", Amount: 500, Label: domain.LabelFraud},
		})

		x := Profile(g)["x"]
		if x.TotalLent != 500 || x.TotalBorrowed != 500 {
			t.Errorf("expected self-loop on both sides, got %+v", x)
		}
		if x.NetFlow != 0 {
			t.Errorf("expected zero net flow on self-loop, got %.0f", x.NetFlow)
		}
		if x.FraudEdges != 1 {
			t.Errorf("expected self-loop fraud edge counted once, got %d", x.FraudEdges)
		}
	})

	t.Run("IsolatedNodeZeroProfile", func(t *testing.T) {
		g := graph.Build([]domain.Loan{
			{LenderID: "a", BorrowerID: "b", Amount: 10, Label: domain.LabelLegit},
		})
		g.AddNode("ghost")

		profiles := Profile(g)
		ghost, ok := profiles["ghost"]
		if !ok {
			t.Fatal("expected isolated node keyed")
		}
		if ghost.LoansIn != 0 || ghost.LoansOut != 0 || ghost.TotalLent != 0 {
			t.Errorf("expected zero profile, got %+v", ghost)
		}
	})

	t.Run("EmptyGraph", func(t *testing.T) {
		profiles := Profile(graph.New())
		if len(profiles) != 0 {
			t.Errorf("expected no profiles, got %v", profiles)
		}
	})
}
