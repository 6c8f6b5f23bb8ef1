package centrality

import (
	"context"
	"math"
	"testing"

	"github.com/opensource-finance/talon/internal/domain"
	"github.com/opensource-finance/talon/internal/graph"
)

const tolerance = 1e-9

func buildGraph(arcs [][2]string) *graph.Graph {
	g := graph.New()
	for _, a := range arcs {
		g.AddEdge(a[0], a[1], 1000, domain.LabelLegit)
	}
	return g
}

func scoresOf(t *testing.T, g *graph.Graph, workers int) map[string]float64 {
	t.Helper()
	scores, err := Betweenness(context.Background(), g, Options{Workers: workers})
	if err != nil {
		t.Fatalf("Betweenness failed: %v", err)
	}
	return scores
}

func TestBetweenness(t *testing.T) {
	t.Run("DirectedPath", func(t *testing.T) {
		// A→B→C: B carries the single A→C shortest path.
		// Raw 1, scaled by 1/((3-1)(3-2)).
		g := buildGraph([][2]string{{"A", "B"}, {"B", "C"}})
		scores := scoresOf(t, g, 1)

		if math.Abs(scores["B"]-0.5) > tolerance {
			t.Errorf("expected B = 0.5, got %f", scores["B"])
		}
		if scores["A"] != 0 || scores["C"] != 0 {
			t.Errorf("expected endpoints at 0, got A=%f C=%f", scores["A"], scores["C"])
		}
	})

	t.Run("TriangleSymmetric", func(t *testing.T) {
		// Each ring member relays exactly one shortest path.
		g := buildGraph([][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}})
		scores := scoresOf(t, g, 1)

		for _, id := range []string{"A", "B", "C"} {
			if math.Abs(scores[id]-0.5) > tolerance {
				t.Errorf("expected %s = 0.5 on a symmetric ring, got %f", id, scores[id])
			}
		}
	})

	t.Run("FewerThanThreeNodes", func(t *testing.T) {
		g := buildGraph([][2]string{{"A", "B"}})
		scores := scoresOf(t, g, 1)

		if len(scores) != 2 {
			t.Fatalf("expected both nodes keyed, got %v", scores)
		}
		if scores["A"] != 0 || scores["B"] != 0 {
			t.Errorf("expected degenerate zeros, got %v", scores)
		}
	})

	t.Run("IsolatedNodeScoresZero", func(t *testing.T) {
		g := buildGraph([][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}})
		g.AddNode("loner")
		scores := scoresOf(t, g, 1)

		if v, ok := scores["loner"]; !ok {
			t.Error("expected isolated node to be keyed")
		} else if v != 0 {
			t.Errorf("expected isolated node at 0, got %f", v)
		}
	})

	t.Run("RangeAndKeys", func(t *testing.T) {
		g := buildGraph([][2]string{
			{"A", "B"}, {"B", "C"}, {"C", "D"}, {"D", "A"},
			{"B", "D"}, {"A", "C"}, {"D", "B"},
		})
		scores := scoresOf(t, g, 1)

		if len(scores) != g.Order() {
			t.Fatalf("expected %d keys, got %d", g.Order(), len(scores))
		}
		for id, v := range scores {
			if v < 0 || v > 1 {
				t.Errorf("score out of range for %s: %f", id, v)
			}
		}
	})

	t.Run("RelabelingInvariantSum", func(t *testing.T) {
		a := buildGraph([][2]string{
			{"A", "B"}, {"B", "C"}, {"C", "A"}, {"C", "D"}, {"D", "B"},
		})
		b := buildGraph([][2]string{
			{"p9", "q7"}, {"q7", "r5"}, {"r5", "p9"}, {"r5", "s3"}, {"s3", "q7"},
		})

		sum := func(m map[string]float64) float64 {
			total := 0.0
			for _, v := range m {
				total += v
			}
			return total
		}

		sa, sb := sum(scoresOf(t, a, 1)), sum(scoresOf(t, b, 1))
		if math.Abs(sa-sb) > tolerance {
			t.Errorf("score sum not relabeling-invariant: %f vs %f", sa, sb)
		}
	})

	t.Run("SelfLoopIgnored", func(t *testing.T) {
		plain := buildGraph([][2]string{{"A", "B"}, {"B", "C"}})
		looped := buildGraph([][2]string{{"A", "B"}, {"B", "C"}, {"B", "B"}})

		ps, ls := scoresOf(t, plain, 1), scoresOf(t, looped, 1)
		for id := range ps {
			if math.Abs(ps[id]-ls[id]) > tolerance {
				t.Errorf("self-loop changed %s: %f vs %f", id, ps[id], ls[id])
			}
		}
	})

	t.Run("ParallelMatchesSequential", func(t *testing.T) {
		g := buildGraph([][2]string{
			{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "e"}, {"e", "a"},
			{"b", "e"}, {"c", "a"}, {"d", "b"}, {"a", "d"},
		})

		seq := scoresOf(t, g, 1)
		par := scoresOf(t, g, 8)

		for id := range seq {
			if math.Abs(seq[id]-par[id]) > tolerance {
				t.Errorf("parallel diverged for %s: %f vs %f", id, seq[id], par[id])
			}
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		g := buildGraph([][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := Betweenness(ctx, g, Options{Workers: 1}); err == nil {
			t.Error("expected error from cancelled context")
		}
	})

	t.Run("EmptyGraph", func(t *testing.T) {
		scores := scoresOf(t, graph.New(), 1)
		if len(scores) != 0 {
			t.Errorf("expected empty result, got %v", scores)
		}
	})
}
