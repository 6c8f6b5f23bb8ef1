// Package centrality scores loan-graph participants by structural importance.
package centrality

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/talon/internal/graph"
)

// Options tune the computation.
type Options struct {
	// Workers bounds concurrent per-source sweeps. 0 uses GOMAXPROCS.
	Workers int
}

// Betweenness computes normalized betweenness centrality for every node of
// g: the fraction of all-pairs shortest paths that pass through the node.
// The measure is purely topological — hop counts only, edge weights and
// multiplicities ignored — and is scaled by 1/((n-1)(n-2)), the directed
// maximum, so all scores land in [0,1]. Graphs with fewer than three nodes
// degenerate to all zeros rather than dividing by zero. Every node appears
// as a key; isolated nodes score 0. Scores are recomputed in full on every
// call; there is no incremental mode.
//
// Implementation is Brandes' algorithm: one sweep per source node, each a
// BFS counting shortest paths followed by a reverse-order dependency
// accumulation. Sweeps are independent, so sources fan out across workers
// and reduce into a shared accumulator under a lock. The only error source
// is context cancellation.
func Betweenness(ctx context.Context, g *graph.Graph, opts Options) (map[string]float64, error) {
	n := g.Order()
	nodes := g.Nodes()

	scores := make(map[string]float64, n)
	for _, id := range nodes {
		scores[id] = 0
	}
	if n < 3 {
		return scores, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Flatten successor ids to indices once; sweeps share it read-only.
	succIdx := make([][]int, n)
	for i, id := range nodes {
		succ := g.Successors(id)
		row := make([]int, len(succ))
		for j, wid := range succ {
			w, _ := g.Index(wid)
			row[j] = w
		}
		succIdx[i] = row
	}

	accum := make([]float64, n)
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for s := 0; s < n; s++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			dist := make([]int, n)
			for i := range dist {
				dist[i] = -1
			}
			sigma := make([]float64, n)
			delta := make([]float64, n)
			pred := make([][]int, n)
			order := make([]int, 0, n)

			dist[s] = 0
			sigma[s] = 1
			queue := make([]int, 0, n)
			queue = append(queue, s)

			for len(queue) > 0 {
				v := queue[0]
				queue = queue[1:]
				order = append(order, v)
				for _, w := range succIdx[v] {
					if dist[w] < 0 {
						dist[w] = dist[v] + 1
						queue = append(queue, w)
					}
					if dist[w] == dist[v]+1 {
						sigma[w] += sigma[v]
						pred[w] = append(pred[w], v)
					}
				}
			}

			for i := len(order) - 1; i >= 0; i-- {
				w := order[i]
				for _, v := range pred[w] {
					delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
				}
			}

			mu.Lock()
			for v, d := range delta {
				if v != s && d != 0 {
					accum[v] += d
				}
			}
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	scale := 1.0 / (float64(n-1) * float64(n-2))
	for i, id := range nodes {
		v := accum[i] * scale
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		scores[id] = v
	}
	return scores, nil
}
