// Package graph builds directed multigraphs from peer-to-peer loan records.
package graph

import (
	"github.com/opensource-finance/talon/internal/domain"
)

// Edge is a single loan held by the graph: a directed connection from
// lender to borrower carrying the amount and the input-side label.
// Parallel edges between the same ordered pair are distinct entities.
type Edge struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Amount float64      `json:"amount"`
	Label  domain.Label `json:"label"`
}

// Graph is a directed multigraph over participant ids. Nodes are created
// lazily when first referenced by an edge and enumerate in insertion order,
// which keeps downstream algorithms deterministic. Edges are stored in an
// index keyed by source node; nodes are lightweight ids, so no back-reference
// cycles exist. A built graph is treated as immutable for the duration of
// one analysis pass.
type Graph struct {
	nodes []string
	index map[string]int

	edges []Edge
	out   map[string][]int
	in    map[string][]int

	// succ holds deduplicated successor ids per node, in first-edge order.
	// Cycle search and shortest-path counting both work on successor sets,
	// so edge multiplicity never multiplies cycles or path counts.
	succ    map[string][]string
	succSet map[string]map[string]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index:   make(map[string]int),
		out:     make(map[string][]int),
		in:      make(map[string][]int),
		succ:    make(map[string][]string),
		succSet: make(map[string]map[string]struct{}),
	}
}

// Build constructs a graph from an ordered loan book. Each record becomes
// exactly one edge; nothing is deduplicated or aggregated. The builder
// retains no state between calls.
func Build(loans []domain.Loan) *Graph {
	g := New()
	for _, loan := range loans {
		g.AddEdge(loan.LenderID, loan.BorrowerID, loan.Amount, loan.Label)
	}
	return g
}

// AddNode inserts a node if absent and returns its insertion index.
func (g *Graph) AddNode(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, id)
	g.index[id] = i
	return i
}

// AddEdge inserts a directed from→to edge, creating missing endpoints.
// Self-loops are legal graph state.
func (g *Graph) AddEdge(from, to string, amount float64, label domain.Label) {
	g.AddNode(from)
	g.AddNode(to)

	ei := len(g.edges)
	g.edges = append(g.edges, Edge{From: from, To: to, Amount: amount, Label: label})
	g.out[from] = append(g.out[from], ei)
	g.in[to] = append(g.in[to], ei)

	set, ok := g.succSet[from]
	if !ok {
		set = make(map[string]struct{})
		g.succSet[from] = set
	}
	if _, seen := set[to]; !seen {
		set[to] = struct{}{}
		g.succ[from] = append(g.succ[from], to)
	}
}

// Order returns the number of nodes.
func (g *Graph) Order() int { return len(g.nodes) }

// Size returns the number of edges, counting parallels.
func (g *Graph) Size() int { return len(g.edges) }

// Nodes returns participant ids in insertion order. The slice is shared;
// callers must not modify it.
func (g *Graph) Nodes() []string { return g.nodes }

// Edges returns all edges in insertion order. The slice is shared; callers
// must not modify it.
func (g *Graph) Edges() []Edge { return g.edges }

// Index returns the insertion position of a node id.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Has reports whether the node id is present.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Successors returns the distinct nodes reachable from id by one edge, in
// first-edge order. The slice is shared; callers must not modify it.
func (g *Graph) Successors(id string) []string { return g.succ[id] }

// HasEdge reports whether at least one from→to edge exists.
func (g *Graph) HasEdge(from, to string) bool {
	set, ok := g.succSet[from]
	if !ok {
		return false
	}
	_, yes := set[to]
	return yes
}

// OutEdges returns the indices into Edges() of id's outgoing edges.
func (g *Graph) OutEdges(id string) []int { return g.out[id] }

// OutDegree returns the number of outgoing edges, counting parallels.
func (g *Graph) OutDegree(id string) int { return len(g.out[id]) }

// InDegree returns the number of incoming edges, counting parallels.
func (g *Graph) InDegree(id string) int { return len(g.in[id]) }
