// Package cycles enumerates simple directed cycles in loan graphs.
package cycles

import (
	"github.com/opensource-finance/talon/internal/graph"
)

// Cycle is an ordered sequence of distinct participant ids forming a
// directed cycle, wrapping from the last member back to the first. The
// canonical form starts at the member with the smallest insertion index,
// so rotations of the same cycle never appear twice. A self-loop is a
// length-1 cycle. Length counts participants, not edges.
type Cycle []string

// Options bound the search.
type Options struct {
	// MaxLength prunes partial paths during generation once they reach
	// this many participants. 0 enumerates cycles of every length.
	MaxLength int

	// MaxCycles is a hard stop on census size. 0 means unlimited.
	MaxCycles int
}

// Enumerate returns the cycle census of g: every simple directed cycle,
// reported exactly once in canonical form, ordered by root index and then
// discovery order. Enumeration is deterministic for a fixed graph. The
// search runs Johnson-style: roots ascend in insertion order, each DFS is
// restricted to nodes with index >= root inside the root's strongly
// connected component, and dead ends stay blocked until a path through
// them could close a new cycle. With MaxLength set, paths are pruned
// during generation, never after.
//
// truncated reports that MaxCycles stopped the search early; the returned
// census is still valid, just incomplete. Acyclic, disconnected, and empty
// graphs yield an empty census, never an error.
func Enumerate(g *graph.Graph, opts Options) (census []Cycle, truncated bool) {
	n := g.Order()
	if n == 0 {
		return nil, false
	}

	nodes := g.Nodes()
	comp := stronglyConnected(g)

	for s := 0; s < n && !truncated; s++ {
		blocked := make([]bool, n)
		blist := make(map[int][]int)
		path := make([]string, 0, 8)

		var circuit func(v int) bool
		circuit = func(v int) bool {
			if truncated {
				return true
			}
			found := false
			pruned := false
			path = append(path, nodes[v])
			blocked[v] = true

			for _, wid := range g.Successors(nodes[v]) {
				if truncated {
					break
				}
				w, _ := g.Index(wid)
				if w < s || comp[w] != comp[s] {
					continue
				}
				if w == s {
					c := make(Cycle, len(path))
					copy(c, path)
					census = append(census, c)
					if opts.MaxCycles > 0 && len(census) >= opts.MaxCycles {
						truncated = true
					}
					found = true
					continue
				}
				if opts.MaxLength > 0 && len(path) >= opts.MaxLength {
					pruned = true
					continue
				}
				if !blocked[w] && circuit(w) {
					found = true
				}
			}

			// A branch cut by the length bound invalidates the dead-end
			// proof, so treat it like a hit and unblock eagerly.
			if found || pruned {
				unblock(v, blocked, blist)
			} else {
				for _, wid := range g.Successors(nodes[v]) {
					w, _ := g.Index(wid)
					if w < s || comp[w] != comp[s] {
						continue
					}
					blist[w] = append(blist[w], v)
				}
			}

			path = path[:len(path)-1]
			return found || pruned
		}

		circuit(s)
	}

	return census, truncated
}

func unblock(v int, blocked []bool, blist map[int][]int) {
	blocked[v] = false
	for len(blist[v]) > 0 {
		u := blist[v][len(blist[v])-1]
		blist[v] = blist[v][:len(blist[v])-1]
		if blocked[u] {
			unblock(u, blocked, blist)
		}
	}
}

// FilterSuspicious returns the subset of the census with length <=
// maxLength, preserving order. Reapplying the same bound is a no-op.
func FilterSuspicious(census []Cycle, maxLength int) []Cycle {
	var out []Cycle
	for _, c := range census {
		if len(c) <= maxLength {
			out = append(out, c)
		}
	}
	return out
}

// tarjanFrame replaces recursion in the SCC pass with an explicit stack.
type tarjanFrame struct {
	v  int
	si int
}

// stronglyConnected assigns a component id to every node index. Cycles
// never cross component boundaries, so the enumerator skips any successor
// outside the root's component.
func stronglyConnected(g *graph.Graph) []int {
	n := g.Order()
	nodes := g.Nodes()

	const unvisited = -1
	disc := make([]int, n)
	low := make([]int, n)
	comp := make([]int, n)
	for i := range disc {
		disc[i] = unvisited
		comp[i] = unvisited
	}
	onStack := make([]bool, n)

	var stack []int
	var frames []tarjanFrame
	next := 0
	nComp := 0

	for root := 0; root < n; root++ {
		if disc[root] != unvisited {
			continue
		}
		frames = append(frames, tarjanFrame{v: root})

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := f.v

			if f.si == 0 {
				disc[v] = next
				low[v] = next
				next++
				stack = append(stack, v)
				onStack[v] = true
			}

			succ := g.Successors(nodes[v])
			descended := false
			for f.si < len(succ) {
				w, _ := g.Index(succ[f.si])
				f.si++
				if disc[w] == unvisited {
					frames = append(frames, tarjanFrame{v: w})
					descended = true
					break
				}
				if onStack[w] && disc[w] < low[v] {
					low[v] = disc[w]
				}
			}
			if descended {
				continue
			}

			if low[v] == disc[v] {
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp[w] = nComp
					if w == v {
						break
					}
				}
				nComp++
			}

			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := &frames[len(frames)-1]
				if low[v] < low[parent.v] {
					low[parent.v] = low[v]
				}
			}
		}
	}

	return comp
}
