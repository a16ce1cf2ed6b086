// Package analysis implements the architectural algorithms that run over a
// built symbol graph: cycle detection, layering, clustering, centrality and
// multi-agent partitioning.
//
// Every function here is a pure computation over an immutable *graph.Graph.
// Results are deterministic for a given graph and never error on empty or
// degenerate input.
package analysis

import (
	"fmt"
	"sort"

	"github.com/Benny93/archgraph/internal/graph"
)

// DefaultMinCycleSize is the smallest SCC reported as a cycle.
const DefaultMinCycleSize = 2

// components labels every node of g with its strongly connected component
// using an iterative Tarjan. Components are numbered in completion order,
// which is a reverse topological order of the condensation: a component's
// successors always carry smaller numbers.
func components(g *graph.Graph) (comp []int, count int) {
	n := g.NodeCount()
	comp = make([]int, n)
	if n == 0 {
		return comp, 0
	}

	const unvisited = -1
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = unvisited
	}

	type frame struct {
		node int
		edge int
	}

	next := 0
	stack := make([]int, 0, n)

	for root := 0; root < n; root++ {
		if index[root] != unvisited {
			continue
		}

		calls := []frame{{node: root}}
		index[root], low[root] = next, next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(calls) > 0 {
			f := &calls[len(calls)-1]
			succ := g.SuccessorIndexes(f.node)

			if f.edge < len(succ) {
				w := succ[f.edge]
				f.edge++
				if index[w] == unvisited {
					index[w], low[w] = next, next
					next++
					stack = append(stack, w)
					onStack[w] = true
					calls = append(calls, frame{node: w})
				} else if onStack[w] && index[w] < low[f.node] {
					low[f.node] = index[w]
				}
				continue
			}

			v := f.node
			if low[v] == index[v] {
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp[w] = count
					if w == v {
						break
					}
				}
				count++
			}

			calls = calls[:len(calls)-1]
			if len(calls) > 0 {
				parent := calls[len(calls)-1].node
				if low[v] < low[parent] {
					low[parent] = low[v]
				}
			}
		}
	}

	return comp, count
}

// FindCycles returns the strongly connected components of g with at least
// minSize members. Members are sorted by id; components are sorted by size
// descending, then by smallest member id.
func FindCycles(g *graph.Graph, minSize int) [][]int64 {
	if minSize < 1 {
		minSize = DefaultMinCycleSize
	}
	comp, count := components(g)
	if count == 0 {
		return [][]int64{}
	}

	// Dense indexes ascend with id, so members come out sorted.
	groups := make([][]int64, count)
	for i, c := range comp {
		groups[c] = append(groups[c], g.IDAt(i))
	}

	cycles := make([][]int64, 0)
	for _, members := range groups {
		if len(members) >= minSize {
			cycles = append(cycles, members)
		}
	}

	sort.SliceStable(cycles, func(i, j int) bool {
		if len(cycles[i]) != len(cycles[j]) {
			return len(cycles[i]) > len(cycles[j])
		}
		return cycles[i][0] < cycles[j][0]
	})
	return cycles
}

// CycleFiles counts, per file, how many cycle members it defines.
func CycleFiles(g *graph.Graph, cycles [][]int64) map[string]int {
	files := make(map[string]int)
	for _, members := range cycles {
		for _, id := range members {
			if n, ok := g.Node(id); ok {
				files[n.FilePath]++
			}
		}
	}
	return files
}

// WeakEdge is the edge suggested for breaking a cycle.
type WeakEdge struct {
	Source int64  `json:"source_id"`
	Target int64  `json:"target_id"`
	Reason string `json:"reason"`
}

// weakEdgeExactLimit bounds the SCC size for exact edge betweenness.
const weakEdgeExactLimit = 500

// WeakestEdge suggests the internal edge of an SCC whose removal most likely
// breaks it: the edge with the highest edge betweenness inside the SCC, or,
// above weakEdgeExactLimit members, the edge joining the busiest source and
// target. Returns false when the SCC has fewer than two members or no
// internal edges.
func WeakestEdge(g *graph.Graph, members []int64) (WeakEdge, bool) {
	local := make(map[int]int, len(members))
	var nodes []int
	for _, id := range members {
		i, ok := g.IndexOf(id)
		if !ok {
			continue
		}
		if _, dup := local[i]; dup {
			continue
		}
		local[i] = len(nodes)
		nodes = append(nodes, i)
	}
	if len(nodes) < 2 {
		return WeakEdge{}, false
	}
	sort.Ints(nodes)
	for k, i := range nodes {
		local[i] = k
	}

	adj := make(adjacency, len(nodes))
	edges := 0
	for k, i := range nodes {
		for _, w := range g.SuccessorIndexes(i) {
			if lw, ok := local[w]; ok && lw != k {
				adj[k] = append(adj[k], lw)
				edges++
			}
		}
	}
	if edges == 0 {
		return WeakEdge{}, false
	}

	if len(nodes) <= weakEdgeExactLimit {
		_, edgeBW := brandes(adj, nil, true)
		bestU, bestV, best := -1, -1, -1.0
		for u, succ := range adj {
			for _, v := range succ {
				if score := edgeBW[[2]int{u, v}]; score > best {
					bestU, bestV, best = u, v, score
				}
			}
		}
		return WeakEdge{
			Source: g.IDAt(nodes[bestU]),
			Target: g.IDAt(nodes[bestV]),
			Reason: fmt.Sprintf("highest edge betweenness in cycle (%.3f)", best),
		}, true
	}

	outDeg := make([]int, len(nodes))
	inDeg := make([]int, len(nodes))
	for u, succ := range adj {
		outDeg[u] = len(succ)
		for _, v := range succ {
			inDeg[v]++
		}
	}
	bestU, bestV := -1, -1
	for u, succ := range adj {
		for _, v := range succ {
			if bestU < 0 || outDeg[u] > outDeg[bestU] ||
				(outDeg[u] == outDeg[bestU] && inDeg[v] > inDeg[bestV]) {
				bestU, bestV = u, v
			}
		}
	}
	return WeakEdge{
		Source: g.IDAt(nodes[bestU]),
		Target: g.IDAt(nodes[bestV]),
		Reason: fmt.Sprintf("source has %d outgoing %s in cycle, target has %d incoming",
			outDeg[bestU], plural(outDeg[bestU], "edge", "edges"), inDeg[bestV]),
	}, true
}

// propagationExactLimit bounds the node count for an exact propagation cost.
const propagationExactLimit = 3000

// PropagationCost is the fraction of ordered node pairs (u, v), u != v, where
// v is reachable from u. Above propagationExactLimit nodes it is estimated
// from evenly spaced sample sources. Zero for graphs with fewer than two
// nodes.
func PropagationCost(g *graph.Graph) float64 {
	n := g.NodeCount()
	if n <= 1 {
		return 0
	}

	sources := evenlySpaced(n, propagationExactLimit)
	visited := make([]int, n)
	for i := range visited {
		visited[i] = -1
	}

	var reached int
	queue := make([]int, 0, n)
	for _, s := range sources {
		queue = append(queue[:0], s)
		visited[s] = s
		for head := 0; head < len(queue); head++ {
			for _, w := range g.SuccessorIndexes(queue[head]) {
				if visited[w] == s {
					continue
				}
				visited[w] = s
				reached++
				queue = append(queue, w)
			}
		}
	}

	return round4(float64(reached) / float64(len(sources)*(n-1)))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
