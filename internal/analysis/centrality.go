package analysis

import (
	"math"
	"sort"

	"github.com/Benny93/archgraph/internal/graph"
)

// Default PageRank parameters.
const (
	DefaultDamping       = 0.85
	DefaultMaxIterations = 100
	DefaultTolerance     = 1e-6
)

// Flow selects which way rank travels along a dependency edge.
type Flow string

const (
	// FlowBoth lets rank travel both ways along every dependency, so widely
	// used symbols and orchestrating hubs both score high.
	FlowBoth Flow = "both"

	// FlowForward is classic PageRank: rank flows from a symbol to what it
	// depends on.
	FlowForward Flow = "forward"

	// FlowReverse sends rank from a dependency to its dependents.
	FlowReverse Flow = "reverse"
)

// PageRankOptions configures PageRank.
type PageRankOptions struct {
	// Flow is the direction rank travels. Defaults to FlowBoth.
	//
	// FlowForward ranks a hub that only calls others below its leaves.
	// FlowReverse fixes that but leaves a widely called helper at the
	// teleport baseline. FlowBoth ranks both kinds of hub above their
	// neighbours, so it is the default for spotting central symbols.
	Flow Flow

	// Damping is the probability of following an edge rather than jumping.
	Damping float64

	// MaxIterations caps the power iteration.
	MaxIterations int

	// Tolerance is the L1 change below which the iteration stops.
	Tolerance float64

	// Adaptive picks the damping from graph cyclicity instead: 0.92 for a
	// DAG, falling linearly to 0.82 when every node sits in a cycle.
	Adaptive bool
}

// DefaultPageRankOptions returns the standard settings.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{
		Flow:          FlowBoth,
		Damping:       DefaultDamping,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
	}
}

// Validate replaces out-of-range values with defaults.
func (o *PageRankOptions) Validate() {
	switch o.Flow {
	case FlowBoth, FlowForward, FlowReverse:
	default:
		o.Flow = FlowBoth
	}
	if o.Damping <= 0 || o.Damping >= 1 {
		o.Damping = DefaultDamping
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
}

// PageRankResult holds PageRank scores and convergence details.
type PageRankResult struct {
	// Scores maps node id to score. Scores sum to 1.
	Scores map[int64]float64

	// Iterations is the number of iterations run.
	Iterations int

	// Converged is false when MaxIterations ran out first. Scores then hold
	// the last approximation.
	Converged bool

	// Damping is the damping factor actually used.
	Damping float64
}

// PageRank computes PageRank over the distinct edges of g in the direction
// chosen by opts.Flow. Mass of nodes without outgoing links is spread
// uniformly. An empty graph converges immediately with no scores.
func PageRank(g *graph.Graph, opts PageRankOptions) PageRankResult {
	opts.Validate()
	n := g.NodeCount()
	if opts.Adaptive {
		opts.Damping = adaptiveDamping(g)
	}
	result := PageRankResult{Scores: make(map[int64]float64, n), Converged: true, Damping: opts.Damping}
	if n == 0 {
		return result
	}

	links := make(adjacency, n)
	for i := 0; i < n; i++ {
		switch opts.Flow {
		case FlowForward:
			links[i] = g.SuccessorIndexes(i)
		case FlowReverse:
			links[i] = g.PredecessorIndexes(i)
		default:
			links[i] = undirectedNeighbours(g, i)
		}
	}

	d := opts.Damping
	nf := float64(n)
	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1 / nf
	}

	result.Converged = false
	for iter := 1; iter <= opts.MaxIterations; iter++ {
		sink := 0.0
		for i := 0; i < n; i++ {
			if len(links[i]) == 0 {
				sink += scores[i]
			}
		}
		base := (1-d)/nf + d*sink/nf
		for i := range next {
			next[i] = base
		}
		for i := 0; i < n; i++ {
			if len(links[i]) == 0 {
				continue
			}
			share := d * scores[i] / float64(len(links[i]))
			for _, w := range links[i] {
				next[w] += share
			}
		}

		diff := 0.0
		for i := range next {
			diff += math.Abs(next[i] - scores[i])
		}
		scores, next = next, scores
		result.Iterations = iter
		if diff < opts.Tolerance {
			result.Converged = true
			break
		}
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	for i, s := range scores {
		result.Scores[g.IDAt(i)] = s / sum
	}
	return result
}

// adaptiveDamping interpolates between 0.92 (acyclic) and 0.82 (fully
// cyclic) by the share of nodes inside non-trivial SCCs.
func adaptiveDamping(g *graph.Graph) float64 {
	n := g.NodeCount()
	if n == 0 {
		return DefaultDamping
	}
	inCycles := 0
	for _, c := range FindCycles(g, 2) {
		inCycles += len(c)
	}
	return round3(0.92 - 0.10*float64(inCycles)/float64(n))
}

// Degree holds distinct-neighbour degrees of a node.
type Degree struct {
	In  int `json:"in_degree"`
	Out int `json:"out_degree"`
}

// Degrees returns in/out degree per node, counting distinct neighbours.
func Degrees(g *graph.Graph) map[int64]Degree {
	result := make(map[int64]Degree, g.NodeCount())
	for i := 0; i < g.NodeCount(); i++ {
		result[g.IDAt(i)] = Degree{
			In:  len(g.PredecessorIndexes(i)),
			Out: len(g.SuccessorIndexes(i)),
		}
	}
	return result
}

// BetweennessOptions configures Betweenness.
type BetweennessOptions struct {
	// ExactLimit is the largest node count computed exactly.
	ExactLimit int
}

// DefaultBetweennessOptions returns exact computation up to 1000 nodes.
func DefaultBetweennessOptions() BetweennessOptions {
	return BetweennessOptions{ExactLimit: 1000}
}

// Betweenness computes unnormalized directed betweenness centrality with
// Brandes' algorithm in O(V·E). Above opts.ExactLimit nodes it uses
// k = max(200, 5·√n) evenly spaced pivots and scales by n/k.
func Betweenness(g *graph.Graph, opts BetweennessOptions) map[int64]float64 {
	if opts.ExactLimit <= 0 {
		opts.ExactLimit = DefaultBetweennessOptions().ExactLimit
	}
	n := g.NodeCount()
	result := make(map[int64]float64, n)
	if n == 0 {
		return result
	}

	adj := make(adjacency, n)
	for i := 0; i < n; i++ {
		adj[i] = g.SuccessorIndexes(i)
	}

	var pivots []int
	if n > opts.ExactLimit {
		k := int(math.Sqrt(float64(n)) * 5)
		if k < 200 {
			k = 200
		}
		pivots = evenlySpaced(n, k)
	}

	bw, _ := brandes(adj, pivots, false)
	scale := 1.0
	if pivots != nil && len(pivots) < n {
		scale = float64(n) / float64(len(pivots))
	}
	for i, v := range bw {
		result[g.IDAt(i)] = v * scale
	}
	return result
}

// adjacency is a directed graph over dense indexes.
type adjacency [][]int

// brandes accumulates shortest-path betweenness from the given sources (all
// nodes when nil). With withEdges it also returns edge betweenness keyed by
// (u, v).
func brandes(adj adjacency, sources []int, withEdges bool) ([]float64, map[[2]int]float64) {
	n := len(adj)
	bw := make([]float64, n)
	var edgeBW map[[2]int]float64
	if withEdges {
		edgeBW = make(map[[2]int]float64)
	}
	if sources == nil {
		sources = make([]int, n)
		for i := range sources {
			sources[i] = i
		}
	}

	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	preds := make([][]int, n)
	order := make([]int, 0, n)
	queue := make([]int, 0, n)

	for _, s := range sources {
		for i := 0; i < n; i++ {
			sigma[i] = 0
			dist[i] = -1
			delta[i] = 0
			preds[i] = preds[i][:0]
		}
		sigma[s] = 1
		dist[s] = 0
		order = order[:0]
		queue = append(queue[:0], s)

		for head := 0; head < len(queue); head++ {
			v := queue[head]
			order = append(order, v)
			for _, w := range adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for k := len(order) - 1; k >= 0; k-- {
			w := order[k]
			for _, v := range preds[w] {
				c := sigma[v] / sigma[w] * (1 + delta[w])
				delta[v] += c
				if withEdges {
					edgeBW[[2]int{v, w}] += c
				}
			}
			if w != s {
				bw[w] += delta[w]
			}
		}
	}
	return bw, edgeBW
}

// Metrics is the centrality vector of one node.
type Metrics struct {
	PageRank    float64 `json:"pagerank"`
	InDegree    int     `json:"in_degree"`
	OutDegree   int     `json:"out_degree"`
	Betweenness float64 `json:"betweenness"`
}

// CentralityResult is the output of Compute.
type CentralityResult struct {
	Metrics map[int64]Metrics

	// FromCache reports that the supplied cache was used as is.
	FromCache bool

	// Converged mirrors PageRankResult.Converged when computed.
	Converged bool
}

// Compute returns PageRank and degrees for every node, plus betweenness
// when bo is non-nil. Betweenness is left at zero otherwise. A cache of
// precomputed metrics is used only when it covers every node of g;
// otherwise everything is computed from scratch.
func Compute(g *graph.Graph, cache map[int64]Metrics, pr PageRankOptions, bo *BetweennessOptions) CentralityResult {
	n := g.NodeCount()
	if n > 0 && len(cache) >= n {
		covered := true
		for i := 0; i < n; i++ {
			if _, ok := cache[g.IDAt(i)]; !ok {
				covered = false
				break
			}
		}
		if covered {
			metrics := make(map[int64]Metrics, n)
			for i := 0; i < n; i++ {
				metrics[g.IDAt(i)] = cache[g.IDAt(i)]
			}
			return CentralityResult{Metrics: metrics, FromCache: true, Converged: true}
		}
	}

	ranks := PageRank(g, pr)
	degrees := Degrees(g)
	var between map[int64]float64
	if bo != nil {
		between = Betweenness(g, *bo)
	}

	metrics := make(map[int64]Metrics, n)
	for i := 0; i < n; i++ {
		id := g.IDAt(i)
		metrics[id] = Metrics{
			PageRank:    ranks.Scores[id],
			InDegree:    degrees[id].In,
			OutDegree:   degrees[id].Out,
			Betweenness: between[id],
		}
	}
	return CentralityResult{Metrics: metrics, Converged: ranks.Converged}
}

// TopByPageRank returns up to limit node ids by descending PageRank, ties
// broken by ascending id.
func TopByPageRank(scores map[int64]float64, limit int) []int64 {
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
