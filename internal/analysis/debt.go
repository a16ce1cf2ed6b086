package analysis

import (
	"math"
	"sort"

	"github.com/Benny93/archgraph/internal/graph"
)

// Size limits above which the expensive undirected metrics fall back to a
// normalized degree proxy.
const (
	closenessExactLimit   = 3000
	eigenvectorExactLimit = 2500
)

// DebtEntry is the technical-debt profile of one symbol.
type DebtEntry struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	FilePath    string  `json:"file_path"`
	InDegree    int     `json:"in_degree"`
	OutDegree   int     `json:"out_degree"`
	Betweenness float64 `json:"betweenness"`
	Closeness   float64 `json:"closeness"`
	Eigenvector float64 `json:"eigenvector"`
	Clustering  float64 `json:"clustering_coefficient"`
	InCycle     bool    `json:"in_cycle"`
	Score       float64 `json:"debt_score"`
}

// cyclePenalty is added to the score of symbols that sit in a cycle.
const cyclePenalty = 10.0

// DebtRanking scores every symbol 0..100 from min-max normalized degree
// (0.30), betweenness (0.25), closeness (0.20), eigenvector centrality (0.15)
// and missing local clustering (0.10). Symbols inside a cycle get a fixed
// penalty, capped at 100. The result is sorted by score descending, then id,
// and truncated to limit when limit > 0.
func DebtRanking(g *graph.Graph, betweenness map[int64]float64, cycles [][]int64, limit int) []DebtEntry {
	n := g.NodeCount()
	if n == 0 {
		return []DebtEntry{}
	}
	if betweenness == nil {
		betweenness = Betweenness(g, DefaultBetweennessOptions())
	}

	neighbours := make([][]int, n)
	for i := 0; i < n; i++ {
		neighbours[i] = undirectedNeighbours(g, i)
	}

	closeness := closenessCentrality(neighbours)
	eigen := eigenvectorCentrality(neighbours)
	clustering := clusteringCoefficient(neighbours)

	degree := make([]float64, n)
	bw := make([]float64, n)
	for i := 0; i < n; i++ {
		degree[i] = float64(len(g.PredecessorIndexes(i)) + len(g.SuccessorIndexes(i)))
		bw[i] = betweenness[g.IDAt(i)]
	}
	degreeN := minMax(degree)
	bwN := minMax(bw)
	closeN := minMax(closeness)
	eigN := minMax(eigen)

	inCycle := make(map[int64]bool)
	for _, c := range cycles {
		for _, id := range c {
			inCycle[id] = true
		}
	}

	entries := make([]DebtEntry, n)
	for i := 0; i < n; i++ {
		node := g.NodeAt(i)
		score := 100 * (0.30*degreeN[i] + 0.25*bwN[i] + 0.20*closeN[i] + 0.15*eigN[i] + 0.10*(1-clustering[i]))
		if inCycle[node.ID] {
			score += cyclePenalty
		}
		entries[i] = DebtEntry{
			ID:          node.ID,
			Name:        node.Name,
			FilePath:    node.FilePath,
			InDegree:    len(g.PredecessorIndexes(i)),
			OutDegree:   len(g.SuccessorIndexes(i)),
			Betweenness: bw[i],
			Closeness:   closeness[i],
			Eigenvector: eigen[i],
			Clustering:  clustering[i],
			InCycle:     inCycle[node.ID],
			Score:       round3(math.Max(0, math.Min(100, score))),
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// closenessCentrality uses the Wasserman-Faust form, scaling by the share of
// the graph each node reaches, so nodes in small components are not
// overrated.
func closenessCentrality(adj [][]int) []float64 {
	n := len(adj)
	result := make([]float64, n)
	if n > closenessExactLimit {
		return degreeProxy(adj)
	}
	if n <= 1 {
		return result
	}

	dist := make([]int, n)
	queue := make([]int, 0, n)
	for s := 0; s < n; s++ {
		for i := range dist {
			dist[i] = -1
		}
		dist[s] = 0
		queue = append(queue[:0], s)
		total := 0
		for head := 0; head < len(queue); head++ {
			v := queue[head]
			for _, w := range adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					total += dist[w]
					queue = append(queue, w)
				}
			}
		}
		reached := len(queue) - 1
		if total > 0 && reached > 0 {
			result[s] = float64(reached) / float64(total) * float64(reached) / float64(n-1)
		}
	}
	return result
}

// eigenvectorCentrality runs shifted power iteration (x <- x + Ax) and
// falls back to the degree proxy when it does not settle.
func eigenvectorCentrality(adj [][]int) []float64 {
	n := len(adj)
	if n == 0 {
		return nil
	}
	if n > eigenvectorExactLimit {
		return degreeProxy(adj)
	}

	x := make([]float64, n)
	next := make([]float64, n)
	for i := range x {
		x[i] = 1 / float64(n)
	}

	const maxIter = 300
	tol := 1e-6 * float64(n)
	for iter := 0; iter < maxIter; iter++ {
		copy(next, x)
		for v, neighbours := range adj {
			for _, w := range neighbours {
				next[w] += x[v]
			}
		}
		norm := 0.0
		for _, v := range next {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return degreeProxy(adj)
		}
		diff := 0.0
		for i := range next {
			next[i] /= norm
			diff += math.Abs(next[i] - x[i])
		}
		x, next = next, x
		if diff < tol {
			return x
		}
	}
	return degreeProxy(adj)
}

// clusteringCoefficient is the share of a node's neighbour pairs that are
// themselves connected.
func clusteringCoefficient(adj [][]int) []float64 {
	n := len(adj)
	result := make([]float64, n)
	mark := make([]int, n)
	for i := range mark {
		mark[i] = -1
	}
	for v, neighbours := range adj {
		k := len(neighbours)
		if k < 2 {
			continue
		}
		for _, w := range neighbours {
			mark[w] = v
		}
		links := 0
		for _, w := range neighbours {
			for _, x := range adj[w] {
				if mark[x] == v {
					links++
				}
			}
		}
		// Every link was seen from both ends.
		result[v] = float64(links) / float64(k*(k-1))
	}
	return result
}

func degreeProxy(adj [][]int) []float64 {
	result := make([]float64, len(adj))
	maxDeg := 0
	for _, neighbours := range adj {
		if len(neighbours) > maxDeg {
			maxDeg = len(neighbours)
		}
	}
	if maxDeg == 0 {
		return result
	}
	for i, neighbours := range adj {
		result[i] = float64(len(neighbours)) / float64(maxDeg)
	}
	return result
}
