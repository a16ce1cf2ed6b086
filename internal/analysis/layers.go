package analysis

import (
	"path"
	"sort"

	"github.com/Benny93/archgraph/internal/graph"
)

// LayerMap maps a node id to its layer. Layer 0 holds the most foundational
// nodes, those that depend on nothing else.
type LayerMap map[int64]int

// Violation is an edge that skips more than one layer.
type Violation struct {
	Source      int64   `json:"source_id"`
	Target      int64   `json:"target_id"`
	SourceLayer int     `json:"src_layer"`
	TargetLayer int     `json:"tgt_layer"`
	Gap         int     `json:"gap"`
	Severity    float64 `json:"severity"`
}

// DetectLayers assigns every node the longest-path depth of its SCC in the
// condensation, counted from the leaves: an SCC with no outgoing
// dependencies sits in layer 0, every other SCC one above its highest
// dependency. Members of one SCC share a layer.
func DetectLayers(g *graph.Graph) LayerMap {
	layers := make(LayerMap, g.NodeCount())
	comp, count := components(g)
	if count == 0 {
		return layers
	}

	members := make([][]int, count)
	for i, c := range comp {
		members[c] = append(members[c], i)
	}

	// Successor components always carry smaller numbers.
	compLayer := make([]int, count)
	for c := 0; c < count; c++ {
		for _, i := range members[c] {
			for _, w := range g.SuccessorIndexes(i) {
				if cw := comp[w]; cw != c && compLayer[cw]+1 > compLayer[c] {
					compLayer[c] = compLayer[cw] + 1
				}
			}
		}
	}

	for i, c := range comp {
		layers[g.IDAt(i)] = compLayer[c]
	}
	return layers
}

// LayerCount returns max layer + 1, or 0 for an empty map.
func LayerCount(layers LayerMap) int {
	if len(layers) == 0 {
		return 0
	}
	top := 0
	for _, l := range layers {
		if l > top {
			top = l
		}
	}
	return top + 1
}

// FindViolations reports every distinct edge (u, v) whose endpoints are more
// than one layer apart. Severity is the gap relative to the highest layer.
// Edges with an endpoint missing from layers are skipped. Output is ordered
// by source id, then target id.
func FindViolations(g *graph.Graph, layers LayerMap) []Violation {
	violations := make([]Violation, 0)
	if len(layers) == 0 {
		return violations
	}

	maxLayer := LayerCount(layers) - 1
	if maxLayer == 0 {
		maxLayer = 1
	}

	for u := 0; u < g.NodeCount(); u++ {
		src := g.IDAt(u)
		srcLayer, ok := layers[src]
		if !ok {
			continue
		}
		for _, v := range g.SuccessorIndexes(u) {
			tgt := g.IDAt(v)
			tgtLayer, ok := layers[tgt]
			if !ok {
				continue
			}
			gap := srcLayer - tgtLayer
			if gap < 0 {
				gap = -gap
			}
			if gap <= 1 {
				continue
			}
			violations = append(violations, Violation{
				Source:      src,
				Target:      tgt,
				SourceLayer: srcLayer,
				TargetLayer: tgtLayer,
				Gap:         gap,
				Severity:    round3(float64(gap) / float64(maxLayer)),
			})
		}
	}
	return violations
}

// LayerSummary describes one layer for reporting.
type LayerSummary struct {
	Layer       int      `json:"layer"`
	Count       int      `json:"count"`
	Directories []string `json:"directories"`
	Members     []int64  `json:"members"`
}

// SummarizeLayers groups the layer map by layer, listing up to three
// dominant directories per layer. Layers are returned in ascending order.
func SummarizeLayers(g *graph.Graph, layers LayerMap) []LayerSummary {
	byLayer := make(map[int][]int64)
	for id, l := range layers {
		byLayer[l] = append(byLayer[l], id)
	}

	keys := make([]int, 0, len(byLayer))
	for l := range byLayer {
		keys = append(keys, l)
	}
	sort.Ints(keys)

	result := make([]LayerSummary, 0, len(keys))
	for _, l := range keys {
		ids := byLayer[l]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		dirs := make(map[string]int)
		for _, id := range ids {
			if n, ok := g.Node(id); ok {
				dirs[path.Dir(n.FilePath)]++
			}
		}

		result = append(result, LayerSummary{
			Layer:       l,
			Count:       len(ids),
			Directories: topKeys(dirs, 3),
			Members:     ids,
		})
	}
	return result
}
