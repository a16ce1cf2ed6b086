package graph

import (
	"iter"
	"slices"
	"sort"
)

// arc is one stored edge, keyed by dense node index.
type arc struct {
	to   int
	kind EdgeKind
	line int
}

// Graph is an immutable directed multigraph of symbols.
//
// Nodes are stored in ascending id order, so the dense index of a node is
// also its rank by id. Forward and reverse adjacency keep every edge
// (multi-edges included); the distinct neighbour lists collapse parallel
// edges and are what the analyses walk.
//
// A built Graph is never mutated and may be shared across goroutines.
type Graph struct {
	nodes []Node
	index map[int64]int

	out [][]arc
	in  [][]arc

	// Distinct neighbours in ascending index order.
	succ [][]int
	pred [][]int

	byName map[string][]int
	byFile map[string][]int

	edgeCount int
	pairCount int
	dropped   int
}

type buildOptions struct {
	kinds map[EdgeKind]bool
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

// WithEdgeKinds restricts the graph to the given edge kinds.
// Edges of other kinds are skipped and not counted as dropped.
func WithEdgeKinds(kinds ...EdgeKind) BuildOption {
	return func(o *buildOptions) {
		if len(kinds) == 0 {
			return
		}
		o.kinds = make(map[EdgeKind]bool, len(kinds))
		for _, k := range kinds {
			o.kinds[k] = true
		}
	}
}

// Build materializes a graph from symbol and edge rows in O(V log V + E).
//
// Edges whose endpoints are missing from the symbol set are dropped and
// counted (see DroppedEdges). Duplicate symbol ids keep the first row.
// Zero symbols yields a valid empty graph.
func Build(symbols []Symbol, edges []EdgeRow, opts ...BuildOption) *Graph {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph{
		nodes:  make([]Node, 0, len(symbols)),
		index:  make(map[int64]int, len(symbols)),
		byName: make(map[string][]int),
		byFile: make(map[string][]int),
	}

	seen := make(map[int64]bool, len(symbols))
	for _, s := range symbols {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		g.nodes = append(g.nodes, s)
	}
	sort.Slice(g.nodes, func(i, j int) bool { return g.nodes[i].ID < g.nodes[j].ID })

	n := len(g.nodes)
	for i, node := range g.nodes {
		g.index[node.ID] = i
		g.byName[node.Name] = append(g.byName[node.Name], i)
		if node.QualifiedName != "" && node.QualifiedName != node.Name {
			g.byName[node.QualifiedName] = append(g.byName[node.QualifiedName], i)
		}
		g.byFile[node.FilePath] = append(g.byFile[node.FilePath], i)
	}

	g.out = make([][]arc, n)
	g.in = make([][]arc, n)
	for _, e := range edges {
		if o.kinds != nil && !o.kinds[e.Kind] {
			continue
		}
		src, ok := g.index[e.SourceID]
		if !ok {
			g.dropped++
			continue
		}
		dst, ok := g.index[e.TargetID]
		if !ok {
			g.dropped++
			continue
		}
		g.out[src] = append(g.out[src], arc{to: dst, kind: e.Kind, line: e.Line})
		g.in[dst] = append(g.in[dst], arc{to: src, kind: e.Kind, line: e.Line})
		g.edgeCount++
	}

	g.succ = distinctNeighbours(g.out)
	g.pred = distinctNeighbours(g.in)
	for _, s := range g.succ {
		g.pairCount += len(s)
	}

	return g
}

func distinctNeighbours(adj [][]arc) [][]int {
	result := make([][]int, len(adj))
	stamp := make([]int, len(adj))
	for i := range stamp {
		stamp[i] = -1
	}
	for u, arcs := range adj {
		if len(arcs) == 0 {
			continue
		}
		list := make([]int, 0, len(arcs))
		for _, a := range arcs {
			if stamp[a.to] == u {
				continue
			}
			stamp[a.to] = u
			list = append(list, a.to)
		}
		slices.Sort(list)
		result[u] = list
	}
	return result
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of stored edges, parallel edges included.
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// PairCount returns the number of distinct (source, target) pairs.
func (g *Graph) PairCount() int {
	return g.pairCount
}

// DroppedEdges returns how many edge rows referenced unknown symbols.
func (g *Graph) DroppedEdges() int {
	return g.dropped
}

// Node returns the node with the given id.
func (g *Graph) Node(id int64) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Has reports whether the graph contains the id.
func (g *Graph) Has(id int64) bool {
	_, ok := g.index[id]
	return ok
}

// Nodes returns all nodes in ascending id order.
func (g *Graph) Nodes() []Node {
	return slices.Clone(g.nodes)
}

// IDs returns all node ids in ascending order.
func (g *Graph) IDs() []int64 {
	ids := make([]int64, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}
	return ids
}

// IndexOf returns the dense index of a node id.
func (g *Graph) IndexOf(id int64) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// IDAt returns the node id stored at a dense index.
func (g *Graph) IDAt(i int) int64 {
	return g.nodes[i].ID
}

// NodeAt returns the node stored at a dense index.
func (g *Graph) NodeAt(i int) Node {
	return g.nodes[i]
}

// SuccessorIndexes returns the distinct successors of the node at index i.
// The returned slice is shared and must not be modified.
func (g *Graph) SuccessorIndexes(i int) []int {
	return g.succ[i]
}

// PredecessorIndexes returns the distinct predecessors of the node at index i.
// The returned slice is shared and must not be modified.
func (g *Graph) PredecessorIndexes(i int) []int {
	return g.pred[i]
}

// Successors returns the distinct ids the node depends on, ascending.
func (g *Graph) Successors(id int64) []int64 {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.toIDs(g.succ[i])
}

// Predecessors returns the distinct ids depending on the node, ascending.
func (g *Graph) Predecessors(id int64) []int64 {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.toIDs(g.pred[i])
}

func (g *Graph) toIDs(idx []int) []int64 {
	ids := make([]int64, len(idx))
	for k, i := range idx {
		ids[k] = g.nodes[i].ID
	}
	return ids
}

// OutEdges returns every outgoing edge of a node in insertion order.
func (g *Graph) OutEdges(id int64) []Edge {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	edges := make([]Edge, len(g.out[i]))
	for k, a := range g.out[i] {
		edges[k] = Edge{Source: id, Target: g.nodes[a.to].ID, Kind: a.kind, Line: a.line}
	}
	return edges
}

// InEdges returns every incoming edge of a node in insertion order.
func (g *Graph) InEdges(id int64) []Edge {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	edges := make([]Edge, len(g.in[i]))
	for k, a := range g.in[i] {
		edges[k] = Edge{Source: g.nodes[a.to].ID, Target: id, Kind: a.kind, Line: a.line}
	}
	return edges
}

// HasEdge reports whether at least one edge runs from u to v.
func (g *Graph) HasEdge(u, v int64) bool {
	ui, ok := g.index[u]
	if !ok {
		return false
	}
	vi, ok := g.index[v]
	if !ok {
		return false
	}
	_, found := slices.BinarySearch(g.succ[ui], vi)
	return found
}

// Edges yields every stored edge, grouped by source in ascending id order.
func (g *Graph) Edges() iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for u, arcs := range g.out {
			for _, a := range arcs {
				e := Edge{Source: g.nodes[u].ID, Target: g.nodes[a.to].ID, Kind: a.kind, Line: a.line}
				if !yield(e) {
					return
				}
			}
		}
	}
}

// Reverse returns a view of the graph with every edge flipped.
// Node storage is shared with the receiver.
func (g *Graph) Reverse() *Graph {
	return &Graph{
		nodes:     g.nodes,
		index:     g.index,
		out:       g.in,
		in:        g.out,
		succ:      g.pred,
		pred:      g.succ,
		byName:    g.byName,
		byFile:    g.byFile,
		edgeCount: g.edgeCount,
		pairCount: g.pairCount,
		dropped:   g.dropped,
	}
}

// Files returns the distinct file paths of all nodes, sorted.
func (g *Graph) Files() []string {
	files := make([]string, 0, len(g.byFile))
	for f := range g.byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// NodesInFile returns the ids of the nodes defined in a file, ascending.
func (g *Graph) NodesInFile(path string) []int64 {
	return g.toIDs(g.byFile[path])
}

// Subgraph builds a new graph induced by the nodes for which keep returns
// true. Edges with a removed endpoint are left out and not counted as
// dropped.
func (g *Graph) Subgraph(keep func(Node) bool) *Graph {
	symbols := make([]Symbol, 0, len(g.nodes))
	kept := make(map[int64]bool)
	for _, n := range g.nodes {
		if keep(n) {
			symbols = append(symbols, n)
			kept[n.ID] = true
		}
	}
	var edges []EdgeRow
	for e := range g.Edges() {
		if kept[e.Source] && kept[e.Target] {
			edges = append(edges, EdgeRow{SourceID: e.Source, TargetID: e.Target, Kind: e.Kind, Line: e.Line})
		}
	}
	return Build(symbols, edges)
}
