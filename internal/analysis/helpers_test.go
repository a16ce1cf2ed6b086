package analysis

import (
	"fmt"

	"github.com/Benny93/archgraph/internal/graph"
)

func sym(id int64, file string) graph.Symbol {
	name := fmt.Sprintf("Sym%d", id)
	return graph.Symbol{
		ID:            id,
		Name:          name,
		QualifiedName: "pkg." + name,
		Kind:          graph.KindFunction,
		FilePath:      file,
		LineStart:     int(id) * 10,
		LineEnd:       int(id)*10 + 5,
	}
}

// build creates one symbol per id in file "f<id>.go" and a call edge per pair.
func build(ids []int64, edges [][2]int64) *graph.Graph {
	symbols := make([]graph.Symbol, len(ids))
	for i, id := range ids {
		symbols[i] = sym(id, fmt.Sprintf("f%d.go", id))
	}
	return buildWith(symbols, edges)
}

func buildWith(symbols []graph.Symbol, edges [][2]int64) *graph.Graph {
	rows := make([]graph.EdgeRow, len(edges))
	for i, e := range edges {
		rows[i] = graph.EdgeRow{SourceID: e[0], TargetID: e[1], Kind: graph.EdgeCall, Line: 1}
	}
	return graph.Build(symbols, rows)
}

func seq(from, to int64) []int64 {
	ids := make([]int64, 0, to-from+1)
	for id := from; id <= to; id++ {
		ids = append(ids, id)
	}
	return ids
}

func star(leaves int) *graph.Graph {
	ids := seq(1, int64(leaves)+1)
	edges := make([][2]int64, 0, leaves)
	for _, leaf := range ids[1:] {
		edges = append(edges, [2]int64{1, leaf})
	}
	return build(ids, edges)
}

// twoTriangles is two 3-cycles joined by a single bridge 3 -> 4.
func twoTriangles() *graph.Graph {
	return build(seq(1, 6), [][2]int64{
		{1, 2}, {2, 3}, {3, 1},
		{4, 5}, {5, 6}, {6, 4},
		{3, 4},
	})
}
