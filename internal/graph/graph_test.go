package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sym(id int64, name, file string) Symbol {
	return Symbol{ID: id, Name: name, QualifiedName: "pkg." + name, Kind: KindFunction, FilePath: file, LineStart: int(id) * 10, LineEnd: int(id)*10 + 5}
}

func call(src, dst int64) EdgeRow {
	return EdgeRow{SourceID: src, TargetID: dst, Kind: EdgeCall, Line: 1}
}

func TestBuild_Empty(t *testing.T) {
	t.Parallel()

	g := Build(nil, nil)

	require.NotNil(t, g)
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
	assert.Empty(t, g.IDs())
	assert.Empty(t, g.Files())
	assert.Empty(t, g.Reachable([]int64{1}, 0))

	count := 0
	for range g.Edges() {
		count++
	}
	assert.Zero(t, count)
}

func TestBuild_Adjacency(t *testing.T) {
	t.Parallel()

	symbols := []Symbol{sym(3, "c", "b.go"), sym(1, "a", "a.go"), sym(2, "b", "a.go")}
	edges := []EdgeRow{
		call(1, 2),
		{SourceID: 1, TargetID: 2, Kind: EdgeReference, Line: 7},
		call(2, 3),
		call(1, 3),
	}
	g := Build(symbols, edges)

	t.Run("NodesSortedByID", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []int64{1, 2, 3}, g.IDs())
		assert.Equal(t, int64(1), g.NodeAt(0).ID)
	})

	t.Run("Counts", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 3, g.NodeCount())
		assert.Equal(t, 4, g.EdgeCount())
		assert.Equal(t, 3, g.PairCount())
		assert.Zero(t, g.DroppedEdges())
	})

	t.Run("SuccessorsAndPredecessors", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []int64{2, 3}, g.Successors(1))
		assert.Equal(t, []int64{1, 2}, g.Predecessors(3))
		assert.Empty(t, g.Successors(3))
		assert.Nil(t, g.Successors(99))
	})

	t.Run("MultiEdgesKeepKinds", func(t *testing.T) {
		t.Parallel()
		out := g.OutEdges(1)
		require.Len(t, out, 3)
		assert.Equal(t, EdgeCall, out[0].Kind)
		assert.Equal(t, EdgeReference, out[1].Kind)
		assert.Equal(t, 7, out[1].Line)

		in := g.InEdges(2)
		require.Len(t, in, 2)
		assert.Equal(t, int64(1), in[0].Source)
	})

	t.Run("HasEdge", func(t *testing.T) {
		t.Parallel()
		assert.True(t, g.HasEdge(1, 2))
		assert.False(t, g.HasEdge(2, 1))
		assert.False(t, g.HasEdge(1, 42))
	})

	t.Run("Files", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"a.go", "b.go"}, g.Files())
		assert.Equal(t, []int64{1, 2}, g.NodesInFile("a.go"))
	})
}

func TestBuild_DropsMalformedEdges(t *testing.T) {
	t.Parallel()

	g := Build(
		[]Symbol{sym(1, "a", "a.go"), sym(2, "b", "a.go")},
		[]EdgeRow{call(1, 2), call(1, 9), call(8, 2)},
	)

	assert.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, 2, g.DroppedEdges())
}

func TestBuild_DuplicateSymbolsKeepFirst(t *testing.T) {
	t.Parallel()

	first := sym(1, "a", "a.go")
	second := sym(1, "z", "z.go")
	g := Build([]Symbol{first, second}, nil)

	assert.Equal(t, 1, g.NodeCount())
	n, ok := g.Node(1)
	require.True(t, ok)
	assert.Equal(t, "a", n.Name)
}

func TestBuild_WithEdgeKinds(t *testing.T) {
	t.Parallel()

	g := Build(
		[]Symbol{sym(1, "a", "a.go"), sym(2, "b", "a.go")},
		[]EdgeRow{
			call(1, 2),
			{SourceID: 2, TargetID: 1, Kind: EdgeImports},
		},
		WithEdgeKinds(EdgeImports),
	)

	assert.Equal(t, 1, g.EdgeCount())
	assert.True(t, g.HasEdge(2, 1))
	assert.False(t, g.HasEdge(1, 2))
	assert.Zero(t, g.DroppedEdges())
}

func TestGraph_Reverse(t *testing.T) {
	t.Parallel()

	g := Build(
		[]Symbol{sym(1, "a", "a.go"), sym(2, "b", "a.go"), sym(3, "c", "a.go")},
		[]EdgeRow{call(1, 2), call(2, 3)},
	)
	r := g.Reverse()

	assert.Equal(t, g.NodeCount(), r.NodeCount())
	assert.Equal(t, []int64{1}, r.Successors(2))
	assert.Equal(t, []int64{3}, r.Predecessors(2))
	assert.True(t, r.HasEdge(3, 2))

	out := r.OutEdges(3)
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0].Source)
	assert.Equal(t, int64(2), out[0].Target)

	// The original is untouched.
	assert.Equal(t, []int64{2}, g.Successors(1))
}

func TestGraph_Edges(t *testing.T) {
	t.Parallel()

	g := Build(
		[]Symbol{sym(1, "a", "a.go"), sym(2, "b", "a.go")},
		[]EdgeRow{call(2, 1), call(1, 2)},
	)

	var got []Edge
	for e := range g.Edges() {
		got = append(got, e)
	}

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Source)
	assert.Equal(t, int64(2), got[1].Source)
}

func TestParseEdgeKind(t *testing.T) {
	t.Parallel()

	k, ok := ParseEdgeKind("implements")
	assert.True(t, ok)
	assert.Equal(t, EdgeImplements, k)

	_, ok = ParseEdgeKind("contains")
	assert.False(t, ok)
}

func TestGraph_Subgraph(t *testing.T) {
	t.Parallel()

	g := Build(
		[]Symbol{sym(1, "a", "a.go"), sym(2, "b", "b.go"), sym(3, "c", "a.go")},
		[]EdgeRow{call(1, 2), call(2, 3), call(3, 1)},
	)

	sub := g.Subgraph(func(n Node) bool { return n.FilePath == "a.go" })

	assert.Equal(t, []int64{1, 3}, sub.IDs())
	assert.Equal(t, 1, sub.EdgeCount())
	assert.True(t, sub.HasEdge(3, 1))
	assert.Zero(t, sub.DroppedEdges())
}
