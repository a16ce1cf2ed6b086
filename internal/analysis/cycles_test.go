package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/archgraph/internal/graph"
)

func TestFindCycles(t *testing.T) {
	t.Parallel()

	t.Run("SingleCycle", func(t *testing.T) {
		g := build([]int64{1, 2, 3}, [][2]int64{{1, 2}, {2, 3}, {3, 1}})

		cycles := FindCycles(g, DefaultMinCycleSize)

		require.Len(t, cycles, 1)
		assert.Equal(t, []int64{1, 2, 3}, cycles[0])
	})

	t.Run("EmptyGraph", func(t *testing.T) {
		cycles := FindCycles(graph.Build(nil, nil), DefaultMinCycleSize)

		assert.NotNil(t, cycles)
		assert.Empty(t, cycles)
	})

	t.Run("AcyclicGraph", func(t *testing.T) {
		g := build(seq(1, 4), [][2]int64{{1, 2}, {2, 3}, {3, 4}, {1, 4}})

		assert.Empty(t, FindCycles(g, DefaultMinCycleSize))
	})

	t.Run("SelfLoopNeedsMinSizeOne", func(t *testing.T) {
		g := build([]int64{1, 2}, [][2]int64{{1, 1}, {1, 2}})

		assert.Empty(t, FindCycles(g, 2))
		assert.Equal(t, [][]int64{{1}, {2}}, FindCycles(g, 1))
	})

	t.Run("OrderedBySizeThenSmallestID", func(t *testing.T) {
		g := build(seq(1, 9), [][2]int64{
			{8, 9}, {9, 8},
			{1, 2}, {2, 1},
			{3, 4}, {4, 5}, {5, 3},
			{5, 8},
		})

		cycles := FindCycles(g, DefaultMinCycleSize)

		assert.Equal(t, [][]int64{{3, 4, 5}, {1, 2}, {8, 9}}, cycles)
	})

	t.Run("MembersAreMutuallyReachable", func(t *testing.T) {
		g := build(seq(1, 8), [][2]int64{
			{1, 2}, {2, 3}, {3, 1}, {3, 4},
			{4, 5}, {5, 6}, {6, 4}, {6, 7}, {7, 8},
		})

		for _, members := range FindCycles(g, DefaultMinCycleSize) {
			for _, id := range members {
				assert.True(t, g.ReachesAll(id, members), "member %d", id)
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		ids := seq(1, 9)
		edges := [][2]int64{
			{8, 9}, {9, 8},
			{1, 2}, {2, 1},
			{3, 4}, {4, 5}, {5, 3},
			{5, 8}, {6, 7},
		}
		want := FindCycles(build(ids, edges), DefaultMinCycleSize)

		reversed := make([][2]int64, len(edges))
		for i, e := range edges {
			reversed[len(edges)-1-i] = e
		}
		symbols := make([]graph.Symbol, len(ids))
		for i, id := range ids {
			symbols[len(ids)-1-i] = sym(id, "f.go")
		}
		shuffled := buildWith(symbols, reversed)

		for i := 0; i < 5; i++ {
			assert.Equal(t, want, FindCycles(build(ids, edges), DefaultMinCycleSize))
			assert.Equal(t, want, FindCycles(shuffled, DefaultMinCycleSize))
		}
	})

	t.Run("DeepChainDoesNotOverflow", func(t *testing.T) {
		ids := seq(1, 50000)
		edges := make([][2]int64, 0, len(ids))
		for i := 0; i < len(ids)-1; i++ {
			edges = append(edges, [2]int64{ids[i], ids[i+1]})
		}
		edges = append(edges, [2]int64{ids[len(ids)-1], ids[0]})

		cycles := FindCycles(build(ids, edges), DefaultMinCycleSize)

		require.Len(t, cycles, 1)
		assert.Len(t, cycles[0], len(ids))
	})
}

func TestCycleFiles(t *testing.T) {
	t.Parallel()

	symbols := []graph.Symbol{sym(1, "a.go"), sym(2, "a.go"), sym(3, "b.go")}
	g := buildWith(symbols, [][2]int64{{1, 2}, {2, 3}, {3, 1}})

	files := CycleFiles(g, FindCycles(g, DefaultMinCycleSize))

	assert.Equal(t, map[string]int{"a.go": 2, "b.go": 1}, files)
}

func TestWeakestEdge(t *testing.T) {
	t.Parallel()

	t.Run("PicksInternalEdge", func(t *testing.T) {
		g := build(seq(1, 4), [][2]int64{{1, 2}, {2, 1}, {3, 4}, {4, 3}, {2, 3}, {4, 1}})

		edge, ok := WeakestEdge(g, []int64{1, 2, 3, 4})

		require.True(t, ok)
		assert.True(t, g.HasEdge(edge.Source, edge.Target))
		assert.Contains(t, edge.Reason, "edge betweenness")
	})

	t.Run("SingleLoopEdgeCarriesMostPaths", func(t *testing.T) {
		// With the shortcut 1 -> 3 in place, 3 -> 1 carries the most shortest paths.
		g := build([]int64{1, 2, 3}, [][2]int64{{1, 2}, {2, 3}, {3, 1}, {1, 3}})

		edge, ok := WeakestEdge(g, []int64{1, 2, 3})

		require.True(t, ok)
		assert.Equal(t, int64(3), edge.Source)
		assert.Equal(t, int64(1), edge.Target)
	})

	t.Run("TooSmall", func(t *testing.T) {
		g := build([]int64{1}, nil)

		_, ok := WeakestEdge(g, []int64{1})

		assert.False(t, ok)
	})

	t.Run("NoInternalEdges", func(t *testing.T) {
		g := build([]int64{1, 2}, nil)

		_, ok := WeakestEdge(g, []int64{1, 2})

		assert.False(t, ok)
	})
}

func TestPropagationCost(t *testing.T) {
	t.Parallel()

	t.Run("Chain", func(t *testing.T) {
		g := build([]int64{1, 2, 3}, [][2]int64{{1, 2}, {2, 3}})

		assert.InDelta(t, 0.5, PropagationCost(g), 1e-9)
	})

	t.Run("Cycle", func(t *testing.T) {
		g := build([]int64{1, 2, 3}, [][2]int64{{1, 2}, {2, 3}, {3, 1}})

		assert.InDelta(t, 1.0, PropagationCost(g), 1e-9)
	})

	t.Run("Trivial", func(t *testing.T) {
		assert.Zero(t, PropagationCost(graph.Build(nil, nil)))
		assert.Zero(t, PropagationCost(build([]int64{1}, nil)))
	})
}
