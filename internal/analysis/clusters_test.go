package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/archgraph/internal/graph"
)

func TestDetectClusters(t *testing.T) {
	t.Parallel()

	t.Run("SeparatesTriangles", func(t *testing.T) {
		clusters := DetectClusters(twoTriangles())

		assert.Equal(t, ClusterMap{1: 0, 2: 0, 3: 0, 4: 1, 5: 1, 6: 1}, clusters)
	})

	t.Run("Deterministic", func(t *testing.T) {
		g := build(seq(1, 12), [][2]int64{
			{1, 2}, {2, 3}, {3, 4}, {4, 1}, {1, 3},
			{5, 6}, {6, 7}, {7, 8}, {8, 5}, {6, 8},
			{9, 10}, {10, 11}, {11, 12}, {12, 9},
			{4, 5}, {8, 9},
		})

		first := DetectClusters(g)
		for range 5 {
			assert.Equal(t, first, DetectClusters(g))
		}
	})

	t.Run("ExhaustiveDisjointCover", func(t *testing.T) {
		g := build(seq(1, 10), [][2]int64{{1, 2}, {2, 3}, {4, 5}, {6, 7}, {7, 6}, {3, 6}})

		clusters := DetectClusters(g)

		require.Len(t, clusters, g.NodeCount())
		groups := ClusterGroups(clusters)
		seen := make(map[int64]bool)
		for cid, members := range groups {
			assert.NotEmpty(t, members, "cluster %d", cid)
			for _, id := range members {
				assert.False(t, seen[id])
				seen[id] = true
			}
		}
		assert.Len(t, seen, g.NodeCount())
	})

	t.Run("IsolatedNodesStayAlone", func(t *testing.T) {
		clusters := DetectClusters(build(seq(1, 3), nil))

		assert.Equal(t, ClusterMap{1: 0, 2: 1, 3: 2}, clusters)
	})

	t.Run("EmptyGraph", func(t *testing.T) {
		clusters := DetectClusters(graph.Build(nil, nil))

		assert.NotNil(t, clusters)
		assert.Empty(t, clusters)
	})
}

func TestUndirectedProjection(t *testing.T) {
	t.Parallel()

	rows := []graph.EdgeRow{
		{SourceID: 1, TargetID: 2, Kind: graph.EdgeCall, Line: 1},
		{SourceID: 1, TargetID: 2, Kind: graph.EdgeImports, Line: 1},
		{SourceID: 2, TargetID: 1, Kind: graph.EdgeCall, Line: 2},
		{SourceID: 2, TargetID: 3, Kind: graph.EdgeCall, Line: 3},
	}
	g := graph.Build([]graph.Symbol{sym(1, "a.go"), sym(2, "a.go"), sym(3, "b.go")}, rows)

	w := undirectedProjection(g)

	assert.Equal(t, []wedge{{to: 1, weight: 1}}, w.adj[0])
	assert.Equal(t, []wedge{{to: 0, weight: 1}, {to: 2, weight: 1}}, w.adj[1])
	assert.Equal(t, []float64{1, 2, 1}, w.degree)
	assert.InDelta(t, 4.0, w.total, 1e-9)
}

func TestClusterGroups(t *testing.T) {
	t.Parallel()

	groups := ClusterGroups(ClusterMap{5: 1, 3: 0, 1: 1, 2: 0})

	assert.Equal(t, [][]int64{{2, 3}, {1, 5}}, groups)
	assert.Empty(t, ClusterGroups(ClusterMap{}))
}

func TestQuality(t *testing.T) {
	t.Parallel()

	t.Run("GoodSplit", func(t *testing.T) {
		g := twoTriangles()

		q := Quality(g, DetectClusters(g))

		assert.Greater(t, q.Modularity, 0.3)
		require.Len(t, q.Conductance, 2)
		assert.Less(t, q.MeanConductance, 0.5)
	})

	t.Run("SingleClusterHasZeroModularity", func(t *testing.T) {
		g := twoTriangles()
		all := ClusterMap{}
		for _, id := range g.IDs() {
			all[id] = 0
		}

		q := Quality(g, all)

		assert.InDelta(t, 0.0, q.Modularity, 1e-9)
	})

	t.Run("Empty", func(t *testing.T) {
		q := Quality(graph.Build(nil, nil), ClusterMap{})

		assert.Zero(t, q.Modularity)
		assert.Empty(t, q.Conductance)
	})
}

func TestLabelClusters(t *testing.T) {
	t.Parallel()

	t.Run("DirectoryAndAnchor", func(t *testing.T) {
		symbols := []graph.Symbol{
			sym(1, "internal/core/engine.go"),
			sym(2, "internal/core/engine.go"),
			sym(3, "internal/core/util.go"),
			sym(4, "api/handler.go"),
			sym(5, "api/handler.go"),
			sym(6, "api/routes.go"),
		}
		symbols[1].Name = "Engine"
		symbols[1].Kind = graph.KindStruct
		g := buildWith(symbols, nil)
		clusters := ClusterMap{1: 0, 2: 0, 3: 0, 4: 1, 5: 1, 6: 1}
		pagerank := map[int64]float64{1: 0.5, 2: 0.1, 6: 0.3}

		labels := LabelClusters(g, clusters, pagerank)

		assert.Equal(t, "core/Engine", labels[0])
		assert.Equal(t, "api/Sym6", labels[1])
	})

	t.Run("MegaClusterUsesDirectoryBreakdown", func(t *testing.T) {
		symbols := []graph.Symbol{sym(1, "api/a.go"), sym(2, "api/b.go"), sym(3, "core/c.go"), sym(4, "x/d.go")}
		g := buildWith(symbols, nil)
		clusters := ClusterMap{1: 0, 2: 0, 3: 0, 4: 1}

		labels := LabelClusters(g, clusters, nil)

		assert.Equal(t, "api 67% + core 33%", labels[0])
		assert.Equal(t, "x/Sym4", labels[1])

		mismatches := CompareWithDirectories(g, clusters, labels)
		require.Len(t, mismatches, 1)
		assert.Equal(t, 0, mismatches[0].ClusterID)
		assert.Equal(t, 1, mismatches[0].MismatchCount)
		assert.Equal(t, []string{"api", "core"}, mismatches[0].Directories)
	})
}
