package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/graph"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Symbols: []graph.Symbol{
			{ID: 3, Name: "Store", QualifiedName: "db.Store", Kind: graph.KindStruct, FilePath: "db/store.go"},
			{ID: 1, Name: "main", QualifiedName: "main.main", Kind: graph.KindFunction, FilePath: "main.go"},
			{ID: 2, Name: "Serve", QualifiedName: "api.Serve", Kind: graph.KindFunction, FilePath: "api/serve.go"},
		},
		Edges: []graph.EdgeRow{
			{SourceID: 1, TargetID: 2, Kind: graph.EdgeCall, Line: 4},
			{SourceID: 2, TargetID: 3, Kind: graph.EdgeReference, Line: 9},
		},
		CoChange:   []analysis.CoChange{{FileA: "api/serve.go", FileB: "db/store.go", Count: 3}},
		FileStats:  []FileStat{{FilePath: "api/serve.go", Churn: 40, Commits: 4}, {FilePath: "db/store.go", Churn: 12, Commits: 2}},
		Complexity: map[int64]float64{2: 7},
	}
}

// backends runs fn against every Backend implementation.
func backends(t *testing.T, fn func(t *testing.T, b Backend)) {
	t.Run("Memory", func(t *testing.T) {
		t.Parallel()
		b := NewMemoryBackend()
		require.NoError(t, b.Initialize("", false))
		defer b.Close()
		fn(t, b)
	})

	t.Run("Badger", func(t *testing.T) {
		t.Parallel()
		b := NewBadgerBackend()
		require.NoError(t, b.Initialize(filepath.Join(t.TempDir(), "badger"), false))
		defer b.Close()
		fn(t, b)
	})
}

func TestBackend_ReplaceSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backends(t, func(t *testing.T, b Backend) {
		info, err := b.ReplaceSnapshot(ctx, testSnapshot(), "snapshot.json")
		require.NoError(t, err)
		assert.NotEmpty(t, info.ID)
		assert.Equal(t, "snapshot.json", info.Source)
		assert.Equal(t, 3, info.Symbols)
		assert.Equal(t, 2, info.Edges)

		got, err := b.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, info.ID, got.ID)

		symbols, err := b.LoadSymbols(ctx)
		require.NoError(t, err)
		require.Len(t, symbols, 3)
		assert.Equal(t, []int64{1, 2, 3}, []int64{symbols[0].ID, symbols[1].ID, symbols[2].ID})
		assert.Equal(t, "db.Store", symbols[2].QualifiedName)

		edges, err := b.LoadEdges(ctx)
		require.NoError(t, err)
		assert.Equal(t, testSnapshot().Edges, edges)

		history, err := b.LoadHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, testSnapshot().CoChange, history.CoChange)
		assert.Equal(t, testSnapshot().FileStats, history.Files)
		assert.Equal(t, 40, history.Churn()["api/serve.go"])

		complexity, err := b.LoadComplexity(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[int64]float64{2: 7}, complexity)
	})
}

func TestBackend_ReplaceClearsPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backends(t, func(t *testing.T, b Backend) {
		first, err := b.ReplaceSnapshot(ctx, testSnapshot(), "a.json")
		require.NoError(t, err)
		require.NoError(t, b.StoreMetrics(ctx, map[int64]analysis.Metrics{1: {PageRank: 0.5}}))

		second, err := b.ReplaceSnapshot(ctx, &Snapshot{
			Symbols: []graph.Symbol{{ID: 9, Name: "only", FilePath: "x.go"}},
		}, "b.json")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)

		symbols, err := b.LoadSymbols(ctx)
		require.NoError(t, err)
		require.Len(t, symbols, 1)
		assert.Equal(t, int64(9), symbols[0].ID)

		edges, err := b.LoadEdges(ctx)
		require.NoError(t, err)
		assert.Empty(t, edges)

		metrics, err := b.LoadMetrics(ctx)
		require.NoError(t, err)
		assert.Empty(t, metrics)

		history, err := b.LoadHistory(ctx)
		require.NoError(t, err)
		assert.Empty(t, history.CoChange)
	})
}

func TestBackend_NoSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backends(t, func(t *testing.T, b Backend) {
		_, err := b.Snapshot(ctx)
		assert.True(t, errors.Is(err, ErrNoSnapshot))

		symbols, err := b.LoadSymbols(ctx)
		require.NoError(t, err)
		assert.Empty(t, symbols)

		stats, err := b.Stats(ctx)
		require.NoError(t, err)
		assert.Nil(t, stats.Snapshot)
		assert.Zero(t, stats.Symbols)
	})
}

func TestBackend_History(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backends(t, func(t *testing.T, b Backend) {
		_, err := b.ReplaceSnapshot(ctx, testSnapshot(), "s.json")
		require.NoError(t, err)

		h := History{
			CoChange: []analysis.CoChange{{FileA: "a.go", FileB: "b.go", Count: 5}},
			Files:    []FileStat{{FilePath: "a.go", Churn: 1, Commits: 1}},
		}
		require.NoError(t, b.StoreHistory(ctx, h))

		got, err := b.LoadHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, h.CoChange, got.CoChange)
		assert.Equal(t, h.Files, got.Files)
	})
}

func TestBackend_ComplexityMerges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backends(t, func(t *testing.T, b Backend) {
		_, err := b.ReplaceSnapshot(ctx, testSnapshot(), "s.json")
		require.NoError(t, err)

		require.NoError(t, b.StoreComplexity(ctx, map[int64]float64{3: 2, -4: 1}))

		got, err := b.LoadComplexity(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[int64]float64{2: 7, 3: 2, -4: 1}, got)
	})
}

func TestBackend_Metrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backends(t, func(t *testing.T, b Backend) {
		metrics := map[int64]analysis.Metrics{
			1: {PageRank: 0.25, InDegree: 0, OutDegree: 1, Betweenness: 0},
			2: {PageRank: 0.5, InDegree: 1, OutDegree: 1, Betweenness: 1},
		}
		require.NoError(t, b.StoreMetrics(ctx, metrics))

		got, err := b.LoadMetrics(ctx)
		require.NoError(t, err)
		assert.Equal(t, metrics, got)

		require.NoError(t, b.StoreMetrics(ctx, map[int64]analysis.Metrics{3: {}}))
		got, err = b.LoadMetrics(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestBackend_Stats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backends(t, func(t *testing.T, b Backend) {
		info, err := b.ReplaceSnapshot(ctx, testSnapshot(), "s.json")
		require.NoError(t, err)

		stats, err := b.Stats(ctx)

		require.NoError(t, err)
		require.NotNil(t, stats.Snapshot)
		assert.Equal(t, info.ID, stats.Snapshot.ID)
		assert.Equal(t, 3, stats.Symbols)
		assert.Equal(t, 2, stats.Edges)
		assert.Equal(t, 1, stats.CoChangePairs)
		assert.Equal(t, 2, stats.Files)
		assert.Equal(t, 1, stats.Complexity)
		assert.Zero(t, stats.Metrics)
	})
}

func TestMemoryBackend_NotInitialized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := NewMemoryBackend()

	_, err := b.LoadSymbols(ctx)
	assert.True(t, errors.Is(err, ErrNotInitialized))
	_, err = b.ReplaceSnapshot(ctx, testSnapshot(), "")
	assert.True(t, errors.Is(err, ErrNotInitialized))

	require.NoError(t, b.Initialize("", false))
	assert.True(t, b.IsInitialized())
	require.NoError(t, b.Close())
	assert.False(t, b.IsInitialized())
}
