package storage

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/graph"
)

// MemoryBackend is an in-memory implementation of Backend for testing.
type MemoryBackend struct {
	mu          sync.RWMutex
	initialized bool
	info        *SnapshotInfo
	symbols     []graph.Symbol
	edges       []graph.EdgeRow
	history     History
	complexity  map[int64]float64
	metrics     map[int64]analysis.Metrics
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		complexity: make(map[int64]float64),
		metrics:    make(map[int64]analysis.Metrics),
	}
}

// Initialize implements Backend.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	return nil
}

// IsInitialized reports whether Initialize ran and Close did not.
func (m *MemoryBackend) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// ReplaceSnapshot implements Backend.
func (m *MemoryBackend) ReplaceSnapshot(ctx context.Context, snap *Snapshot, source string) (SnapshotInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return SnapshotInfo{}, ErrNotInitialized
	}

	m.symbols = slices.Clone(snap.Symbols)
	sort.Slice(m.symbols, func(i, j int) bool { return m.symbols[i].ID < m.symbols[j].ID })
	m.edges = slices.Clone(snap.Edges)
	m.history = History{CoChange: slices.Clone(snap.CoChange), Files: slices.Clone(snap.FileStats)}
	m.complexity = maps.Clone(snap.Complexity)
	if m.complexity == nil {
		m.complexity = make(map[int64]float64)
	}
	m.metrics = make(map[int64]analysis.Metrics)

	m.info = &SnapshotInfo{
		ID:         uuid.NewString(),
		Source:     source,
		ImportedAt: time.Now().UTC(),
		Symbols:    len(snap.Symbols),
		Edges:      len(snap.Edges),
	}
	return *m.info, nil
}

// Snapshot implements Backend.
func (m *MemoryBackend) Snapshot(ctx context.Context) (SnapshotInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return SnapshotInfo{}, ErrNotInitialized
	}
	if m.info == nil {
		return SnapshotInfo{}, ErrNoSnapshot
	}
	return *m.info, nil
}

// LoadSymbols implements Backend.
func (m *MemoryBackend) LoadSymbols(ctx context.Context) ([]graph.Symbol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}
	return append([]graph.Symbol{}, m.symbols...), nil
}

// LoadEdges implements Backend.
func (m *MemoryBackend) LoadEdges(ctx context.Context) ([]graph.EdgeRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}
	return append([]graph.EdgeRow{}, m.edges...), nil
}

// LoadHistory implements Backend.
func (m *MemoryBackend) LoadHistory(ctx context.Context) (History, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := History{
		CoChange: append([]analysis.CoChange{}, m.history.CoChange...),
		Files:    append([]FileStat{}, m.history.Files...),
	}
	if !m.initialized {
		return h, ErrNotInitialized
	}
	return h, nil
}

// StoreHistory implements Backend.
func (m *MemoryBackend) StoreHistory(ctx context.Context, h History) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	m.history = History{CoChange: slices.Clone(h.CoChange), Files: slices.Clone(h.Files)}
	return nil
}

// LoadComplexity implements Backend.
func (m *MemoryBackend) LoadComplexity(ctx context.Context) (map[int64]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return map[int64]float64{}, ErrNotInitialized
	}
	return maps.Clone(m.complexity), nil
}

// StoreComplexity implements Backend.
func (m *MemoryBackend) StoreComplexity(ctx context.Context, values map[int64]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	maps.Copy(m.complexity, values)
	return nil
}

// LoadMetrics implements Backend.
func (m *MemoryBackend) LoadMetrics(ctx context.Context) (map[int64]analysis.Metrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return map[int64]analysis.Metrics{}, ErrNotInitialized
	}
	return maps.Clone(m.metrics), nil
}

// StoreMetrics implements Backend.
func (m *MemoryBackend) StoreMetrics(ctx context.Context, metrics map[int64]analysis.Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	m.metrics = maps.Clone(metrics)
	if m.metrics == nil {
		m.metrics = make(map[int64]analysis.Metrics)
	}
	return nil
}

// Stats implements Backend.
func (m *MemoryBackend) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return Stats{}, ErrNotInitialized
	}
	stats := Stats{
		Symbols:       len(m.symbols),
		Edges:         len(m.edges),
		CoChangePairs: len(m.history.CoChange),
		Files:         len(m.history.Files),
		Complexity:    len(m.complexity),
		Metrics:       len(m.metrics),
	}
	if m.info != nil {
		info := *m.info
		stats.Snapshot = &info
	}
	return stats, nil
}
