// Package storage persists Archgraph snapshots.
//
// A snapshot is the symbol and edge table produced by an external indexer,
// plus the history, complexity and centrality data derived from it. The
// Backend interface has a Badger implementation for the CLI and an in-memory
// one for tests.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/graph"
)

var (
	// ErrNotInitialized is returned when a backend is used before Initialize
	// or after Close.
	ErrNotInitialized = errors.New("storage not initialized")

	// ErrNoSnapshot is returned when no snapshot has been imported yet.
	ErrNoSnapshot = errors.New("no snapshot imported, run 'archgraph import' first")

	// ErrReadOnly is returned for writes on a read-only backend.
	ErrReadOnly = errors.New("storage opened read-only")
)

// FileStat is the git activity of one file.
type FileStat struct {
	// FilePath is the repository-relative path.
	FilePath string `json:"file_path"`

	// Churn is lines added plus lines deleted.
	Churn int `json:"churn"`

	// Commits is the number of commits touching the file.
	Commits int `json:"commits"`

	// LastModified is the time of the newest commit touching the file.
	LastModified time.Time `json:"last_modified,omitempty"`
}

// History is the mined git history of a repository.
type History struct {
	CoChange []analysis.CoChange `json:"cochange"`
	Files    []FileStat          `json:"file_stats"`
}

// Churn returns the churn per file path.
func (h History) Churn() map[string]int {
	churn := make(map[string]int, len(h.Files))
	for _, f := range h.Files {
		churn[f.FilePath] = f.Churn
	}
	return churn
}

// SnapshotInfo describes the imported snapshot.
type SnapshotInfo struct {
	// ID is a random uuid assigned on import.
	ID string `json:"id"`

	// Source is where the snapshot was read from.
	Source string `json:"source"`

	ImportedAt time.Time `json:"imported_at"`
	Symbols    int       `json:"symbols"`
	Edges      int       `json:"edges"`
}

// Stats summarizes the stored data.
type Stats struct {
	Snapshot      *SnapshotInfo `json:"snapshot,omitempty"`
	Symbols       int           `json:"symbols"`
	Edges         int           `json:"edges"`
	CoChangePairs int           `json:"cochange_pairs"`
	Files         int           `json:"files"`
	Complexity    int           `json:"complexity"`
	Metrics       int           `json:"metrics"`
}

// Backend defines the interface for storage implementations.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Initialize opens or creates the store at path.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// ReplaceSnapshot atomically swaps in a new snapshot. History and
	// complexity carried by the snapshot replace the stored ones; the
	// centrality cache is cleared.
	ReplaceSnapshot(ctx context.Context, snap *Snapshot, source string) (SnapshotInfo, error)

	// Snapshot returns the current snapshot info or ErrNoSnapshot.
	Snapshot(ctx context.Context) (SnapshotInfo, error)

	// LoadSymbols returns all symbols in ascending id order.
	LoadSymbols(ctx context.Context) ([]graph.Symbol, error)

	// LoadEdges returns all edges in import order.
	LoadEdges(ctx context.Context) ([]graph.EdgeRow, error)

	// LoadHistory returns the stored git history, empty when none.
	LoadHistory(ctx context.Context) (History, error)

	// StoreHistory replaces the stored git history.
	StoreHistory(ctx context.Context, h History) error

	// LoadComplexity returns complexity per symbol id.
	LoadComplexity(ctx context.Context) (map[int64]float64, error)

	// StoreComplexity merges complexity values into the stored ones.
	StoreComplexity(ctx context.Context, values map[int64]float64) error

	// LoadMetrics returns the cached centrality metrics.
	LoadMetrics(ctx context.Context) (map[int64]analysis.Metrics, error)

	// StoreMetrics replaces the cached centrality metrics.
	StoreMetrics(ctx context.Context, metrics map[int64]analysis.Metrics) error

	// Stats returns record counts.
	Stats(ctx context.Context) (Stats, error)
}
