package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/graph"
)

// Key prefixes for different data types, relative to the active namespace.
const (
	prefixSymbol     = "s:"    // symbol rows, keyed by zero-padded id
	prefixEdge       = "e:"    // edge rows, keyed by import sequence
	prefixCoChange   = "c:"    // co-change pairs
	prefixFile       = "f:"    // file stats, keyed by path
	prefixComplexity = "x:"    // complexity per symbol
	prefixMetrics    = "m:"    // centrality cache per symbol
	keySnapshot      = "meta:snapshot"
)

// Snapshot data lives under one of two namespaces. keyGeneration names the
// active one; the other is staging space for the next import.
const (
	keyGeneration = "gen"
	namespaceA    = "a/"
	namespaceB    = "b/"
)

// BadgerBackend is a BadgerDB-backed storage implementation.
type BadgerBackend struct {
	db          *badger.DB
	initialized bool
	readOnly    bool
	ns          string
	mu          sync.RWMutex
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}
	if b.ns, err = activeNamespace(b.db); err != nil {
		_ = b.db.Close()
		b.db = nil
		return err
	}

	b.initialized = true
	b.readOnly = readOnly
	return nil
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

// activeNamespace reads the generation pointer, defaulting to namespaceA.
func activeNamespace(db *badger.DB) (string, error) {
	ns := namespaceA
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyGeneration))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			switch v := string(val); v {
			case namespaceA, namespaceB:
				ns = v
				return nil
			default:
				return fmt.Errorf("unknown snapshot generation %q", v)
			}
		})
	})
	if err != nil {
		return "", fmt.Errorf("reading snapshot generation: %w", err)
	}
	return ns, nil
}

func (b *BadgerBackend) staging() string {
	if b.ns == namespaceA {
		return namespaceB
	}
	return namespaceA
}

// key joins the active namespace and a relative key.
func (b *BadgerBackend) key(k []byte) []byte {
	return append([]byte(b.ns), k...)
}

func (b *BadgerBackend) checkRead() error {
	if !b.initialized || b.db == nil {
		return ErrNotInitialized
	}
	return nil
}

func (b *BadgerBackend) checkWrite() error {
	if err := b.checkRead(); err != nil {
		return err
	}
	if b.readOnly {
		return ErrReadOnly
	}
	return nil
}

func symbolKey(id int64) []byte {
	// Offset keeps negative ids sorted below positive ones.
	return []byte(fmt.Sprintf("%s%020d", prefixSymbol, uint64(id)^(1<<63)))
}

func seqKey(prefix string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%012d", prefix, seq))
}

func idKey(prefix string, id int64) []byte {
	return []byte(prefix + strconv.FormatInt(id, 10))
}

func parseIDKey(prefix string, key []byte) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(string(key), prefix), 10, 64)
}

// ReplaceSnapshot implements Backend. The snapshot is written to the
// staging namespace and becomes visible when the generation pointer flips,
// so an interrupted import leaves the previous snapshot in place.
func (b *BadgerBackend) ReplaceSnapshot(ctx context.Context, snap *Snapshot, source string) (SnapshotInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWrite(); err != nil {
		return SnapshotInfo{}, err
	}

	next := b.staging()
	if err := b.db.DropPrefix([]byte(next)); err != nil {
		return SnapshotInfo{}, fmt.Errorf("clearing staging namespace: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	set := func(key []byte, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", key, err)
		}
		return wb.Set(append([]byte(next), key...), data)
	}

	for _, s := range snap.Symbols {
		if err := ctx.Err(); err != nil {
			return SnapshotInfo{}, err
		}
		if err := set(symbolKey(s.ID), s); err != nil {
			return SnapshotInfo{}, err
		}
	}
	for i, e := range snap.Edges {
		if err := set(seqKey(prefixEdge, i), e); err != nil {
			return SnapshotInfo{}, err
		}
	}
	if err := writeHistory(wb, next, snap.History()); err != nil {
		return SnapshotInfo{}, err
	}
	for id, v := range snap.Complexity {
		if err := set(idKey(prefixComplexity, id), v); err != nil {
			return SnapshotInfo{}, err
		}
	}

	info := SnapshotInfo{
		ID:         uuid.NewString(),
		Source:     source,
		ImportedAt: time.Now().UTC(),
		Symbols:    len(snap.Symbols),
		Edges:      len(snap.Edges),
	}
	if err := set([]byte(keySnapshot), info); err != nil {
		return SnapshotInfo{}, err
	}

	if err := wb.Flush(); err != nil {
		return SnapshotInfo{}, fmt.Errorf("writing snapshot: %w", err)
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyGeneration), []byte(next))
	})
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("activating snapshot: %w", err)
	}
	prev := b.ns
	b.ns = next
	// A failed drop is retried as staging cleanup by the next import.
	_ = b.db.DropPrefix([]byte(prev))
	return info, nil
}

func writeHistory(wb *badger.WriteBatch, ns string, h History) error {
	for i, c := range h.CoChange {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshaling cochange: %w", err)
		}
		if err := wb.Set(append([]byte(ns), seqKey(prefixCoChange, i)...), data); err != nil {
			return fmt.Errorf("setting cochange: %w", err)
		}
	}
	for _, f := range h.Files {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("marshaling file stat: %w", err)
		}
		if err := wb.Set([]byte(ns+prefixFile+f.FilePath), data); err != nil {
			return fmt.Errorf("setting file stat: %w", err)
		}
	}
	return nil
}

// Snapshot implements Backend.
func (b *BadgerBackend) Snapshot(ctx context.Context) (SnapshotInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkRead(); err != nil {
		return SnapshotInfo{}, err
	}

	var info SnapshotInfo
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key([]byte(keySnapshot)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSnapshot
		}
		if err != nil {
			return fmt.Errorf("getting snapshot info: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &info)
		})
	})
	return info, err
}

// scan decodes every value under prefix in the active namespace, in key
// order, into fn. Keys are passed without the namespace.
func (b *BadgerBackend) scan(ctx context.Context, prefix string, fn func(key, val []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = b.key([]byte(prefix))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)[len(b.ns):]
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSymbols implements Backend.
func (b *BadgerBackend) LoadSymbols(ctx context.Context) ([]graph.Symbol, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkRead(); err != nil {
		return nil, err
	}

	symbols := make([]graph.Symbol, 0)
	err := b.scan(ctx, prefixSymbol, func(_, val []byte) error {
		var s graph.Symbol
		if err := json.Unmarshal(val, &s); err != nil {
			return fmt.Errorf("unmarshaling symbol: %w", err)
		}
		symbols = append(symbols, s)
		return nil
	})
	return symbols, err
}

// LoadEdges implements Backend.
func (b *BadgerBackend) LoadEdges(ctx context.Context) ([]graph.EdgeRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkRead(); err != nil {
		return nil, err
	}

	edges := make([]graph.EdgeRow, 0)
	err := b.scan(ctx, prefixEdge, func(_, val []byte) error {
		var e graph.EdgeRow
		if err := json.Unmarshal(val, &e); err != nil {
			return fmt.Errorf("unmarshaling edge: %w", err)
		}
		edges = append(edges, e)
		return nil
	})
	return edges, err
}

// LoadHistory implements Backend.
func (b *BadgerBackend) LoadHistory(ctx context.Context) (History, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h := History{CoChange: []analysis.CoChange{}, Files: []FileStat{}}
	if err := b.checkRead(); err != nil {
		return h, err
	}

	err := b.scan(ctx, prefixCoChange, func(_, val []byte) error {
		var c analysis.CoChange
		if err := json.Unmarshal(val, &c); err != nil {
			return fmt.Errorf("unmarshaling cochange: %w", err)
		}
		h.CoChange = append(h.CoChange, c)
		return nil
	})
	if err != nil {
		return h, err
	}

	err = b.scan(ctx, prefixFile, func(_, val []byte) error {
		var f FileStat
		if err := json.Unmarshal(val, &f); err != nil {
			return fmt.Errorf("unmarshaling file stat: %w", err)
		}
		h.Files = append(h.Files, f)
		return nil
	})
	return h, err
}

// StoreHistory implements Backend.
func (b *BadgerBackend) StoreHistory(ctx context.Context, h History) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWrite(); err != nil {
		return err
	}
	if err := b.db.DropPrefix(b.key([]byte(prefixCoChange)), b.key([]byte(prefixFile))); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	if err := writeHistory(wb, b.ns, h); err != nil {
		return err
	}
	return wb.Flush()
}

// LoadComplexity implements Backend.
func (b *BadgerBackend) LoadComplexity(ctx context.Context) (map[int64]float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	values := make(map[int64]float64)
	if err := b.checkRead(); err != nil {
		return values, err
	}

	err := b.scan(ctx, prefixComplexity, func(key, val []byte) error {
		id, err := parseIDKey(prefixComplexity, key)
		if err != nil {
			return fmt.Errorf("parsing complexity key %q: %w", key, err)
		}
		var v float64
		if err := json.Unmarshal(val, &v); err != nil {
			return fmt.Errorf("unmarshaling complexity: %w", err)
		}
		values[id] = v
		return nil
	})
	return values, err
}

// StoreComplexity implements Backend.
func (b *BadgerBackend) StoreComplexity(ctx context.Context, values map[int64]float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWrite(); err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for id, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling complexity: %w", err)
		}
		if err := wb.Set(b.key(idKey(prefixComplexity, id)), data); err != nil {
			return fmt.Errorf("setting complexity: %w", err)
		}
	}
	return wb.Flush()
}

// LoadMetrics implements Backend.
func (b *BadgerBackend) LoadMetrics(ctx context.Context) (map[int64]analysis.Metrics, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	metrics := make(map[int64]analysis.Metrics)
	if err := b.checkRead(); err != nil {
		return metrics, err
	}

	err := b.scan(ctx, prefixMetrics, func(key, val []byte) error {
		id, err := parseIDKey(prefixMetrics, key)
		if err != nil {
			return fmt.Errorf("parsing metrics key %q: %w", key, err)
		}
		var m analysis.Metrics
		if err := json.Unmarshal(val, &m); err != nil {
			return fmt.Errorf("unmarshaling metrics: %w", err)
		}
		metrics[id] = m
		return nil
	})
	return metrics, err
}

// StoreMetrics implements Backend.
func (b *BadgerBackend) StoreMetrics(ctx context.Context, metrics map[int64]analysis.Metrics) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWrite(); err != nil {
		return err
	}
	if err := b.db.DropPrefix(b.key([]byte(prefixMetrics))); err != nil {
		return fmt.Errorf("clearing metrics: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for id, m := range metrics {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshaling metrics: %w", err)
		}
		if err := wb.Set(b.key(idKey(prefixMetrics, id)), data); err != nil {
			return fmt.Errorf("setting metrics: %w", err)
		}
	}
	return wb.Flush()
}

// Stats implements Backend.
func (b *BadgerBackend) Stats(ctx context.Context) (Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var stats Stats
	if err := b.checkRead(); err != nil {
		return stats, err
	}

	counts := []struct {
		prefix string
		dst    *int
	}{
		{prefixSymbol, &stats.Symbols},
		{prefixEdge, &stats.Edges},
		{prefixCoChange, &stats.CoChangePairs},
		{prefixFile, &stats.Files},
		{prefixComplexity, &stats.Complexity},
		{prefixMetrics, &stats.Metrics},
	}

	err := b.db.View(func(txn *badger.Txn) error {
		for _, c := range counts {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = b.key([]byte(c.prefix))
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				*c.dst++
			}
			it.Close()
		}

		item, err := txn.Get(b.key([]byte(keySnapshot)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var info SnapshotInfo
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &info) }); err != nil {
			return err
		}
		stats.Snapshot = &info
		return nil
	})
	return stats, err
}
