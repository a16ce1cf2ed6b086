// Package engine loads a stored snapshot into a graph and runs the
// analyses on it with logging, tracing and metrics around every run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/config"
	"github.com/Benny93/archgraph/internal/graph"
	"github.com/Benny93/archgraph/internal/storage"
	"github.com/Benny93/archgraph/internal/telemetry"
)

// ErrSymbolNotFound is returned when a symbol query matches nothing.
var ErrSymbolNotFound = errors.New("symbol not found")

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// Engine runs analyses over the snapshot held by a storage backend.
type Engine struct {
	store    storage.Backend
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	progress ProgressCallback

	mu    sync.Mutex
	state *State
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProgress reports load and overview phases.
func WithProgress(cb ProgressCallback) Option {
	return func(e *Engine) { e.progress = cb }
}

// WithMetrics overrides the instruments. Defaults to telemetry.Global().
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine over store. A nil cfg uses defaults.
func New(store storage.Backend, cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		store:  store,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = telemetry.Global()
	}
	return e
}

// State is everything loaded from storage for one invocation.
type State struct {
	Graph      *graph.Graph
	Snapshot   storage.SnapshotInfo
	History    storage.History
	Complexity map[int64]float64

	// Cache holds previously saved centrality metrics.
	Cache map[int64]analysis.Metrics
}

func (e *Engine) report(phase string, p float64) {
	if e.progress != nil {
		e.progress(phase, p)
	}
}

// Load reads the snapshot and builds the graph. Later analyses reuse the
// loaded state until Load is called again.
func (e *Engine) Load(ctx context.Context) (*State, error) {
	st, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()
	return st, nil
}

func (e *Engine) load(ctx context.Context) (st *State, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "archgraph.engine.load")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		e.metrics.RecordAnalysis(ctx, "load", start, err)
	}()

	info, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	e.report("Loading symbols", 0.0)
	symbols, err := e.store.LoadSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading symbols: %w", err)
	}
	edges, err := e.store.LoadEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}
	e.report("Loading symbols", 1.0)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.report("Building graph", 0.0)
	g := graph.Build(symbols, edges, graph.WithEdgeKinds(e.cfg.EdgeKinds()...))
	e.report("Building graph", 1.0)
	if g.DroppedEdges() > 0 {
		e.logger.Warn("dropped edges with unknown endpoints", zap.Int("count", g.DroppedEdges()))
	}

	e.report("Loading history", 0.0)
	history, err := e.store.LoadHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	complexity, err := e.store.LoadComplexity(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading complexity: %w", err)
	}
	cache, err := e.store.LoadMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading metrics cache: %w", err)
	}
	e.report("Loading history", 1.0)

	span.SetAttributes(
		attribute.Int("graph.nodes", g.NodeCount()),
		attribute.Int("graph.edges", g.EdgeCount()),
		attribute.String("snapshot.id", info.ID),
	)
	e.metrics.RecordGraph(ctx, g.NodeCount(), g.EdgeCount())
	e.logger.Debug("graph loaded",
		zap.String("snapshot", info.ID),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()),
		zap.Int("cochange_pairs", len(history.CoChange)),
		zap.Duration("took", time.Since(start)))

	return &State{
		Graph:      g,
		Snapshot:   info,
		History:    history,
		Complexity: complexity,
		Cache:      cache,
	}, nil
}

// current returns the loaded state, loading it on first use.
func (e *Engine) current(ctx context.Context) (*State, error) {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	if st != nil {
		return st, nil
	}
	return e.Load(ctx)
}

// run wraps one analysis in a span, a run id, logs and metrics.
func (e *Engine) run(ctx context.Context, name string, fn func(ctx context.Context, st *State) error) (err error) {
	st, err := e.current(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runID := uuid.NewString()
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "archgraph.engine",
		attribute.String("analysis", name),
		attribute.String("run.id", runID),
		attribute.Int("graph.nodes", st.Graph.NodeCount()),
		attribute.Int("graph.edges", st.Graph.EdgeCount()),
	)
	logger := e.logger.With(zap.String("analysis", name), zap.String("run_id", runID))
	logger.Debug("analysis started")

	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		e.metrics.RecordAnalysis(ctx, name, start, err)
		if err != nil {
			logger.Warn("analysis failed", zap.Error(err))
			return
		}
		logger.Debug("analysis finished", zap.Duration("took", time.Since(start)))
	}()

	return fn(ctx, st)
}

// SymbolRef identifies a symbol in reports.
type SymbolRef struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	QualifiedName string           `json:"qualified_name"`
	Kind          graph.SymbolKind `json:"kind"`
	FilePath      string           `json:"file_path"`
	Line          int              `json:"line"`
}

func refOf(n graph.Node) SymbolRef {
	return SymbolRef{
		ID:            n.ID,
		Name:          n.Name,
		QualifiedName: n.QualifiedName,
		Kind:          n.Kind,
		FilePath:      n.FilePath,
		Line:          n.LineStart,
	}
}

func refs(g *graph.Graph, ids []int64) []SymbolRef {
	result := make([]SymbolRef, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.Node(id); ok {
			result = append(result, refOf(n))
		}
	}
	return result
}
