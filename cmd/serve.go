package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Benny93/archgraph/internal/complexity"
	"github.com/Benny93/archgraph/internal/engine"
	"github.com/Benny93/archgraph/internal/storage"
	"github.com/Benny93/archgraph/internal/telemetry"
	"github.com/Benny93/archgraph/internal/watch"
	"github.com/Benny93/archgraph/mcp"
)

// refresher keeps the index current for one watch batch: it re-imports the
// snapshot file when it changed, refreshes complexity for changed Go files,
// reloads the engine and reports cycles touching the batch.
type refresher struct {
	a        *app
	store    storage.Backend
	engine   *engine.Engine
	snapshot string // root-relative, slash separated; empty disables re-import
	report   func(batch watch.Batch, cycles []engine.Cycle)
}

func newRefresher(a *app, store storage.Backend, e *engine.Engine, snapshot string) (*refresher, error) {
	r := &refresher{a: a, store: store, engine: e}
	if snapshot != "" {
		abs, err := filepath.Abs(snapshot)
		if err != nil {
			return nil, fmt.Errorf("resolving snapshot: %w", err)
		}
		rel, err := filepath.Rel(a.root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil, fmt.Errorf("snapshot %s is outside the repository", abs)
		}
		r.snapshot = filepath.ToSlash(rel)
	}
	return r, nil
}

// extensions are the file types a batch is built from.
func (r *refresher) extensions() []string {
	exts := []string{".go"}
	if r.snapshot != "" {
		if ext := filepath.Ext(r.snapshot); ext != "" && ext != ".go" {
			exts = append(exts, ext)
		}
	}
	return exts
}

func (r *refresher) handle(ctx context.Context, batch watch.Batch) error {
	logger := r.a.logger.With(zap.Int("changed", len(batch.Changed)), zap.Int("removed", len(batch.Removed)))
	logger.Debug("processing batch")

	reload := false
	if r.snapshot != "" && batch.Has(r.snapshot) {
		snap, source, err := readSnapshotFile(filepath.Join(r.a.root, filepath.FromSlash(r.snapshot)), nil)
		if err != nil {
			return err
		}
		info, err := r.store.ReplaceSnapshot(ctx, snap, source)
		if err != nil {
			return fmt.Errorf("storing snapshot: %w", err)
		}
		logger.Info("snapshot re-imported", zap.String("id", info.ID), zap.Int("symbols", info.Symbols))
		reload = true
	}

	var goFiles []string
	for _, f := range batch.Changed {
		if strings.HasSuffix(f, ".go") {
			goFiles = append(goFiles, f)
		}
	}
	if len(goFiles) > 0 {
		n, err := r.refreshComplexity(ctx, goFiles)
		if err != nil {
			return err
		}
		logger.Debug("complexity refreshed", zap.Int("symbols", n))
		reload = reload || n > 0
	}

	if reload {
		if _, err := r.engine.Load(ctx); err != nil {
			return err
		}
	}

	cycles, err := r.engine.Cycles(ctx)
	if err != nil {
		return err
	}
	r.report(batch, cycles.Touching(batch.All()))
	return nil
}

func (r *refresher) refreshComplexity(ctx context.Context, files []string) (int, error) {
	ignore, err := r.a.cfg.IgnorePattern()
	if err != nil {
		return 0, err
	}
	funcs, err := complexity.AnalyzeFiles(r.a.root, files, ignore, complexity.WithLogger(r.a.logger))
	if err != nil {
		return 0, fmt.Errorf("measuring complexity: %w", err)
	}
	if len(funcs) == 0 {
		return 0, nil
	}
	symbols, err := r.store.LoadSymbols(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading symbols: %w", err)
	}
	values := complexity.AssignToSymbols(funcs, symbols)
	if len(values) == 0 {
		return 0, nil
	}
	if err := r.store.StoreComplexity(ctx, values); err != nil {
		return 0, fmt.Errorf("storing complexity: %w", err)
	}
	return len(values), nil
}

// WatchCmd watches the repository and reports cycles touching changes.
type WatchCmd struct {
	Snapshot string `short:"s" help:"Snapshot file to re-import when it changes (inside the repository)"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	e := a.engine(store)
	r, err := newRefresher(a, store, e, c.Snapshot)
	if err != nil {
		return err
	}
	r.report = func(batch watch.Batch, cycles []engine.Cycle) {
		a.printf("%s  %d files changed\n", time.Now().Format("15:04:05"), len(batch.All()))
		if len(cycles) > 0 {
			a.printCycles(cycles)
		}
	}

	w, err := watch.New(a.root, watch.Options{Debounce: a.cfg.DebounceDuration(), Extensions: r.extensions()}, a.logger)
	if err != nil {
		return err
	}

	a.success("Watching %s (Ctrl+C to stop)", a.root)
	err = w.Run(ctx, r.handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ServeCmd starts the MCP server over stdio.
type ServeCmd struct {
	Watch    bool   `short:"w" help:"Enable file watching"`
	Snapshot string `short:"s" help:"Snapshot file to re-import when it changes (with --watch)"`
}

// Run executes the serve command. Nothing but the MCP protocol is written to
// stdout.
func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openStore(!c.Watch)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	e := a.engine(store)
	if _, err := e.Load(ctx); err != nil {
		return err
	}
	server := mcp.NewServer(e, Version, mcp.WithLogger(a.logger))

	eg, ctx := errgroup.WithContext(ctx)

	if c.Watch {
		r, err := newRefresher(a, store, e, c.Snapshot)
		if err != nil {
			return err
		}
		r.report = func(batch watch.Batch, cycles []engine.Cycle) {
			for _, cy := range cycles {
				a.logger.Warn("change touches dependency cycle",
					zap.Int("cycle", cy.ID), zap.Int("size", cy.Size), zap.Strings("files", cy.Files))
			}
		}
		w, err := watch.New(a.root, watch.Options{Debounce: a.cfg.DebounceDuration(), Extensions: r.extensions()}, a.logger)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			err := w.Run(ctx, r.handle)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		a.logger.Info("file watching enabled", zap.String("root", a.root))
	}

	if handler := telemetry.MetricsHandler(); handler != nil && a.cfg.Telemetry.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		srv := &http.Server{Addr: a.cfg.Telemetry.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		eg.Go(func() error {
			a.logger.Info("serving metrics", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		defer stop()
		return server.RunStdio(ctx)
	})

	return eg.Wait()
}
