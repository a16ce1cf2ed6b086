package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Benny93/archgraph/internal/complexity"
	"github.com/Benny93/archgraph/internal/history"
	"github.com/Benny93/archgraph/internal/storage"
)

// ImportCmd loads a snapshot produced by an indexer into the database.
type ImportCmd struct {
	File string `arg:"" help:"Snapshot JSON file, or - for stdin"`
}

// Run executes the import command.
func (c *ImportCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	snap, source, err := readSnapshotFile(c.File, os.Stdin)
	if err != nil {
		return err
	}

	store, err := a.openStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	info, err := store.ReplaceSnapshot(ctx, snap, source)
	if err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}
	a.logger.Info("snapshot imported", zap.String("id", info.ID), zap.String("source", source))

	if a.json {
		return a.printJSON(info)
	}
	a.success("✓ Imported %s", source)
	a.printf("  Snapshot:       %s\n", info.ID)
	a.printf("  Symbols:        %d\n", info.Symbols)
	a.printf("  Edges:          %d\n", info.Edges)
	return nil
}

// readSnapshotFile reads a snapshot from path, or from stdin for "-".
func readSnapshotFile(path string, stdin io.Reader) (*storage.Snapshot, string, error) {
	if path == "-" {
		snap, err := storage.ReadSnapshot(stdin)
		return snap, "stdin", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path: %w", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, "", fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	snap, err := storage.ReadSnapshot(f)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", abs, err)
	}
	return snap, abs, nil
}

// HistoryCmd mines git history into the database.
type HistoryCmd struct {
	Months      int     `help:"Months of history to walk (default: config)"`
	MaxFiles    int     `help:"Skip commits touching more files (default: config)"`
	MinCochange int     `help:"Minimum co-changes per pair (default: config)"`
	Strength    float64 `default:"0.3" help:"Minimum coupling strength to list"`
	Limit       int     `short:"n" default:"10" help:"Maximum couplings to list"`
}

// Run executes the history command.
func (c *HistoryCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	opts := history.Options{
		Months:            a.cfg.History.Months,
		MaxFilesPerCommit: a.cfg.History.MaxFilesPerCommit,
		MinCochange:       a.cfg.History.MinCochange,
	}
	if c.Months > 0 {
		opts.Months = c.Months
	}
	if c.MaxFiles > 0 {
		opts.MaxFilesPerCommit = c.MaxFiles
	}
	if c.MinCochange > 0 {
		opts.MinCochange = c.MinCochange
	}

	h, err := history.NewMiner(opts, a.logger).Mine(ctx, a.root)
	if err != nil {
		return fmt.Errorf("mining history: %w", err)
	}

	store, err := a.openStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.StoreHistory(ctx, h); err != nil {
		return fmt.Errorf("storing history: %w", err)
	}

	couplings := history.Couplings(h, c.Strength)
	if c.Limit > 0 && len(couplings) > c.Limit {
		couplings = couplings[:c.Limit]
	}

	if a.json {
		return a.printJSON(map[string]any{
			"files":          len(h.Files),
			"cochange_pairs": len(h.CoChange),
			"couplings":      couplings,
		})
	}
	a.success("✓ Mined %d months of history", opts.Months)
	a.printf("  Files:          %d\n", len(h.Files))
	a.printf("  Co-change pairs: %d\n", len(h.CoChange))
	if len(couplings) > 0 {
		a.printf("\n")
		a.header("Strongest couplings")
		for _, cp := range couplings {
			a.printf("  %.2f  %s <-> %s (%d)\n", cp.Strength, cp.FileA, cp.FileB, cp.CoChanges)
		}
	}
	return nil
}

// ComplexityCmd measures Go functions and attaches them to symbols.
type ComplexityCmd struct {
	Top int `short:"n" default:"10" help:"Number of most complex functions to list"`
}

// Run executes the complexity command.
func (c *ComplexityCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	ignore, err := a.cfg.IgnorePattern()
	if err != nil {
		return err
	}
	funcs, err := complexity.Analyze(a.root, ignore, complexity.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("measuring complexity: %w", err)
	}

	store, err := a.openStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	symbols, err := store.LoadSymbols(ctx)
	if err != nil {
		return fmt.Errorf("loading symbols: %w", err)
	}
	values := complexity.AssignToSymbols(funcs, symbols)
	if err := store.StoreComplexity(ctx, values); err != nil {
		return fmt.Errorf("storing complexity: %w", err)
	}

	summary := complexity.Summarize(funcs, c.Top)
	if a.json {
		return a.printJSON(map[string]any{
			"summary":          summary,
			"assigned_symbols": len(values),
		})
	}
	a.success("✓ Measured %d functions", summary.Functions)
	a.printf("  Average:        %.2f\n", summary.Average)
	a.printf("  Symbols:        %d\n", len(values))
	if len(summary.Top) > 0 {
		a.printf("\n")
		a.header("Most complex functions")
		for _, f := range summary.Top {
			a.printf("  %3d  %s %s:%d\n", f.Complexity, f.Name, f.File, f.Line)
		}
	}
	return nil
}
