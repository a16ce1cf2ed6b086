// Package cmd provides CLI command implementations for Archgraph.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/Benny93/archgraph/internal/config"
	"github.com/Benny93/archgraph/internal/engine"
	"github.com/Benny93/archgraph/internal/logging"
	"github.com/Benny93/archgraph/internal/storage"
	"github.com/Benny93/archgraph/internal/telemetry"
)

// Version is set at build time via ldflags.
var Version = "dev"

// ErrNoIndex is returned when a command needs the database before import.
var ErrNoIndex = errors.New("no index found")

// Globals are the flags shared by every command.
type Globals struct {
	Repo    string `short:"C" default:"." help:"Repository root"`
	Config  string `help:"Config file (default: <repo>/.archgraph/config.yaml)"`
	JSON    bool   `help:"Print machine-readable JSON"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	// Out receives command output. Defaults to os.Stdout.
	Out io.Writer `kong:"-"`
}

// app is the per-invocation runtime built from Globals.
type app struct {
	root     string
	cfg      *config.Config
	logger   *zap.Logger
	out      io.Writer
	json     bool
	shutdown func(context.Context) error
}

// open loads config, builds the logger and starts telemetry.
func (g *Globals) open(ctx context.Context) (*app, error) {
	root, err := filepath.Abs(g.Repo)
	if err != nil {
		return nil, fmt.Errorf("resolving repository root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("accessing %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	path := g.Config
	if path == "" {
		path = config.DefaultPath(root)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if g.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	out := g.Out
	if out == nil {
		out = os.Stdout
	}
	return &app{
		root:     root,
		cfg:      cfg,
		logger:   logger,
		out:      out,
		json:     g.JSON,
		shutdown: shutdown,
	}, nil
}

// close flushes telemetry and the logger.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// openStore opens the Badger database. Read-only opens require an
// existing index; writable opens create the state directory.
func (a *app) openStore(readOnly bool) (*storage.BadgerBackend, error) {
	dbPath := a.cfg.StoragePath(a.root)
	if readOnly {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s. Run 'archgraph import' first", ErrNoIndex, a.root)
		}
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	store := storage.NewBadgerBackend()
	if err := store.Initialize(dbPath, readOnly); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// engine creates an analysis engine over store. Progress goes to stderr in
// verbose text mode.
func (a *app) engine(store storage.Backend) *engine.Engine {
	opts := []engine.Option{engine.WithLogger(a.logger)}
	if !a.json && a.logger.Core().Enabled(zap.DebugLevel) {
		opts = append(opts, engine.WithProgress(func(phase string, p float64) {
			fmt.Fprintf(os.Stderr, "\r\033[K%s (%.0f%%)", phase, p*100)
			if p >= 1 {
				fmt.Fprintln(os.Stderr)
			}
		}))
	}
	return engine.New(store, a.cfg, opts...)
}

// analyze opens the index and runs fn on a fresh engine.
func (g *Globals) analyze(readOnly bool, fn func(ctx context.Context, a *app, e *engine.Engine) error) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openStore(readOnly)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(ctx, a, a.engine(store))
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) header(format string, args ...any) {
	color.New(color.Bold).Fprintf(a.out, format+"\n", args...)
}

func (a *app) success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(a.out, format+"\n", args...)
}

func (a *app) warn(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(a.out, format+"\n", args...)
}

// VersionCmd prints the build version.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run(g *Globals) error {
	out := g.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintf(out, "archgraph %s\n", Version)
	return err
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Import     ImportCmd     `cmd:"" help:"Import a symbol graph snapshot"`
	History    HistoryCmd    `cmd:"" help:"Mine git history for churn and co-change"`
	Complexity ComplexityCmd `cmd:"" help:"Measure cyclomatic complexity of Go sources"`
	Cycles     CyclesCmd     `cmd:"" help:"List dependency cycles"`
	Layers     LayersCmd     `cmd:"" help:"Assign architectural layers and list violations"`
	Clusters   ClustersCmd   `cmd:"" help:"Detect communities of coupled symbols"`
	Metrics    MetricsCmd    `cmd:"" help:"Rank symbols by centrality"`
	Debt       DebtCmd       `cmd:"" help:"Rank symbols by technical debt"`
	Partition  PartitionCmd  `cmd:"" help:"Split the codebase into work zones for parallel agents"`
	Impact     ImpactCmd     `cmd:"" help:"Show blast radius of changing a symbol or files"`
	Overview   OverviewCmd   `cmd:"" help:"Summarize the architecture"`
	Status     StatusCmd     `cmd:"" help:"Show index status for the repository"`
	Clean      CleanCmd      `cmd:"" help:"Delete the index for the repository"`
	Watch      WatchCmd      `cmd:"" help:"Watch the repository and report new cycles"`
	Serve      ServeCmd      `cmd:"" help:"Start the MCP server (stdio transport)"`
	Setup      SetupCmd      `cmd:"" help:"Write default config and MCP client configuration"`
	Show       VersionCmd    `cmd:"" name:"version" help:"Print the version"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("archgraph"),
		kong.Description("Architectural analysis over a symbol dependency graph"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kongCtx.Run(&c.Globals)
}
