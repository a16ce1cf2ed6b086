package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Benny93/archgraph/internal/engine"
)

// CyclesCmd lists dependency cycles.
type CyclesCmd struct {
	Files []string `help:"Only list cycles touching these repository-relative files"`
}

// Run executes the cycles command.
func (c *CyclesCmd) Run(g *Globals) error {
	return g.analyze(true, func(ctx context.Context, a *app, e *engine.Engine) error {
		report, err := e.Cycles(ctx)
		if err != nil {
			return err
		}
		if len(c.Files) > 0 {
			report.Cycles = report.Touching(c.Files)
		}
		if a.json {
			return a.printJSON(report)
		}
		a.printCycles(report.Cycles)
		if len(report.Cycles) > 0 {
			a.printf("\nPropagation cost: %.1f%%\n", report.PropagationCost*100)
		}
		return nil
	})
}

func (a *app) printCycles(cycles []engine.Cycle) {
	if len(cycles) == 0 {
		a.success("✓ No dependency cycles")
		return
	}
	a.warn("Found %d cycles", len(cycles))
	for _, cy := range cycles {
		names := make(map[int64]string, len(cy.Members))
		members := make([]string, len(cy.Members))
		for i, m := range cy.Members {
			names[m.ID] = m.Name
			members[i] = m.Name
		}
		a.printf("\n")
		a.header("Cycle %d (%d symbols)", cy.ID, cy.Size)
		a.printf("  Members: %s\n", strings.Join(members, ", "))
		a.printf("  Files:   %s\n", strings.Join(cy.Files, ", "))
		if w := cy.WeakestEdge; w != nil {
			a.printf("  Break:   %s -> %s (%s)\n", names[w.Source], names[w.Target], w.Reason)
		}
	}
}

// LayersCmd assigns layers and lists violations.
type LayersCmd struct{}

// Run executes the layers command.
func (c *LayersCmd) Run(g *Globals) error {
	return g.analyze(true, func(ctx context.Context, a *app, e *engine.Engine) error {
		report, err := e.Layers(ctx)
		if err != nil {
			return err
		}
		if a.json {
			return a.printJSON(report)
		}

		a.header("%d layers (0 = leaves)", report.LayerCount)
		for _, l := range report.Layers {
			a.printf("  Layer %d: %d symbols", l.Layer, l.Count)
			if len(l.Directories) > 0 {
				a.printf("  [%s]", strings.Join(l.Directories, ", "))
			}
			a.printf("\n")
		}
		if len(report.Violations) == 0 {
			a.success("\n✓ No layer violations")
			return nil
		}
		a.warn("\n%d layer violations", len(report.Violations))
		for _, v := range report.Violations {
			a.printf("  %d (L%d) -> %d (L%d)  gap %d  severity %.2f\n",
				v.Source, v.SourceLayer, v.Target, v.TargetLayer, v.Gap, v.Severity)
		}
		return nil
	})
}

// ClustersCmd detects communities.
type ClustersCmd struct {
	Members bool `help:"List cluster members"`
}

// Run executes the clusters command.
func (c *ClustersCmd) Run(g *Globals) error {
	return g.analyze(true, func(ctx context.Context, a *app, e *engine.Engine) error {
		report, err := e.Clusters(ctx)
		if err != nil {
			return err
		}
		if a.json {
			return a.printJSON(report)
		}

		a.header("%d clusters  modularity %.3f  mean conductance %.3f",
			len(report.Clusters), report.Modularity, report.MeanConductance)
		for _, cl := range report.Clusters {
			a.printf("  %3d  %-30s %4d symbols  conductance %.3f\n", cl.ID, cl.Label, cl.Size, cl.Conductance)
			if c.Members {
				for _, m := range cl.Members {
					a.printf("         %s  %s:%d\n", m.Name, m.FilePath, m.Line)
				}
			}
		}
		if len(report.Mismatches) > 0 {
			a.printf("\n")
			a.warn("Clusters spanning directories")
			for _, m := range report.Mismatches {
				a.printf("  %s: %s (%d outside)\n", m.Label, strings.Join(m.Directories, ", "), m.MismatchCount)
			}
		}
		return nil
	})
}

// MetricsCmd ranks symbols by centrality.
type MetricsCmd struct {
	Limit       int  `short:"n" default:"20" help:"Number of symbols to list"`
	Save        bool `help:"Recompute and store the metrics cache"`
	Betweenness bool `short:"b" help:"Also compute betweenness when the cache does not cover the graph"`
}

// Run executes the metrics command.
func (c *MetricsCmd) Run(g *Globals) error {
	return g.analyze(!c.Save, func(ctx context.Context, a *app, e *engine.Engine) error {
		if c.Save {
			saved, err := e.SaveMetrics(ctx)
			if err != nil {
				return err
			}
			if !a.json {
				a.success("✓ Saved metrics for %d symbols", saved)
			}
		}

		report, err := e.Centrality(ctx, c.Limit, c.Betweenness)
		if err != nil {
			return err
		}
		if a.json {
			return a.printJSON(report)
		}

		title := "Top symbols by PageRank"
		if report.FromCache {
			title += " (cached)"
		}
		a.header("%s", title)
		showBetweenness := c.Betweenness || report.FromCache
		for i, r := range report.Top {
			if showBetweenness {
				a.printf("%3d. %-30s pr %.4f  in %3d  out %3d  btw %8.1f  %s:%d\n",
					i+1, r.Name, r.PageRank, r.InDegree, r.OutDegree, r.Betweenness, r.FilePath, r.Line)
				continue
			}
			a.printf("%3d. %-30s pr %.4f  in %3d  out %3d  %s:%d\n",
				i+1, r.Name, r.PageRank, r.InDegree, r.OutDegree, r.FilePath, r.Line)
		}
		if !report.Converged {
			a.warn("PageRank did not converge; scores are approximate")
		}
		return nil
	})
}

// DebtCmd ranks symbols or files by technical debt.
type DebtCmd struct {
	Limit int  `short:"n" default:"20" help:"Number of symbols or files to list"`
	Files bool `short:"f" help:"Rank files by hotspot-weighted debt instead of symbols"`
}

// Run executes the debt command.
func (c *DebtCmd) Run(g *Globals) error {
	return g.analyze(true, func(ctx context.Context, a *app, e *engine.Engine) error {
		if c.Files {
			return c.runFiles(ctx, a, e)
		}
		entries, err := e.Debt(ctx, c.Limit)
		if err != nil {
			return err
		}
		if a.json {
			return a.printJSON(entries)
		}

		a.header("Top symbols by debt score")
		for i, d := range entries {
			marker := ""
			if d.InCycle {
				marker = "  [cycle]"
			}
			a.printf("%3d. %5.1f  %-30s %s%s\n", i+1, d.Score, d.Name, d.FilePath, marker)
		}
		return nil
	})
}

func (c *DebtCmd) runFiles(ctx context.Context, a *app, e *engine.Engine) error {
	report, err := e.FileDebt(ctx, c.Limit)
	if err != nil {
		return err
	}
	if a.json {
		return a.printJSON(report)
	}

	s := report.Summary
	a.header("Top files by debt score")
	for i, d := range report.Files {
		var marks []string
		if d.InCycle {
			marks = append(marks, "cycle")
		}
		if d.God {
			marks = append(marks, "god")
		}
		if d.DeadExports > 0 {
			marks = append(marks, fmt.Sprintf("%d dead", d.DeadExports))
		}
		marker := ""
		if len(marks) > 0 {
			marker = "  [" + strings.Join(marks, ", ") + "]"
		}
		a.printf("%3d. %6.3f  health %.2f x%.2f  %4.0fm  %s%s\n",
			i+1, d.Score, d.HealthPenalty, d.HotspotFactor, d.RemediationMinutes, d.Path, marker)
	}
	a.printf("\n  Files:          %d\n", s.Files)
	a.printf("  Total debt:     %.1f (mean %.3f, median %.3f)\n", s.TotalDebt, s.MeanDebt, s.MedianDebt)
	a.printf("  Remediation:    %.1fh\n", s.RemediationMinutes/60)
	a.printf("  Hotspots:       %d\n", s.HotspotFiles)
	return nil
}

// PartitionCmd computes a multi-agent partition manifest.
type PartitionCmd struct {
	Agents int      `short:"a" help:"Number of agents (default: config, else cluster count)"`
	Scope  []string `help:"Limit to these files or directory prefixes"`
	Output string   `short:"o" help:"Write the manifest JSON to this file"`
}

// Run executes the partition command.
func (c *PartitionCmd) Run(g *Globals) error {
	return g.analyze(true, func(ctx context.Context, a *app, e *engine.Engine) error {
		m, err := e.Partition(ctx, c.Agents, c.Scope)
		if err != nil {
			return err
		}

		if c.Output != "" {
			data, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding manifest: %w", err)
			}
			if err := os.WriteFile(c.Output, data, 0o644); err != nil {
				return fmt.Errorf("writing manifest: %w", err)
			}
		}
		if a.json {
			return a.printJSON(m)
		}

		if m.ScopeUnmatched {
			a.warn("No symbols match --scope; partitioned the whole graph")
		}
		a.header("%s", m.Verdict)
		for _, p := range m.Partitions {
			a.printf("\n")
			a.header("Partition %d: %s (%s)", p.ID, p.Label, p.Agent)
			a.printf("  Symbols: %d  Files: %d  Write: %d\n", p.SymbolCount, len(p.Files), len(p.WriteFiles))
			a.printf("  Risk: %s  Difficulty: %.1f (%s)\n", p.ConflictRisk, p.DifficultyScore, p.DifficultyLabel)
			if len(p.KeySymbols) > 0 {
				keys := make([]string, len(p.KeySymbols))
				for i, k := range p.KeySymbols {
					keys[i] = k.Name
				}
				a.printf("  Key symbols: %s\n", strings.Join(keys, ", "))
			}
		}
		if len(m.MergeOrder) > 0 {
			order := make([]string, len(m.MergeOrder))
			for i, id := range m.MergeOrder {
				order[i] = fmt.Sprint(id)
			}
			a.printf("\nMerge order: %s\n", strings.Join(order, " -> "))
		}
		if c.Output != "" {
			a.success("✓ Wrote %s", c.Output)
		}
		return nil
	})
}

// ImpactCmd shows the blast radius of a change.
type ImpactCmd struct {
	Symbol string   `arg:"" optional:"" help:"Symbol name or qualified name"`
	Files  []string `help:"Changed repository-relative files"`
	Depth  int      `short:"d" default:"3" help:"Maximum traversal depth (0 = unlimited)"`
}

// Run executes the impact command.
func (c *ImpactCmd) Run(g *Globals) error {
	if c.Symbol == "" && len(c.Files) == 0 {
		return errors.New("symbol or --files required. Usage: archgraph impact <symbol>")
	}
	return g.analyze(true, func(ctx context.Context, a *app, e *engine.Engine) error {
		report, err := e.Impact(ctx, engine.ImpactRequest{Symbol: c.Symbol, Files: c.Files, Depth: c.Depth})
		if errors.Is(err, engine.ErrSymbolNotFound) && !a.json {
			a.printf("Symbol '%s' not found in the graph.\n", c.Symbol)
			return nil
		}
		if err != nil {
			return err
		}
		if a.json {
			return a.printJSON(report)
		}

		for _, t := range report.Targets {
			a.header("%s (%s) %s:%d", t.Name, t.Kind, t.FilePath, t.Line)
		}
		for _, f := range report.UnknownFiles {
			a.warn("No symbols in %s", f)
		}
		if len(report.Affected) == 0 {
			a.success("✓ No dependents affected")
			return nil
		}
		a.printf("\n%d symbols affected in %d files\n", len(report.Affected), len(report.AffectedFiles))
		depth := 0
		for _, it := range report.Affected {
			if it.Depth != depth {
				depth = it.Depth
				a.printf("\n")
				a.header("Depth %d (%d)", depth, report.ByDepth[depth])
			}
			a.printf("  %s (%s) %s:%d\n", it.Name, it.Kind, it.FilePath, it.Line)
		}
		return nil
	})
}

// OverviewCmd summarizes the architecture.
type OverviewCmd struct{}

// Run executes the overview command.
func (c *OverviewCmd) Run(g *Globals) error {
	return g.analyze(true, func(ctx context.Context, a *app, e *engine.Engine) error {
		ov, err := e.Overview(ctx)
		if err != nil {
			return err
		}
		if a.json {
			return a.printJSON(ov)
		}

		a.header("Architecture overview")
		a.printf("  Snapshot:       %s (%s)\n", ov.Snapshot.ID, ov.Snapshot.Source)
		a.printf("  Symbols:        %d\n", ov.Symbols)
		a.printf("  Edges:          %d (%d dropped)\n", ov.Edges, ov.DroppedEdges)
		a.printf("  Files:          %d\n", ov.Files)
		a.printf("  Cycles:         %d (%d symbols, propagation cost %.1f%%)\n", ov.Cycles, ov.NodesInCycles, ov.PropagationCost*100)
		a.printf("  Layers:         %d (%d violations)\n", ov.Layers, ov.Violations)
		a.printf("  Clusters:       %d (modularity %.3f)\n", ov.Clusters, ov.Modularity)
		if len(ov.TopSymbols) > 0 {
			a.printf("\n")
			a.header("Most central symbols")
			for i, r := range ov.TopSymbols {
				a.printf("%3d. %-30s pr %.4f  %s:%d\n", i+1, r.Name, r.PageRank, r.FilePath, r.Line)
			}
		}
		return nil
	})
}
