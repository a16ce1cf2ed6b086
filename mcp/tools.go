package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Benny93/archgraph/internal/engine"
)

const defaultLimit = 20

type cyclesArgs struct {
	Files []string `json:"files,omitempty" jsonschema:"Only report cycles with a member in one of these repository-relative files"`
	Limit int      `json:"limit,omitempty" jsonschema:"Maximum number of cycles to list (default 20)"`
}

type layersArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of layer violations to list (default 20)"`
}

type clustersArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of clusters to list (default 20)"`
}

type metricsArgs struct {
	Limit       int  `json:"limit,omitempty" jsonschema:"Number of top symbols by PageRank (default 20)"`
	Betweenness bool `json:"betweenness,omitempty" jsonschema:"Also compute betweenness centrality, which is slow on large graphs"`
}

type debtArgs struct {
	Limit int  `json:"limit,omitempty" jsonschema:"Number of highest-debt symbols or files to list (default 20)"`
	Files bool `json:"files,omitempty" jsonschema:"Rank files by complexity, cycles, fan-in/out and unused exports, weighted by git churn"`
}

type partitionArgs struct {
	Agents int      `json:"agents,omitempty" jsonschema:"Number of parallel agents; 0 picks one from config or the cluster count"`
	Scope  []string `json:"scope,omitempty" jsonschema:"Limit partitioning to these files or directory prefixes"`
}

type impactArgs struct {
	Symbol string   `json:"symbol,omitempty" jsonschema:"Name or qualified name of the changed symbol"`
	Files  []string `json:"files,omitempty" jsonschema:"Changed repository-relative files; every symbol in them is a target"`
	Depth  int      `json:"depth,omitempty" jsonschema:"Maximum traversal depth; 0 is unlimited"`
}

type overviewArgs struct{}

func limitOr(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

func (s *Server) registerTools() {
	addTool(s, "archgraph_overview",
		"One-screen architecture summary: size, cycles, layers, clusters and the most central symbols.",
		s.handleOverview)
	addTool(s, "archgraph_cycles",
		"Lists dependency cycles (strongly connected components) with their files and the edge most likely to break each one.",
		s.handleCycles)
	addTool(s, "archgraph_layers",
		"Assigns architectural layers (leaves are layer 0) and lists edges that skip layers.",
		s.handleLayers)
	addTool(s, "archgraph_clusters",
		"Detects communities of tightly coupled symbols and compares them with the directory layout.",
		s.handleClusters)
	addTool(s, "archgraph_metrics",
		"Ranks symbols by PageRank with in/out degree, and betweenness on request.",
		s.handleMetrics)
	addTool(s, "archgraph_debt",
		"Ranks symbols by technical-debt score combining degree, betweenness, closeness, eigenvector centrality and cycle membership, or files by hotspot-weighted debt.",
		s.handleDebt)
	addTool(s, "archgraph_partition",
		"Splits the codebase into work zones for parallel agents with file ownership, conflict risk, difficulty and merge order. Returns JSON.",
		s.handlePartition)
	addTool(s, "archgraph_impact",
		"Blast radius of a change: every symbol that transitively depends on a symbol or on the symbols in changed files.",
		s.handleImpact)
}

func (s *Server) handleOverview(ctx context.Context, _ overviewArgs) (string, error) {
	ov, err := s.analyzer.Overview(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# Architecture Overview\n\n")
	if ov.Snapshot.Source != "" {
		fmt.Fprintf(&sb, "Snapshot: %s (imported %s)\n\n", ov.Snapshot.Source, ov.Snapshot.ImportedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&sb, "- Symbols: %d\n", ov.Symbols)
	fmt.Fprintf(&sb, "- Edges: %d", ov.Edges)
	if ov.DroppedEdges > 0 {
		fmt.Fprintf(&sb, " (%d dropped)", ov.DroppedEdges)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "- Files: %d\n", ov.Files)
	fmt.Fprintf(&sb, "- Cycles: %d (%d symbols, propagation cost %.1f%%)\n", ov.Cycles, ov.NodesInCycles, ov.PropagationCost*100)
	fmt.Fprintf(&sb, "- Layers: %d (%d violations)\n", ov.Layers, ov.Violations)
	fmt.Fprintf(&sb, "- Clusters: %d (modularity %.3f)\n", ov.Clusters, ov.Modularity)

	if len(ov.TopSymbols) > 0 {
		sb.WriteString("\n## Most central symbols\n\n")
		for i, r := range ov.TopSymbols {
			fmt.Fprintf(&sb, "%d. **%s** (%s) %s:%d pagerank %.4f\n", i+1, r.Name, r.Kind, r.FilePath, r.Line, r.PageRank)
		}
	}
	if !ov.Converged {
		sb.WriteString("\nPageRank did not converge; scores are approximate.\n")
	}
	return sb.String(), nil
}

func (s *Server) handleCycles(ctx context.Context, args cyclesArgs) (string, error) {
	report, err := s.analyzer.Cycles(ctx)
	if err != nil {
		return "", err
	}

	cycles := report.Cycles
	if len(args.Files) > 0 {
		cycles = report.Touching(args.Files)
	}
	if len(cycles) == 0 {
		return "No dependency cycles found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d cycles (%d symbols in cycles, propagation cost %.1f%%):\n\n",
		len(cycles), report.NodesInCycles, report.PropagationCost*100)

	limit := limitOr(args.Limit)
	for i, c := range cycles {
		if i == limit {
			fmt.Fprintf(&sb, "... and %d more\n", len(cycles)-limit)
			break
		}
		fmt.Fprintf(&sb, "## Cycle %d (%d symbols)\n", c.ID, c.Size)
		fmt.Fprintf(&sb, "Files: %s\n", strings.Join(c.Files, ", "))
		names := make([]string, len(c.Members))
		byID := make(map[int64]string, len(c.Members))
		for k, m := range c.Members {
			names[k] = m.Name
			byID[m.ID] = m.Name
		}
		fmt.Fprintf(&sb, "Members: %s\n", strings.Join(names, ", "))
		if c.WeakestEdge != nil {
			fmt.Fprintf(&sb, "Break: %s -> %s (%s)\n", byID[c.WeakestEdge.Source], byID[c.WeakestEdge.Target], c.WeakestEdge.Reason)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (s *Server) handleLayers(ctx context.Context, args layersArgs) (string, error) {
	report, err := s.analyzer.Layers(ctx)
	if err != nil {
		return "", err
	}
	if report.LayerCount == 0 {
		return "No symbols loaded.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d layers (0 = leaves):\n\n", report.LayerCount)
	for _, l := range report.Layers {
		fmt.Fprintf(&sb, "- Layer %d: %d symbols", l.Layer, l.Count)
		if len(l.Directories) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(l.Directories, ", "))
		}
		sb.WriteString("\n")
	}

	if len(report.Violations) == 0 {
		sb.WriteString("\nNo layer violations.\n")
		return sb.String(), nil
	}
	fmt.Fprintf(&sb, "\n## %d violations\n\n", len(report.Violations))
	limit := limitOr(args.Limit)
	for i, v := range report.Violations {
		if i == limit {
			fmt.Fprintf(&sb, "... and %d more\n", len(report.Violations)-limit)
			break
		}
		fmt.Fprintf(&sb, "- %d (layer %d) -> %d (layer %d), gap %d, severity %.2f\n",
			v.Source, v.SourceLayer, v.Target, v.TargetLayer, v.Gap, v.Severity)
	}
	return sb.String(), nil
}

func (s *Server) handleClusters(ctx context.Context, args clustersArgs) (string, error) {
	report, err := s.analyzer.Clusters(ctx)
	if err != nil {
		return "", err
	}
	if len(report.Clusters) == 0 {
		return "No symbols loaded.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d clusters, modularity %.3f, mean conductance %.3f:\n\n",
		len(report.Clusters), report.Modularity, report.MeanConductance)
	limit := limitOr(args.Limit)
	for i, c := range report.Clusters {
		if i == limit {
			fmt.Fprintf(&sb, "... and %d more\n", len(report.Clusters)-limit)
			break
		}
		fmt.Fprintf(&sb, "- Cluster %d **%s**: %d symbols, conductance %.3f\n", c.ID, c.Label, c.Size, c.Conductance)
	}

	if len(report.Mismatches) > 0 {
		sb.WriteString("\n## Clusters spanning directories\n\n")
		for _, m := range report.Mismatches {
			fmt.Fprintf(&sb, "- %s: %s (%d outside the main directory)\n", m.Label, strings.Join(m.Directories, ", "), m.MismatchCount)
		}
	}
	return sb.String(), nil
}

func (s *Server) handleMetrics(ctx context.Context, args metricsArgs) (string, error) {
	report, err := s.analyzer.Centrality(ctx, limitOr(args.Limit), args.Betweenness)
	if err != nil {
		return "", err
	}
	if len(report.Top) == 0 {
		return "No symbols loaded.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Top %d symbols by PageRank", len(report.Top))
	if report.FromCache {
		sb.WriteString(" (cached)")
	}
	sb.WriteString(":\n\n")
	for i, r := range report.Top {
		fmt.Fprintf(&sb, "%d. **%s** (%s) %s:%d\n", i+1, r.Name, r.Kind, r.FilePath, r.Line)
		fmt.Fprintf(&sb, "   pagerank %.4f, in %d, out %d", r.PageRank, r.InDegree, r.OutDegree)
		if args.Betweenness || report.FromCache {
			fmt.Fprintf(&sb, ", betweenness %.1f", r.Betweenness)
		}
		sb.WriteString("\n")
	}
	if !report.Converged {
		sb.WriteString("\nPageRank did not converge; scores are approximate.\n")
	}
	return sb.String(), nil
}

func (s *Server) handleDebt(ctx context.Context, args debtArgs) (string, error) {
	if args.Files {
		return s.handleFileDebt(ctx, args)
	}
	entries, err := s.analyzer.Debt(ctx, limitOr(args.Limit))
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No symbols loaded.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Top %d symbols by debt score:\n\n", len(entries))
	for i, d := range entries {
		fmt.Fprintf(&sb, "%d. **%s** %s score %.1f", i+1, d.Name, d.FilePath, d.Score)
		if d.InCycle {
			sb.WriteString(" [in cycle]")
		}
		fmt.Fprintf(&sb, "\n   in %d, out %d, betweenness %.1f, clustering %.2f\n", d.InDegree, d.OutDegree, d.Betweenness, d.Clustering)
	}
	return sb.String(), nil
}

func (s *Server) handleFileDebt(ctx context.Context, args debtArgs) (string, error) {
	report, err := s.analyzer.FileDebt(ctx, limitOr(args.Limit))
	if err != nil {
		return "", err
	}
	if len(report.Files) == 0 {
		return "No symbols loaded.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Top %d files by debt score:\n\n", len(report.Files))
	for i, d := range report.Files {
		fmt.Fprintf(&sb, "%d. **%s** score %.3f (health %.2f x hotspot %.2f), ~%.0f min to fix",
			i+1, d.Path, d.Score, d.HealthPenalty, d.HotspotFactor, d.RemediationMinutes)
		if d.InCycle {
			sb.WriteString(" [in cycle]")
		}
		if d.God {
			sb.WriteString(" [god component]")
		}
		if d.DeadExports > 0 {
			fmt.Fprintf(&sb, " [%d/%d exports unused]", d.DeadExports, d.Exported)
		}
		sb.WriteString("\n")
	}
	sm := report.Summary
	fmt.Fprintf(&sb, "\n%d files, total debt %.1f, %.1f hours of remediation, %d hotspots.\n",
		sm.Files, sm.TotalDebt, sm.RemediationMinutes/60, sm.HotspotFiles)
	return sb.String(), nil
}

func (s *Server) handlePartition(ctx context.Context, args partitionArgs) (string, error) {
	manifest, err := s.analyzer.Partition(ctx, args.Agents, args.Scope)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	return string(data), nil
}

func (s *Server) handleImpact(ctx context.Context, args impactArgs) (string, error) {
	if args.Symbol == "" && len(args.Files) == 0 {
		return "No symbol or changed files provided.", nil
	}

	report, err := s.analyzer.Impact(ctx, engine.ImpactRequest{
		Symbol: args.Symbol,
		Files:  args.Files,
		Depth:  args.Depth,
	})
	if errors.Is(err, engine.ErrSymbolNotFound) {
		return fmt.Sprintf("Symbol '%s' not found.", args.Symbol), nil
	}
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if len(report.Targets) > 0 {
		fmt.Fprintf(&sb, "Changed symbols (%d):\n", len(report.Targets))
		for _, t := range report.Targets {
			fmt.Fprintf(&sb, "- %s (%s) %s:%d\n", t.Name, t.Kind, t.FilePath, t.Line)
		}
		sb.WriteString("\n")
	}
	if len(report.UnknownFiles) > 0 {
		fmt.Fprintf(&sb, "Files without symbols: %s\n\n", strings.Join(report.UnknownFiles, ", "))
	}

	if len(report.Affected) == 0 {
		sb.WriteString("No dependents affected.\n")
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "Affected symbols (%d) in %d files:\n", len(report.Affected), len(report.AffectedFiles))
	for _, depth := range sortedKeys(report.ByDepth) {
		fmt.Fprintf(&sb, "\n## Depth %d (%d)\n", depth, report.ByDepth[depth])
		for _, a := range report.Affected {
			if a.Depth == depth {
				fmt.Fprintf(&sb, "- %s (%s) %s:%d\n", a.Name, a.Kind, a.FilePath, a.Line)
			}
		}
	}
	return sb.String(), nil
}
