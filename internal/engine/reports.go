package engine

import (
	"context"
	"slices"
	"sort"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/graph"
)

// Cycle is one strongly connected component.
type Cycle struct {
	ID          int                `json:"id"`
	Size        int                `json:"size"`
	Members     []SymbolRef        `json:"members"`
	Files       []string           `json:"files"`
	WeakestEdge *analysis.WeakEdge `json:"weakest_edge,omitempty"`
}

// CycleReport lists dependency cycles.
type CycleReport struct {
	Cycles          []Cycle        `json:"cycles"`
	NodesInCycles   int            `json:"nodes_in_cycles"`
	PropagationCost float64        `json:"propagation_cost"`
	Files           map[string]int `json:"files"`
}

// Touching returns the cycles with a member in one of the files.
func (r *CycleReport) Touching(files []string) []Cycle {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f] = true
	}
	result := []Cycle{}
	for _, c := range r.Cycles {
		for _, f := range c.Files {
			if set[f] {
				result = append(result, c)
				break
			}
		}
	}
	return result
}

// Cycles finds strongly connected components of at least cycles.min_size
// members and suggests an edge to break each.
func (e *Engine) Cycles(ctx context.Context) (*CycleReport, error) {
	var report *CycleReport
	err := e.run(ctx, "cycles", func(ctx context.Context, st *State) error {
		report = cycleReport(st.Graph, analysis.FindCycles(st.Graph, e.cfg.Cycles.MinSize))
		return nil
	})
	return report, err
}

func cycleReport(g *graph.Graph, sccs [][]int64) *CycleReport {
	report := &CycleReport{
		Cycles:          make([]Cycle, 0, len(sccs)),
		PropagationCost: analysis.PropagationCost(g),
		Files:           analysis.CycleFiles(g, sccs),
	}
	for i, members := range sccs {
		c := Cycle{ID: i + 1, Size: len(members), Members: refs(g, members), Files: filesOf(g, members)}
		if w, ok := analysis.WeakestEdge(g, members); ok {
			c.WeakestEdge = &w
		}
		report.NodesInCycles += len(members)
		report.Cycles = append(report.Cycles, c)
	}
	return report
}

func filesOf(g *graph.Graph, ids []int64) []string {
	set := make(map[string]bool)
	for _, id := range ids {
		if n, ok := g.Node(id); ok {
			set[n.FilePath] = true
		}
	}
	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// LayerReport is the layering of the graph.
type LayerReport struct {
	LayerCount int                     `json:"layer_count"`
	Layers     []analysis.LayerSummary `json:"layers"`
	Violations []analysis.Violation    `json:"violations"`
	Assignment analysis.LayerMap       `json:"assignment"`
}

// Layers assigns layers and lists edges that skip layers.
func (e *Engine) Layers(ctx context.Context) (*LayerReport, error) {
	var report *LayerReport
	err := e.run(ctx, "layers", func(ctx context.Context, st *State) error {
		layers := analysis.DetectLayers(st.Graph)
		report = &LayerReport{
			LayerCount: analysis.LayerCount(layers),
			Layers:     analysis.SummarizeLayers(st.Graph, layers),
			Violations: analysis.FindViolations(st.Graph, layers),
			Assignment: layers,
		}
		return nil
	})
	return report, err
}

// Cluster is one detected community.
type Cluster struct {
	ID          int         `json:"id"`
	Label       string      `json:"label"`
	Size        int         `json:"size"`
	Conductance float64     `json:"conductance"`
	Members     []SymbolRef `json:"members"`
}

// ClusterReport is the community structure of the graph.
type ClusterReport struct {
	Clusters        []Cluster                    `json:"clusters"`
	Modularity      float64                      `json:"modularity"`
	MeanConductance float64                      `json:"mean_conductance"`
	Mismatches      []analysis.DirectoryMismatch `json:"directory_mismatches"`
	Assignment      analysis.ClusterMap          `json:"assignment"`
}

// Clusters detects communities, labels them and compares them with the
// directory layout.
func (e *Engine) Clusters(ctx context.Context) (*ClusterReport, error) {
	var report *ClusterReport
	err := e.run(ctx, "clusters", func(ctx context.Context, st *State) error {
		g := st.Graph
		clusters := analysis.DetectClustersWith(g, e.cfg.ClusterOptions())
		ranks := analysis.PageRank(g, e.cfg.PageRankOptions())
		labels := analysis.LabelClusters(g, clusters, ranks.Scores)
		quality := analysis.Quality(g, clusters)

		report = &ClusterReport{
			Clusters:        []Cluster{},
			Modularity:      quality.Modularity,
			MeanConductance: quality.MeanConductance,
			Mismatches:      analysis.CompareWithDirectories(g, clusters, labels),
			Assignment:      clusters,
		}
		for id, members := range analysis.ClusterGroups(clusters) {
			report.Clusters = append(report.Clusters, Cluster{
				ID:          id,
				Label:       labels[id],
				Size:        len(members),
				Conductance: quality.Conductance[id],
				Members:     refs(g, members),
			})
		}
		return nil
	})
	return report, err
}

// RankedSymbol is a symbol with its centrality metrics.
type RankedSymbol struct {
	SymbolRef
	analysis.Metrics
}

// CentralityReport ranks symbols by PageRank.
type CentralityReport struct {
	Converged bool           `json:"converged"`
	FromCache bool           `json:"from_cache"`
	Top       []RankedSymbol `json:"top"`

	// Metrics covers every node.
	Metrics map[int64]analysis.Metrics `json:"-"`
}

// Centrality computes PageRank and degrees, reusing the saved metrics
// cache when it covers the graph. Betweenness is computed only when
// betweenness is true; a covering cache supplies its saved values either
// way. limit <= 0 returns every node.
func (e *Engine) Centrality(ctx context.Context, limit int, betweenness bool) (*CentralityReport, error) {
	var report *CentralityReport
	err := e.run(ctx, "centrality", func(ctx context.Context, st *State) error {
		report = e.centrality(st, st.Cache, limit, betweenness)
		return nil
	})
	return report, err
}

func (e *Engine) betweennessOptions(enabled bool) *analysis.BetweennessOptions {
	if !enabled {
		return nil
	}
	bo := e.cfg.BetweennessOptions()
	return &bo
}

func (e *Engine) centrality(st *State, cache map[int64]analysis.Metrics, limit int, betweenness bool) *CentralityReport {
	g := st.Graph
	result := analysis.Compute(g, cache, e.cfg.PageRankOptions(), e.betweennessOptions(betweenness))
	scores := make(map[int64]float64, len(result.Metrics))
	for id, m := range result.Metrics {
		scores[id] = m.PageRank
	}

	report := &CentralityReport{
		Converged: result.Converged,
		FromCache: result.FromCache,
		Top:       []RankedSymbol{},
		Metrics:   result.Metrics,
	}
	for _, id := range analysis.TopByPageRank(scores, limit) {
		n, _ := g.Node(id)
		report.Top = append(report.Top, RankedSymbol{SymbolRef: refOf(n), Metrics: result.Metrics[id]})
	}
	return report
}

// SaveMetrics recomputes centrality from scratch and stores it as the
// metrics cache. Returns the number of nodes saved.
func (e *Engine) SaveMetrics(ctx context.Context) (int, error) {
	var saved int
	err := e.run(ctx, "save_metrics", func(ctx context.Context, st *State) error {
		report := e.centrality(st, nil, 0, true)
		if err := e.store.StoreMetrics(ctx, report.Metrics); err != nil {
			return err
		}
		st.Cache = report.Metrics
		saved = len(report.Metrics)
		return nil
	})
	return saved, err
}

// Debt ranks symbols by technical-debt score. limit <= 0 returns all.
func (e *Engine) Debt(ctx context.Context, limit int) ([]analysis.DebtEntry, error) {
	var entries []analysis.DebtEntry
	err := e.run(ctx, "debt", func(ctx context.Context, st *State) error {
		g := st.Graph
		metrics := analysis.Compute(g, st.Cache, e.cfg.PageRankOptions(), e.betweennessOptions(true)).Metrics
		betweenness := make(map[int64]float64, len(metrics))
		for id, m := range metrics {
			betweenness[id] = m.Betweenness
		}
		entries = analysis.DebtRanking(g, betweenness, analysis.FindCycles(g, e.cfg.Cycles.MinSize), limit)
		return nil
	})
	return entries, err
}

// FileDebt ranks files by hotspot-weighted debt from stored complexity, git
// churn, cycle membership, file degree and unreferenced exports. limit <= 0
// returns all files.
func (e *Engine) FileDebt(ctx context.Context, limit int) (*analysis.FileDebtReport, error) {
	var report analysis.FileDebtReport
	err := e.run(ctx, "file_debt", func(ctx context.Context, st *State) error {
		g := st.Graph
		report = analysis.FileDebtRanking(g, analysis.FileDebtInputs{
			Complexity: st.Complexity,
			Churn:      st.History.Churn(),
			Cycles:     analysis.FindCycles(g, e.cfg.Cycles.MinSize),
		}, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Partition computes a work partition manifest for agents. agents == 0
// uses partition.agents, or the cluster count (at least 2) when that is 0
// too. scope limits partitioning to files or directory prefixes.
func (e *Engine) Partition(ctx context.Context, agents int, scope []string) (*analysis.Manifest, error) {
	var manifest *analysis.Manifest
	err := e.run(ctx, "partition", func(ctx context.Context, st *State) error {
		g := st.Graph
		clusters := analysis.DetectClustersWith(g, e.cfg.ClusterOptions())
		if agents == 0 {
			agents = e.cfg.Partition.Agents
		}
		if agents == 0 {
			agents = max(2, len(analysis.ClusterGroups(clusters)))
		}

		var err error
		manifest, err = analysis.ComputePartitionManifest(g, agents, analysis.PartitionInputs{
			CoChange:   st.History.CoChange,
			Churn:      st.History.Churn(),
			Complexity: st.Complexity,
			PageRank:   analysis.PageRank(g, e.cfg.PageRankOptions()).Scores,
			Clusters:   clusters,
			Scope:      slices.Clone(scope),
			Weights:    e.cfg.Partition.Weights,
			Risk:       e.cfg.Partition.Risk,
		})
		return err
	})
	return manifest, err
}
