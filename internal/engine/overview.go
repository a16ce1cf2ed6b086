package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Benny93/archgraph/internal/storage"
)

// overviewTop is the number of central symbols listed in an overview.
const overviewTop = 5

// Overview is a one-screen summary of the architecture.
type Overview struct {
	Snapshot        storage.SnapshotInfo `json:"snapshot"`
	Symbols         int                  `json:"symbols"`
	Edges           int                  `json:"edges"`
	DroppedEdges    int                  `json:"dropped_edges"`
	Files           int                  `json:"files"`
	Cycles          int                  `json:"cycles"`
	NodesInCycles   int                  `json:"nodes_in_cycles"`
	PropagationCost float64              `json:"propagation_cost"`
	Layers          int                  `json:"layers"`
	Violations      int                  `json:"violations"`
	Clusters        int                  `json:"clusters"`
	Modularity      float64              `json:"modularity"`
	Converged       bool                 `json:"pagerank_converged"`
	TopSymbols      []RankedSymbol       `json:"top_symbols"`
}

// Overview runs cycles, layers, clusters and centrality concurrently on the
// shared graph and summarizes them. Betweenness is not computed; top
// symbols carry it only when the saved metrics cache covers the graph.
func (e *Engine) Overview(ctx context.Context) (*Overview, error) {
	var ov *Overview
	err := e.run(ctx, "overview", func(ctx context.Context, st *State) error {
		var (
			cycles     *CycleReport
			layers     *LayerReport
			clusters   *ClusterReport
			centrality *CentralityReport
		)

		e.report("Analyzing", 0.0)
		eg, gctx := errgroup.WithContext(ctx)
		eg.Go(func() (err error) {
			cycles, err = e.Cycles(gctx)
			return err
		})
		eg.Go(func() (err error) {
			layers, err = e.Layers(gctx)
			return err
		})
		eg.Go(func() (err error) {
			clusters, err = e.Clusters(gctx)
			return err
		})
		eg.Go(func() (err error) {
			centrality, err = e.Centrality(gctx, overviewTop, false)
			return err
		})
		if err := eg.Wait(); err != nil {
			return err
		}
		e.report("Analyzing", 1.0)

		g := st.Graph
		ov = &Overview{
			Snapshot:        st.Snapshot,
			Symbols:         g.NodeCount(),
			Edges:           g.EdgeCount(),
			DroppedEdges:    g.DroppedEdges(),
			Files:           len(g.Files()),
			Cycles:          len(cycles.Cycles),
			NodesInCycles:   cycles.NodesInCycles,
			PropagationCost: cycles.PropagationCost,
			Layers:          layers.LayerCount,
			Violations:      len(layers.Violations),
			Clusters:        len(clusters.Clusters),
			Modularity:      clusters.Modularity,
			Converged:       centrality.Converged,
			TopSymbols:      centrality.Top,
		}
		return nil
	})
	return ov, err
}
