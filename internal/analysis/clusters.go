package analysis

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/Benny93/archgraph/internal/graph"
)

// ClusterMap maps a node id to its cluster id.
type ClusterMap map[int64]int

// ClusterOptions configures DetectClustersWith.
type ClusterOptions struct {
	// Resolution scales the null-model term. Values above 1 favour smaller
	// communities.
	Resolution float64

	// MaxPasses bounds the local-moving sweeps per level.
	MaxPasses int
}

// DefaultClusterOptions returns standard Louvain settings.
func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{Resolution: 1.0, MaxPasses: 100}
}

// DetectClusters partitions the nodes of g into communities with
// DefaultClusterOptions.
func DetectClusters(g *graph.Graph) ClusterMap {
	return DetectClustersWith(g, DefaultClusterOptions())
}

// DetectClustersWith runs multi-level Louvain modularity optimization on the
// undirected projection of g. Nodes are visited in ascending id order and
// ties go to the lowest community, so the result is deterministic. Isolated
// nodes form their own clusters. Cluster ids are numbered from 0 in order of
// each cluster's smallest member id.
func DetectClustersWith(g *graph.Graph, opts ClusterOptions) ClusterMap {
	if opts.Resolution <= 0 {
		opts.Resolution = 1.0
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = 100
	}

	n := g.NodeCount()
	clusters := make(ClusterMap, n)
	if n == 0 {
		return clusters
	}

	assignment := louvain(undirectedProjection(g), opts)
	for i, c := range renumber(assignment) {
		clusters[g.IDAt(i)] = c
	}
	return clusters
}

type wedge struct {
	to     int
	weight float64
}

// wgraph is an undirected weighted graph. Every edge appears in both
// endpoint lists; self-loop weight is kept apart.
type wgraph struct {
	adj    [][]wedge
	self   []float64
	degree []float64
	total  float64 // sum of degrees, 2m
}

// undirectedProjection collapses each connected pair to one edge of weight
// 1, whatever the number of edge kinds or directions joining it.
func undirectedProjection(g *graph.Graph) *wgraph {
	n := g.NodeCount()
	w := &wgraph{
		adj:    make([][]wedge, n),
		self:   make([]float64, n),
		degree: make([]float64, n),
	}
	for u := 0; u < n; u++ {
		for _, v := range undirectedNeighbours(g, u) {
			w.adj[u] = append(w.adj[u], wedge{to: v, weight: 1})
			w.degree[u]++
		}
		w.total += w.degree[u]
	}
	return w
}

// undirectedNeighbours merges successors and predecessors of u, ascending,
// without u itself.
func undirectedNeighbours(g *graph.Graph, u int) []int {
	succ := g.SuccessorIndexes(u)
	pred := g.PredecessorIndexes(u)
	merged := make([]int, 0, len(succ)+len(pred))
	i, j := 0, 0
	for i < len(succ) || j < len(pred) {
		var v int
		switch {
		case j >= len(pred) || (i < len(succ) && succ[i] < pred[j]):
			v = succ[i]
			i++
		case i >= len(succ) || pred[j] < succ[i]:
			v = pred[j]
			j++
		default:
			v = succ[i]
			i++
			j++
		}
		if v != u {
			merged = append(merged, v)
		}
	}
	return merged
}

// louvain returns a community index per node of w.
func louvain(w *wgraph, opts ClusterOptions) []int {
	n := len(w.adj)
	assignment := make([]int, n)
	for i := range assignment {
		assignment[i] = i
	}
	if w.total == 0 {
		return assignment
	}

	level := w
	for {
		communities, moved := localMoving(level, opts)
		if !moved {
			break
		}
		communities = renumber(communities)
		for i, c := range assignment {
			assignment[i] = communities[c]
		}
		level = aggregate(level, communities)
		if len(level.adj) == 1 {
			break
		}
	}
	return assignment
}

// localMoving performs the first Louvain phase on w and reports whether any
// node changed community.
func localMoving(w *wgraph, opts ClusterOptions) ([]int, bool) {
	n := len(w.adj)
	community := make([]int, n)
	sigmaTot := make([]float64, n)
	for i := range community {
		community[i] = i
		sigmaTot[i] = w.degree[i]
	}

	// Scratch space for weights towards neighbouring communities.
	linkWeight := make([]float64, n)
	touched := make([]int, 0, 16)

	anyMove := false
	for pass := 0; pass < opts.MaxPasses; pass++ {
		moved := false
		for node := 0; node < n; node++ {
			current := community[node]
			ki := w.degree[node]

			touched = touched[:0]
			for _, e := range w.adj[node] {
				c := community[e.to]
				if linkWeight[c] == 0 {
					touched = append(touched, c)
				}
				linkWeight[c] += e.weight
			}

			sigmaTot[current] -= ki
			bestComm := current
			bestGain := modularityGain(linkWeight[current], ki, sigmaTot[current], w.total, opts.Resolution)
			sort.Ints(touched)
			for _, c := range touched {
				if c == current {
					continue
				}
				gain := modularityGain(linkWeight[c], ki, sigmaTot[c], w.total, opts.Resolution)
				if gain > bestGain+1e-12 || (gain > bestGain-1e-12 && c < bestComm && gain > 0) {
					bestGain = gain
					bestComm = c
				}
			}
			sigmaTot[bestComm] += ki
			if bestComm != current {
				community[node] = bestComm
				moved = true
				anyMove = true
			}

			for _, c := range touched {
				linkWeight[c] = 0
			}
		}
		if !moved {
			break
		}
	}
	return community, anyMove
}

// modularityGain is the modularity change of inserting a node with degree ki
// into a community it shares kiIn weight with, up to the constant factor 1/m.
func modularityGain(kiIn, ki, sigmaTot, total, resolution float64) float64 {
	return kiIn - resolution*sigmaTot*ki/total
}

// aggregate builds the community graph for the next Louvain level.
func aggregate(w *wgraph, community []int) *wgraph {
	k := 0
	for _, c := range community {
		if c+1 > k {
			k = c + 1
		}
	}

	next := &wgraph{
		adj:    make([][]wedge, k),
		self:   make([]float64, k),
		degree: make([]float64, k),
		total:  w.total,
	}

	weights := make([]map[int]float64, k)
	for u, edges := range w.adj {
		cu := community[u]
		next.self[cu] += w.self[u]
		next.degree[cu] += w.degree[u]
		for _, e := range edges {
			cv := community[e.to]
			if cu == cv {
				// Both directions are listed, so each internal edge lands twice.
				next.self[cu] += e.weight / 2
				continue
			}
			if weights[cu] == nil {
				weights[cu] = make(map[int]float64)
			}
			weights[cu][cv] += e.weight
		}
	}

	for c, m := range weights {
		targets := make([]int, 0, len(m))
		for t := range m {
			targets = append(targets, t)
		}
		sort.Ints(targets)
		for _, t := range targets {
			next.adj[c] = append(next.adj[c], wedge{to: t, weight: m[t]})
		}
	}
	return next
}

// renumber maps community labels to 0..k-1 in order of first appearance.
func renumber(labels []int) []int {
	mapping := make(map[int]int)
	out := make([]int, len(labels))
	for i, c := range labels {
		id, ok := mapping[c]
		if !ok {
			id = len(mapping)
			mapping[c] = id
		}
		out[i] = id
	}
	return out
}

// ClusterGroups returns the members of each cluster, indexed by cluster id,
// with members sorted ascending.
func ClusterGroups(clusters ClusterMap) [][]int64 {
	maxID := -1
	for _, c := range clusters {
		if c > maxID {
			maxID = c
		}
	}
	groups := make([][]int64, maxID+1)
	for id, c := range clusters {
		groups[c] = append(groups[c], id)
	}
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	}
	return groups
}

// ClusterQuality summarizes how well a clustering separates the graph.
type ClusterQuality struct {
	// Modularity is Newman's Q on the undirected projection.
	Modularity float64 `json:"modularity"`

	// Conductance is cut / min(vol(S), vol(rest)) per cluster. Lower is tighter.
	Conductance map[int]float64 `json:"per_cluster"`

	// MeanConductance averages Conductance over all clusters.
	MeanConductance float64 `json:"mean_conductance"`
}

// Quality computes modularity and per-cluster conductance.
func Quality(g *graph.Graph, clusters ClusterMap) ClusterQuality {
	q := ClusterQuality{Conductance: make(map[int]float64)}
	if len(clusters) == 0 || g.NodeCount() == 0 {
		return q
	}

	w := undirectedProjection(g)
	if w.total == 0 {
		for _, c := range clusters {
			q.Conductance[c] = 0
		}
		return q
	}

	community := make([]int, g.NodeCount())
	for i := range community {
		community[i] = clusters[g.IDAt(i)]
	}

	internal := make(map[int]float64)
	volume := make(map[int]float64)
	cut := make(map[int]float64)
	for u, edges := range w.adj {
		cu := community[u]
		volume[cu] += w.degree[u]
		for _, e := range edges {
			if community[e.to] == cu {
				internal[cu] += e.weight
			} else {
				cut[cu] += e.weight
			}
		}
	}

	m := w.total / 2
	for c, vol := range volume {
		// internal counts each edge from both ends.
		q.Modularity += internal[c]/2/m - (vol/w.total)*(vol/w.total)
	}
	q.Modularity = round4(q.Modularity)

	sizes := make(map[int]int)
	for _, c := range clusters {
		sizes[c]++
	}
	var sum float64
	for c, size := range sizes {
		phi := 0.0
		minVol := volume[c]
		if rest := w.total - volume[c]; rest < minVol {
			minVol = rest
		}
		if size >= 2 && minVol > 0 {
			phi = round4(cut[c] / minVol)
		}
		q.Conductance[c] = phi
		sum += phi
	}
	q.MeanConductance = round4(sum / float64(len(sizes)))
	return q
}

var anchorKinds = map[graph.SymbolKind]bool{
	graph.KindClass:     true,
	graph.KindStruct:    true,
	graph.KindInterface: true,
	graph.KindEnum:      true,
	graph.KindTrait:     true,
	graph.KindModule:    true,
}

// LabelClusters names each cluster after its majority directory and its most
// important member, preferring type-like symbols ranked by PageRank. Very
// large clusters (over 100 members or 40% of the graph) spanning several
// directories are labelled with their directory breakdown instead.
func LabelClusters(g *graph.Graph, clusters ClusterMap, pagerank map[int64]float64) map[int]string {
	labels := make(map[int]string)
	total := len(clusters)

	for cid, members := range ClusterGroups(clusters) {
		if len(members) == 0 {
			continue
		}

		dirs := make(map[string]int)
		for _, id := range members {
			if n, ok := g.Node(id); ok {
				dirs[path.Dir(n.FilePath)]++
			}
		}
		majority := topKeys(dirs, 1)
		shortDir := ""
		if len(majority) > 0 {
			shortDir = shortDirName(majority[0])
		}

		mega := len(members) > 100 || float64(len(members)) > float64(total)*0.4
		if mega && len(dirs) > 1 {
			parts := make([]string, 0, 3)
			for _, d := range topKeys(dirs, 3) {
				pct := float64(dirs[d]) * 100 / float64(len(members))
				parts = append(parts, fmt.Sprintf("%s %.0f%%", shortDirName(d), pct))
			}
			labels[cid] = strings.Join(parts, " + ")
			continue
		}

		best := representative(g, members, pagerank, true)
		if best == "" {
			best = representative(g, members, pagerank, false)
		}

		switch {
		case best != "" && shortDir != "":
			labels[cid] = shortDir + "/" + best
		case best != "":
			labels[cid] = best
		case shortDir != "":
			labels[cid] = shortDir
		default:
			labels[cid] = fmt.Sprintf("cluster-%d", cid)
		}
	}
	return labels
}

// representative picks the highest-PageRank member name; members arrive in
// id order so the first of equal ranks wins.
func representative(g *graph.Graph, members []int64, pagerank map[int64]float64, anchorsOnly bool) string {
	best := ""
	bestRank := -1.0
	for _, id := range members {
		n, ok := g.Node(id)
		if !ok || (anchorsOnly && !anchorKinds[n.Kind]) {
			continue
		}
		if r := pagerank[id]; r > bestRank {
			bestRank = r
			best = n.Name
		}
	}
	return best
}

func shortDirName(dir string) string {
	dir = strings.TrimRight(dir, "/")
	if dir == "" || dir == "." {
		return "."
	}
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		return dir[i+1:]
	}
	return dir
}

// DirectoryMismatch is a cluster whose members span several directories.
type DirectoryMismatch struct {
	ClusterID     int      `json:"cluster_id"`
	Label         string   `json:"cluster_label"`
	Directories   []string `json:"directories"`
	MismatchCount int      `json:"mismatch_count"`
}

// CompareWithDirectories lists clusters spread over more than one directory,
// counting the members outside the majority directory. Sorted by mismatch
// count descending, then cluster id.
func CompareWithDirectories(g *graph.Graph, clusters ClusterMap, labels map[int]string) []DirectoryMismatch {
	result := make([]DirectoryMismatch, 0)
	for cid, members := range ClusterGroups(clusters) {
		dirs := make(map[string]int)
		for _, id := range members {
			if n, ok := g.Node(id); ok {
				dirs[path.Dir(n.FilePath)]++
			}
		}
		if len(dirs) < 2 {
			continue
		}
		unique := make([]string, 0, len(dirs))
		for d := range dirs {
			unique = append(unique, d)
		}
		sort.Strings(unique)
		majority := dirs[topKeys(dirs, 1)[0]]
		result = append(result, DirectoryMismatch{
			ClusterID:     cid,
			Label:         labels[cid],
			Directories:   unique,
			MismatchCount: len(members) - majority,
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].MismatchCount > result[j].MismatchCount
	})
	return result
}
