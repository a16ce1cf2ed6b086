package analysis

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/Benny93/archgraph/internal/graph"
)

// ErrInvalidAgentCount is returned when fewer than one agent is requested.
var ErrInvalidAgentCount = errors.New("agent count must be at least 1")

// ConflictRisk labels how likely a partition collides with concurrent work.
type ConflictRisk string

const (
	RiskLow    ConflictRisk = "LOW"
	RiskMedium ConflictRisk = "MEDIUM"
	RiskHigh   ConflictRisk = "HIGH"
)

// DifficultyLabel buckets a difficulty score.
type DifficultyLabel string

const (
	DifficultyEasy     DifficultyLabel = "Easy"
	DifficultyMedium   DifficultyLabel = "Medium"
	DifficultyHard     DifficultyLabel = "Hard"
	DifficultyCritical DifficultyLabel = "Critical"
)

// DifficultyWeights weighs the normalized difficulty factors.
type DifficultyWeights struct {
	Complexity float64 `yaml:"complexity" json:"complexity"`
	Coupling   float64 `yaml:"coupling" json:"coupling"`
	Churn      float64 `yaml:"churn" json:"churn"`
	Size       float64 `yaml:"size" json:"size"`
}

// DefaultDifficultyWeights returns 0.30 complexity, 0.25 coupling,
// 0.25 churn and 0.20 size.
func DefaultDifficultyWeights() DifficultyWeights {
	return DifficultyWeights{Complexity: 0.30, Coupling: 0.25, Churn: 0.25, Size: 0.20}
}

// RiskThresholds bound the conflict risk labels. A partition is LOW when
// cross edges <= LowCross and co-change <= LowCochange, MEDIUM when cross
// edges <= MediumCross or co-change <= MediumCochange, HIGH otherwise.
type RiskThresholds struct {
	LowCross       int `yaml:"low_cross" json:"low_cross"`
	LowCochange    int `yaml:"low_cochange" json:"low_cochange"`
	MediumCross    int `yaml:"medium_cross" json:"medium_cross"`
	MediumCochange int `yaml:"medium_cochange" json:"medium_cochange"`
}

// DefaultRiskThresholds returns 3/2 for LOW and 10/5 for MEDIUM.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{LowCross: 3, LowCochange: 2, MediumCross: 10, MediumCochange: 5}
}

// CoChange is the number of commits that touched both files.
type CoChange struct {
	FileA string `json:"file_a"`
	FileB string `json:"file_b"`
	Count int    `json:"cochange_count"`
}

// PartitionInputs carries the optional data a manifest is scored with.
// Missing data scores as zero.
type PartitionInputs struct {
	// CoChange lists file pairs that change together.
	CoChange []CoChange

	// Churn is the changed-line count per file path.
	Churn map[string]int

	// Complexity is the complexity per node id.
	Complexity map[int64]float64

	// PageRank ranks key symbols. Computed when nil.
	PageRank map[int64]float64

	// Clusters seeds the partitioning. Computed when it does not cover g.
	Clusters ClusterMap

	// Scope restricts partitioning to these files or directory prefixes.
	Scope []string

	Weights DifficultyWeights
	Risk    RiskThresholds
}

// KeySymbol is a high-ranked member of a partition.
type KeySymbol struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Kind     graph.SymbolKind `json:"kind"`
	PageRank float64          `json:"pagerank"`
	File     string           `json:"file"`
}

// Partition is one agent work zone.
type Partition struct {
	ID                  int             `json:"id"`
	Label               string          `json:"label"`
	Role                string          `json:"role"`
	Agent               string          `json:"agent"`
	Nodes               []int64         `json:"nodes"`
	Files               []string        `json:"files"`
	WriteFiles          []string        `json:"write_files"`
	ReadOnlyFiles       []string        `json:"read_only_files"`
	Contracts           []string        `json:"contracts"`
	SymbolCount         int             `json:"symbol_count"`
	KeySymbols          []KeySymbol     `json:"key_symbols"`
	Complexity          float64         `json:"complexity"`
	Churn               int             `json:"churn"`
	TestCoverage        float64         `json:"test_coverage"`
	CrossPartitionEdges int             `json:"cross_partition_edges"`
	CochangeScore       int             `json:"cochange_score"`
	ConflictRisk        ConflictRisk    `json:"conflict_risk"`
	DifficultyScore     float64         `json:"difficulty_score"`
	DifficultyLabel     DifficultyLabel `json:"difficulty_label"`
}

// Dependency aggregates the edges from one partition into another.
type Dependency struct {
	From        int      `json:"from"`
	To          int      `json:"to"`
	EdgeCount   int      `json:"edge_count"`
	SampleEdges []string `json:"sample_edges"`
	SharedFiles []string `json:"shared_files"`
}

// Hotspot is a file whose symbols are split over several partitions.
type Hotspot struct {
	File           string `json:"file"`
	PartitionCount int    `json:"partition_count"`
	Partitions     []int  `json:"partitions"`
}

// CochangeHotspot is a file pair that changes together across partitions.
type CochangeHotspot struct {
	FileA      string `json:"file_a"`
	FileB      string `json:"file_b"`
	Count      int    `json:"cochange_count"`
	PartitionA int    `json:"partition_a"`
	PartitionB int    `json:"partition_b"`
}

// SharedInterface is a symbol with many cross-partition edges.
type SharedInterface struct {
	ID            int64  `json:"id"`
	Symbol        string `json:"symbol"`
	BoundaryEdges int    `json:"boundary_edges"`
}

// Manifest is the full multi-agent partition plan.
type Manifest struct {
	Verdict                    string            `json:"verdict"`
	NAgents                    int               `json:"n_agents"`
	Partitions                 []Partition       `json:"partitions"`
	Dependencies               []Dependency      `json:"dependencies"`
	ConflictHotspots           []Hotspot         `json:"conflict_hotspots"`
	CochangeHotspots           []CochangeHotspot `json:"cochange_hotspots"`
	SharedInterfaces           []SharedInterface `json:"shared_interfaces"`
	OverallConflictProbability float64           `json:"overall_conflict_probability"`
	MergeOrder                 []int             `json:"merge_order"`

	// ScopeUnmatched is set when no symbol matched the requested scope and
	// the whole graph was partitioned instead.
	ScopeUnmatched bool `json:"scope_unmatched,omitempty"`
}

const (
	maxKeySymbols       = 5
	maxContracts        = 10
	maxSampleEdges      = 5
	maxHotspots         = 20
	maxSharedInterfaces = 10
)

// ComputePartitionManifest splits g into nAgents work zones seeded by its
// clusters and scores each zone for conflict risk and difficulty.
//
// The only error is ErrInvalidAgentCount. An empty graph yields a manifest
// without partitions and a conflict probability of 0. A scope matching no
// symbol falls back to the whole graph and sets ScopeUnmatched. When the
// graph has too few nodes the manifest holds fewer partitions than agents.
func ComputePartitionManifest(g *graph.Graph, nAgents int, in PartitionInputs) (*Manifest, error) {
	if nAgents < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAgentCount, nAgents)
	}
	if in.Weights == (DifficultyWeights{}) {
		in.Weights = DefaultDifficultyWeights()
	}
	if in.Risk == (RiskThresholds{}) {
		in.Risk = DefaultRiskThresholds()
	}

	scopeUnmatched := false
	if len(in.Scope) > 0 {
		scoped := g.Subgraph(func(n graph.Node) bool { return inScope(n.FilePath, in.Scope) })
		if scoped.NodeCount() > 0 {
			g = scoped
		} else {
			scopeUnmatched = g.NodeCount() > 0
		}
	}

	m := &Manifest{
		NAgents:          nAgents,
		Partitions:       []Partition{},
		Dependencies:     []Dependency{},
		ConflictHotspots: []Hotspot{},
		CochangeHotspots: []CochangeHotspot{},
		SharedInterfaces: []SharedInterface{},
		MergeOrder:       []int{},
		ScopeUnmatched:   scopeUnmatched,
	}
	if g.NodeCount() == 0 {
		m.Verdict = verdict(0, nAgents, 0)
		return m, nil
	}

	clusters := in.Clusters
	if !coversGraph(g, clusters) {
		clusters = DetectClusters(g)
	}
	groups := AdjustClusterCount(g, ClusterGroups(clusters), nAgents)

	if in.PageRank == nil {
		in.PageRank = PageRank(g, DefaultPageRankOptions()).Scores
	}

	part := partitionIndex(g, groups)
	files := make([]map[string]bool, len(groups))
	for p, members := range groups {
		files[p] = make(map[string]bool)
		for _, id := range members {
			n, _ := g.Node(id)
			files[p][n.FilePath] = true
		}
	}
	owners := fileOwners(g, groups)

	m.Partitions = make([]Partition, len(groups))
	for p, members := range groups {
		m.Partitions[p] = describePartition(g, p, members, part, files, owners, in)
	}

	AssignAgents(m.Partitions, nAgents)
	ScoreDifficulty(m.Partitions, in.Weights)

	m.Dependencies = partitionDependencies(g, part, files)
	m.ConflictHotspots = splitFileHotspots(g, part)
	m.CochangeHotspots = cochangeHotspots(in.CoChange, owners)
	m.SharedInterfaces = sharedInterfaces(g, part)
	m.OverallConflictProbability = round4(ConflictProbability(g, groups))
	m.MergeOrder = MergeOrder(g, groups, in.Complexity)
	m.Verdict = verdict(len(m.Partitions), nAgents, m.OverallConflictProbability)
	return m, nil
}

func verdict(partitions, agents int, probability float64) string {
	return fmt.Sprintf("%d partitions for %d agents, conflict probability %d%%",
		partitions, agents, int(probability*100))
}

func inScope(file string, scope []string) bool {
	for _, s := range scope {
		s = strings.TrimSuffix(s, "/")
		if file == s || strings.HasPrefix(file, s+"/") {
			return true
		}
	}
	return false
}

func coversGraph(g *graph.Graph, clusters ClusterMap) bool {
	if len(clusters) != g.NodeCount() {
		return false
	}
	for _, id := range g.IDs() {
		if _, ok := clusters[id]; !ok {
			return false
		}
	}
	return true
}

// partitionIndex maps every dense node index to its group.
func partitionIndex(g *graph.Graph, groups [][]int64) []int {
	part := make([]int, g.NodeCount())
	for p, members := range groups {
		for _, id := range members {
			if i, ok := g.IndexOf(id); ok {
				part[i] = p
			}
		}
	}
	return part
}

// AdjustClusterCount rebalances groups towards exactly n partitions.
//
// While there are too many groups, the smallest joins the group it shares
// the most edges with, falling back to the next smallest group when it is
// unconnected. While there are too few, the largest group of two or more
// nodes is split: its highest-betweenness node is removed and, when that
// disconnects the rest, the largest piece keeps the cut node and the other
// pieces form the new group; otherwise the group is halved along a
// breadth-first order. Single-node groups cannot split, so fewer than n
// groups may remain. Empty groups are discarded. The result is sorted by
// size descending, then smallest member id.
func AdjustClusterCount(g *graph.Graph, groups [][]int64, n int) [][]int64 {
	result := make([][]int64, 0, len(groups))
	for _, members := range groups {
		if len(members) > 0 {
			sorted := append([]int64(nil), members...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			result = append(result, sorted)
		}
	}
	sortGroups(result)
	if n < 1 {
		n = 1
	}

	for len(result) > n {
		smallest := result[len(result)-1]
		rest := result[:len(result)-1]
		target := mostConnectedGroup(g, smallest, rest)
		merged := append(append([]int64(nil), rest[target]...), smallest...)
		sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
		rest[target] = merged
		result = rest
		sortGroups(result)
	}

	for len(result) < n {
		idx := -1
		for i, members := range result {
			if len(members) >= 2 {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		first, second := splitGroup(g, result[idx])
		result[idx] = first
		result = append(result, second)
		sortGroups(result)
	}

	return result
}

func sortGroups(groups [][]int64) {
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i]) != len(groups[j]) {
			return len(groups[i]) > len(groups[j])
		}
		return groups[i][0] < groups[j][0]
	})
}

// mostConnectedGroup picks the merge partner for members among candidates:
// most shared edges, then smaller size, then the later (smaller) group.
// Unconnected members go to the last candidate.
func mostConnectedGroup(g *graph.Graph, members []int64, candidates [][]int64) int {
	owner := make(map[int64]int)
	for c, group := range candidates {
		for _, id := range group {
			owner[id] = c
		}
	}

	links := make([]int, len(candidates))
	for _, id := range members {
		for _, w := range g.Successors(id) {
			if c, ok := owner[w]; ok {
				links[c]++
			}
		}
		for _, w := range g.Predecessors(id) {
			if c, ok := owner[w]; ok {
				links[c]++
			}
		}
	}

	best := len(candidates) - 1
	for c := len(candidates) - 1; c >= 0; c-- {
		if links[c] > links[best] || (links[c] == links[best] && len(candidates[c]) < len(candidates[best])) {
			best = c
		}
	}
	return best
}

// splitGroup divides a group of at least two nodes in two non-empty parts.
func splitGroup(g *graph.Graph, members []int64) ([]int64, []int64) {
	local := make(map[int]int, len(members))
	nodes := make([]int, 0, len(members))
	for _, id := range members {
		if i, ok := g.IndexOf(id); ok {
			local[i] = len(nodes)
			nodes = append(nodes, i)
		}
	}

	adj := make(adjacency, len(nodes))
	undirected := make([][]int, len(nodes))
	for k, i := range nodes {
		for _, w := range g.SuccessorIndexes(i) {
			if lw, ok := local[w]; ok && lw != k {
				adj[k] = append(adj[k], lw)
			}
		}
		for _, w := range undirectedNeighbours(g, i) {
			if lw, ok := local[w]; ok {
				undirected[k] = append(undirected[k], lw)
			}
		}
	}

	var pivots []int
	if len(nodes) > DefaultBetweennessOptions().ExactLimit {
		pivots = evenlySpaced(len(nodes), 200)
	}
	bw, _ := brandes(adj, pivots, false)
	cut := 0
	for k := range bw {
		if bw[k] > bw[cut] {
			cut = k
		}
	}

	if bw[cut] > 0 {
		pieces := componentsWithout(undirected, cut)
		if len(pieces) >= 2 {
			sort.SliceStable(pieces, func(i, j int) bool { return len(pieces[i]) > len(pieces[j]) })
			first := append(pieces[0], cut)
			var second []int
			for _, p := range pieces[1:] {
				second = append(second, p...)
			}
			return toSortedIDs(g, nodes, first), toSortedIDs(g, nodes, second)
		}
	}

	order := bfsOrder(undirected)
	half := len(order) / 2
	return toSortedIDs(g, nodes, order[:half]), toSortedIDs(g, nodes, order[half:])
}

// componentsWithout lists connected components after removing skip. Each
// component starts from its lowest local index.
func componentsWithout(adj [][]int, skip int) [][]int {
	seen := make([]bool, len(adj))
	seen[skip] = true
	var pieces [][]int
	for start := range adj {
		if seen[start] {
			continue
		}
		seen[start] = true
		piece := []int{start}
		for head := 0; head < len(piece); head++ {
			for _, w := range adj[piece[head]] {
				if !seen[w] {
					seen[w] = true
					piece = append(piece, w)
				}
			}
		}
		pieces = append(pieces, piece)
	}
	return pieces
}

// bfsOrder visits every node breadth-first, restarting from the lowest
// unvisited index, so neighbours stay close in the order.
func bfsOrder(adj [][]int) []int {
	seen := make([]bool, len(adj))
	order := make([]int, 0, len(adj))
	for start := range adj {
		if seen[start] {
			continue
		}
		seen[start] = true
		head := len(order)
		order = append(order, start)
		for ; head < len(order); head++ {
			for _, w := range adj[order[head]] {
				if !seen[w] {
					seen[w] = true
					order = append(order, w)
				}
			}
		}
	}
	return order
}

func toSortedIDs(g *graph.Graph, nodes []int, local []int) []int64 {
	ids := make([]int64, len(local))
	for k, l := range local {
		ids[k] = g.IDAt(nodes[l])
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// fileOwners gives each file to the group owning most of its symbols; ties
// go to the lower group.
func fileOwners(g *graph.Graph, groups [][]int64) map[string]int {
	counts := make(map[string][]int)
	for p, members := range groups {
		for _, id := range members {
			n, _ := g.Node(id)
			if counts[n.FilePath] == nil {
				counts[n.FilePath] = make([]int, len(groups))
			}
			counts[n.FilePath][p]++
		}
	}
	owners := make(map[string]int, len(counts))
	for file, perGroup := range counts {
		best := 0
		for p, c := range perGroup {
			if c > perGroup[best] {
				best = p
			}
		}
		owners[file] = best
	}
	return owners
}

func describePartition(
	g *graph.Graph,
	p int,
	members []int64,
	part []int,
	files []map[string]bool,
	owners map[string]int,
	in PartitionInputs,
) Partition {
	fileSet := files[p]
	fileList := sortedKeys(fileSet)

	var write []string
	for _, f := range fileList {
		if owners[f] == p {
			write = append(write, f)
		}
	}
	writeSet := make(map[string]bool, len(write))
	for _, f := range write {
		writeSet[f] = true
	}

	readOnly := make(map[string]bool)
	var contracts []string
	seenContract := make(map[string]bool)
	cross := 0
	complexity := 0.0
	for _, id := range members {
		i, _ := g.IndexOf(id)
		complexity += in.Complexity[id]
		neighbours := [][]int{g.SuccessorIndexes(i), g.PredecessorIndexes(i)}
		for _, list := range neighbours {
			for _, w := range list {
				if part[w] == p {
					continue
				}
				cross++
				other := g.NodeAt(w)
				if !writeSet[other.FilePath] {
					readOnly[other.FilePath] = true
				}
				name := other.QualifiedName
				if name == "" {
					name = other.Name
				}
				contract := fmt.Sprintf("do NOT modify %s signature", name)
				if !seenContract[contract] && len(contracts) < maxContracts {
					seenContract[contract] = true
					contracts = append(contracts, contract)
				}
			}
		}
	}

	churn := 0
	for _, f := range fileList {
		churn += in.Churn[f]
	}
	cochange := CochangeScore(fileSet, in.CoChange)

	return Partition{
		ID:                  p + 1,
		Label:               partitionLabel(fileList, p),
		Role:                SuggestRole(fileList),
		Nodes:               members,
		Files:               fileList,
		WriteFiles:          nonNil(write),
		ReadOnlyFiles:       sortedKeys(readOnly),
		Contracts:           nonNil(contracts),
		SymbolCount:         len(members),
		KeySymbols:          keySymbols(g, members, in.PageRank),
		Complexity:          round1(complexity),
		Churn:               churn,
		TestCoverage:        testCoverage(g, members),
		CrossPartitionEdges: cross,
		CochangeScore:       cochange,
		ConflictRisk:        ClassifyConflictRisk(cross, cochange, in.Risk),
	}
}

// CochangeScore sums the co-change counts of pairs with exactly one file
// inside files.
func CochangeScore(files map[string]bool, pairs []CoChange) int {
	score := 0
	for _, c := range pairs {
		if files[c.FileA] != files[c.FileB] {
			score += c.Count
		}
	}
	return score
}

// ClassifyConflictRisk labels a partition from its cross edges and co-change
// score.
func ClassifyConflictRisk(cross, cochange int, t RiskThresholds) ConflictRisk {
	switch {
	case cross <= t.LowCross && cochange <= t.LowCochange:
		return RiskLow
	case cross <= t.MediumCross || cochange <= t.MediumCochange:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ScoreDifficulty sets DifficultyScore and DifficultyLabel on every
// partition. Each factor is scaled to 0..100 against the largest value in
// the set; a largest value of 0 counts as 1.
func ScoreDifficulty(parts []Partition, w DifficultyWeights) {
	if len(parts) == 0 {
		return
	}
	maxComplexity, maxCross, maxChurn, maxSize := 0.0, 0, 0, 0
	for _, p := range parts {
		maxComplexity = max(maxComplexity, p.Complexity)
		maxCross = max(maxCross, p.CrossPartitionEdges)
		maxChurn = max(maxChurn, p.Churn)
		maxSize = max(maxSize, p.SymbolCount)
	}
	if maxComplexity == 0 {
		maxComplexity = 1
	}
	maxCross = max(maxCross, 1)
	maxChurn = max(maxChurn, 1)
	maxSize = max(maxSize, 1)

	for i := range parts {
		p := &parts[i]
		score := w.Complexity*(p.Complexity/maxComplexity)*100 +
			w.Coupling*float64(p.CrossPartitionEdges)/float64(maxCross)*100 +
			w.Churn*float64(p.Churn)/float64(maxChurn)*100 +
			w.Size*float64(p.SymbolCount)/float64(maxSize)*100
		p.DifficultyScore = round1(score)
		p.DifficultyLabel = DifficultyFor(score)
	}
}

// DifficultyFor maps a 0..100 score to its label.
func DifficultyFor(score float64) DifficultyLabel {
	switch {
	case score >= 75:
		return DifficultyCritical
	case score >= 50:
		return DifficultyHard
	case score >= 25:
		return DifficultyMedium
	default:
		return DifficultyEasy
	}
}

// AssignAgents hands partitions to Worker-1..Worker-n, heaviest complexity
// first, each to the currently least loaded worker.
func AssignAgents(parts []Partition, nAgents int) {
	if nAgents < 1 || len(parts) == 0 {
		return
	}
	order := make([]int, len(parts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return parts[order[a]].Complexity > parts[order[b]].Complexity
	})

	loads := make([]float64, nAgents)
	for _, pi := range order {
		agent := 0
		for a := 1; a < nAgents; a++ {
			if loads[a] < loads[agent] {
				agent = a
			}
		}
		parts[pi].Agent = fmt.Sprintf("Worker-%d", agent+1)
		loads[agent] += parts[pi].Complexity
	}
}

// ConflictProbability is the share of distinct edges whose endpoints lie in
// different partitions, among edges with both endpoints partitioned. It is 0
// for an edgeless graph.
func ConflictProbability(g *graph.Graph, parts [][]int64) float64 {
	owner := make(map[int64]int)
	for p, members := range parts {
		for _, id := range members {
			owner[id] = p
		}
	}

	cross, total := 0, 0
	for u := 0; u < g.NodeCount(); u++ {
		pu, ok := owner[g.IDAt(u)]
		if !ok {
			continue
		}
		for _, v := range g.SuccessorIndexes(u) {
			pv, ok := owner[g.IDAt(v)]
			if !ok {
				continue
			}
			total++
			if pu != pv {
				cross++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(cross) / float64(total)
}

// MergeOrder returns 1-based partition ids in a topological order of the
// partition dependency graph, where A precedes B when A has edges into B.
// Mutually dependent partitions are collapsed and emitted by ascending total
// complexity, then id. Among ready groups the one with the lowest such key
// goes first.
func MergeOrder(g *graph.Graph, parts [][]int64, complexity map[int64]float64) []int {
	k := len(parts)
	order := make([]int, 0, k)
	if k == 0 {
		return order
	}

	owner := make(map[int64]int)
	weight := make([]float64, k)
	for p, members := range parts {
		for _, id := range members {
			owner[id] = p
			weight[p] += complexity[id]
		}
	}

	// Partition-level graph, reusing the node graph machinery.
	symbols := make([]graph.Symbol, k)
	for p := range symbols {
		symbols[p] = graph.Symbol{ID: int64(p)}
	}
	var edges []graph.EdgeRow
	for e := range g.Edges() {
		pu, ok1 := owner[e.Source]
		pv, ok2 := owner[e.Target]
		if ok1 && ok2 && pu != pv {
			edges = append(edges, graph.EdgeRow{SourceID: int64(pu), TargetID: int64(pv)})
		}
	}
	pg := graph.Build(symbols, edges)
	comp, count := components(pg)

	less := func(a, b int) bool {
		if weight[a] != weight[b] {
			return weight[a] < weight[b]
		}
		return a < b
	}

	members := make([][]int, count)
	for p, c := range comp {
		members[c] = append(members[c], p)
	}
	key := make([]int, count)
	for c := range members {
		sort.Slice(members[c], func(i, j int) bool { return less(members[c][i], members[c][j]) })
		key[c] = members[c][0]
	}

	// Kahn over components; edges run from dependent to dependency.
	indeg := make([]int, count)
	succ := make([]map[int]bool, count)
	for p := 0; p < k; p++ {
		for _, q := range pg.SuccessorIndexes(p) {
			cp, cq := comp[p], comp[q]
			if cp == cq {
				continue
			}
			if succ[cp] == nil {
				succ[cp] = make(map[int]bool)
			}
			if !succ[cp][cq] {
				succ[cp][cq] = true
				indeg[cq]++
			}
		}
	}

	done := make([]bool, count)
	for emitted := 0; emitted < count; emitted++ {
		next := -1
		for c := 0; c < count; c++ {
			if done[c] || indeg[c] > 0 {
				continue
			}
			if next < 0 || less(key[c], key[next]) {
				next = c
			}
		}
		done[next] = true
		for _, p := range members[next] {
			order = append(order, p+1)
		}
		for q := range succ[next] {
			indeg[q]--
		}
	}
	return order
}

func partitionDependencies(g *graph.Graph, part []int, files []map[string]bool) []Dependency {
	type pair struct{ from, to int }
	deps := make(map[pair]*Dependency)
	for u := 0; u < g.NodeCount(); u++ {
		for _, v := range g.SuccessorIndexes(u) {
			pu, pv := part[u], part[v]
			if pu == pv {
				continue
			}
			key := pair{pu, pv}
			d, ok := deps[key]
			if !ok {
				d = &Dependency{From: pu + 1, To: pv + 1, SampleEdges: []string{}}
				deps[key] = d
			}
			d.EdgeCount++
			if len(d.SampleEdges) < maxSampleEdges {
				d.SampleEdges = append(d.SampleEdges, g.NodeAt(u).FilePath+" -> "+g.NodeAt(v).FilePath)
			}
		}
	}

	result := make([]Dependency, 0, len(deps))
	for key, d := range deps {
		shared := []string{}
		for f := range files[key.from] {
			if files[key.to][f] {
				shared = append(shared, f)
			}
		}
		sort.Strings(shared)
		d.SharedFiles = shared
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].From != result[j].From {
			return result[i].From < result[j].From
		}
		return result[i].To < result[j].To
	})
	return result
}

func splitFileHotspots(g *graph.Graph, part []int) []Hotspot {
	byFile := make(map[string]map[int]bool)
	for i := 0; i < g.NodeCount(); i++ {
		f := g.NodeAt(i).FilePath
		if byFile[f] == nil {
			byFile[f] = make(map[int]bool)
		}
		byFile[f][part[i]+1] = true
	}

	hotspots := make([]Hotspot, 0)
	for file, ps := range byFile {
		if len(ps) < 2 {
			continue
		}
		ids := make([]int, 0, len(ps))
		for p := range ps {
			ids = append(ids, p)
		}
		sort.Ints(ids)
		hotspots = append(hotspots, Hotspot{File: file, PartitionCount: len(ids), Partitions: ids})
	}
	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].PartitionCount != hotspots[j].PartitionCount {
			return hotspots[i].PartitionCount > hotspots[j].PartitionCount
		}
		return hotspots[i].File < hotspots[j].File
	})
	if len(hotspots) > maxHotspots {
		hotspots = hotspots[:maxHotspots]
	}
	return hotspots
}

func cochangeHotspots(pairs []CoChange, owners map[string]int) []CochangeHotspot {
	hotspots := make([]CochangeHotspot, 0)
	for _, c := range pairs {
		pa, okA := owners[c.FileA]
		pb, okB := owners[c.FileB]
		if !okA || !okB || pa == pb || c.Count <= 0 {
			continue
		}
		hotspots = append(hotspots, CochangeHotspot{
			FileA: c.FileA, FileB: c.FileB, Count: c.Count,
			PartitionA: pa + 1, PartitionB: pb + 1,
		})
	}
	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].Count != hotspots[j].Count {
			return hotspots[i].Count > hotspots[j].Count
		}
		if hotspots[i].FileA != hotspots[j].FileA {
			return hotspots[i].FileA < hotspots[j].FileA
		}
		return hotspots[i].FileB < hotspots[j].FileB
	})
	if len(hotspots) > maxHotspots {
		hotspots = hotspots[:maxHotspots]
	}
	return hotspots
}

func sharedInterfaces(g *graph.Graph, part []int) []SharedInterface {
	counts := make(map[int]int)
	for u := 0; u < g.NodeCount(); u++ {
		for _, v := range g.SuccessorIndexes(u) {
			if part[u] != part[v] {
				counts[u]++
				counts[v]++
			}
		}
	}

	result := make([]SharedInterface, 0, len(counts))
	for i, c := range counts {
		n := g.NodeAt(i)
		result = append(result, SharedInterface{ID: n.ID, Symbol: n.FilePath + "::" + n.Name, BoundaryEdges: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BoundaryEdges != result[j].BoundaryEdges {
			return result[i].BoundaryEdges > result[j].BoundaryEdges
		}
		return result[i].ID < result[j].ID
	})
	if len(result) > maxSharedInterfaces {
		result = result[:maxSharedInterfaces]
	}
	return result
}

func keySymbols(g *graph.Graph, members []int64, pagerank map[int64]float64) []KeySymbol {
	ranked := append([]int64(nil), members...)
	sort.SliceStable(ranked, func(i, j int) bool { return pagerank[ranked[i]] > pagerank[ranked[j]] })
	if len(ranked) > maxKeySymbols {
		ranked = ranked[:maxKeySymbols]
	}
	result := make([]KeySymbol, 0, len(ranked))
	for _, id := range ranked {
		n, _ := g.Node(id)
		result = append(result, KeySymbol{
			ID:       id,
			Name:     n.Name,
			Kind:     n.Kind,
			PageRank: round4(pagerank[id]),
			File:     n.FilePath,
		})
	}
	return result
}

func partitionLabel(files []string, p int) string {
	dirs := make(map[string]int)
	for _, f := range files {
		dirs[path.Dir(f)]++
	}
	top := topKeys(dirs, 1)
	if len(top) == 0 {
		return fmt.Sprintf("partition-%d", p+1)
	}
	if top[0] == "." {
		return fmt.Sprintf("root-%d", p+1)
	}
	return shortDirName(top[0])
}

var dirRoles = []struct{ dir, role string }{
	{"api", "API Layer"},
	{"routes", "API Layer"},
	{"handler", "API Layer"},
	{"controller", "Controller Layer"},
	{"view", "View/UI Layer"},
	{"component", "UI Component Layer"},
	{"model", "Data Model Layer"},
	{"schema", "Data Schema Layer"},
	{"db", "Database Layer"},
	{"database", "Database Layer"},
	{"storage", "Database Layer"},
	{"migration", "Migration Layer"},
	{"service", "Service Layer"},
	{"domain", "Domain Logic"},
	{"core", "Core Logic"},
	{"util", "Utility Layer"},
	{"helper", "Utility Layer"},
	{"lib", "Library Layer"},
	{"middleware", "Middleware Layer"},
	{"auth", "Auth Layer"},
	{"security", "Security Layer"},
	{"test", "Test Layer"},
	{"tests", "Test Layer"},
	{"config", "Configuration"},
	{"infra", "Infrastructure"},
	{"deploy", "Infrastructure"},
	{"cli", "CLI Layer"},
	{"cmd", "CLI Layer"},
	{"graph", "Graph/Analysis Layer"},
	{"index", "Indexing Layer"},
	{"search", "Search Layer"},
	{"output", "Output/Formatting Layer"},
}

var extensionLanguages = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "React/TypeScript",
	".jsx":   "React/JavaScript",
	".rs":    "Rust",
	".java":  "Java",
	".rb":    "Ruby",
	".php":   "PHP",
	".c":     "C",
	".cpp":   "C++",
	".cs":    "C#",
	".swift": "Swift",
	".kt":    "Kotlin",
	".scala": "Scala",
	".sql":   "SQL/Database",
	".vue":   "Vue",
}

// SuggestRole names a partition after a well-known directory in its files,
// falling back to the dominant language.
func SuggestRole(files []string) string {
	dirs := make(map[string]bool)
	langs := make(map[string]int)
	for _, f := range files {
		parts := strings.Split(f, "/")
		for _, d := range parts[:len(parts)-1] {
			dirs[strings.ToLower(d)] = true
		}
		if lang, ok := extensionLanguages[strings.ToLower(path.Ext(f))]; ok {
			langs[lang]++
		}
	}
	for _, r := range dirRoles {
		if dirs[r.dir] {
			return r.role
		}
	}
	if top := topKeys(langs, 1); len(top) > 0 {
		return top[0] + " Module"
	}
	return "General Module"
}

// isTestFile recognises test sources by common naming conventions.
func isTestFile(file string) bool {
	base := path.Base(file)
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."),
		strings.Contains("/"+file, "/tests/"),
		strings.Contains("/"+file, "/test/"):
		return true
	}
	return false
}

// testCoverage is the share of non-test members whose name is mirrored by a
// test symbol (name, test_name or TestName) in the same partition.
func testCoverage(g *graph.Graph, members []int64) float64 {
	testNames := make(map[string]bool)
	source := 0
	for _, id := range members {
		n, _ := g.Node(id)
		if isTestFile(n.FilePath) {
			testNames[strings.ToLower(n.Name)] = true
		} else {
			source++
		}
	}
	if source == 0 || len(testNames) == 0 {
		return 0
	}
	covered := 0
	for _, id := range members {
		n, _ := g.Node(id)
		if isTestFile(n.FilePath) {
			continue
		}
		name := strings.ToLower(n.Name)
		if testNames[name] || testNames["test_"+name] || testNames["test"+name] {
			covered++
		}
	}
	return float64(int(float64(covered)/float64(source)*100+0.5)) / 100
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
