package analysis

import (
	"math"
	"sort"

	"github.com/Benny93/archgraph/internal/graph"
)

// File debt thresholds and remediation costs in minutes.
const (
	godFileDegree = 40

	remediationComplexity = 30.0
	remediationCycle      = 120.0
	remediationGodSplit   = 240.0
	remediationDeadExport = 10.0
)

// FileDebt is the hotspot-weighted debt profile of one file.
type FileDebt struct {
	Path               string  `json:"path"`
	Score              float64 `json:"debt_score"`
	HealthPenalty      float64 `json:"health_penalty"`
	HotspotFactor      float64 `json:"hotspot_factor"`
	RemediationMinutes float64 `json:"remediation_minutes"`
	Complexity         float64 `json:"complexity_raw"`
	ComplexityNorm     float64 `json:"complexity_norm"`
	Churn              int     `json:"churn_raw"`
	ChurnPercentile    float64 `json:"churn_pctile"`
	InCycle            bool    `json:"in_cycle"`
	God                bool    `json:"god_component"`
	DeadExports        int     `json:"dead_exports"`
	Exported           int     `json:"total_exported"`
	DeadRatio          float64 `json:"dead_ratio"`
	AvgDegree          float64 `json:"coupling_avg_degree"`
	MaxDegree          int     `json:"coupling_max_degree"`
}

// FileDebtSummary aggregates a file debt ranking.
type FileDebtSummary struct {
	Files              int     `json:"total_files"`
	TotalDebt          float64 `json:"total_debt"`
	MeanDebt           float64 `json:"mean_debt"`
	MedianDebt         float64 `json:"median_debt"`
	RemediationMinutes float64 `json:"total_remediation_minutes"`
	CycleFiles         int     `json:"files_with_cycles"`
	GodFiles           int     `json:"files_with_god_components"`
	HotspotFiles       int     `json:"hotspot_files"`
}

// FileDebtReport is the output of FileDebtRanking.
type FileDebtReport struct {
	Summary FileDebtSummary `json:"summary"`
	Files   []FileDebt      `json:"files"`
}

// FileDebtInputs carries the per-symbol and per-file signals of a ranking.
type FileDebtInputs struct {
	// Complexity maps symbol id to cyclomatic complexity.
	Complexity map[int64]float64

	// Churn maps file path to lines changed.
	Churn map[string]int

	// Cycles are the SCCs whose member files count as cyclic.
	Cycles [][]int64
}

// FileDebtRanking scores every file of g as health penalty times hotspot
// factor. The health penalty weighs normalized complexity (0.4), cycle
// membership (0.3), a total symbol degree above 40 (0.2) and the share of
// exported declarations nothing depends on (0.1). The hotspot factor is
// max(1, 3 × churn percentile). Files are sorted by score descending, then
// path; the summary covers every file even when limit truncates Files.
func FileDebtRanking(g *graph.Graph, in FileDebtInputs, limit int) FileDebtReport {
	files := g.Files()
	report := FileDebtReport{Files: make([]FileDebt, 0, len(files))}
	if len(files) == 0 {
		return report
	}

	cycleFiles := CycleFiles(g, in.Cycles)
	churns := make([]int, 0, len(files))
	for _, f := range files {
		churns = append(churns, in.Churn[f])
	}
	sort.Ints(churns)

	entries := make([]FileDebt, 0, len(files))
	maxComplexity := 0.0
	for _, f := range files {
		d := FileDebt{Path: f, Churn: in.Churn[f], InCycle: cycleFiles[f] > 0}
		totalDegree := 0
		ids := g.NodesInFile(f)
		for _, id := range ids {
			i, _ := g.IndexOf(id)
			n := g.NodeAt(i)
			d.Complexity += in.Complexity[id]
			fanIn := len(g.PredecessorIndexes(i))
			degree := fanIn + len(g.SuccessorIndexes(i))
			totalDegree += degree
			d.MaxDegree = max(d.MaxDegree, degree)
			if n.IsExported && declaresAPI(n.Kind) {
				d.Exported++
				if fanIn == 0 {
					d.DeadExports++
				}
			}
		}
		if len(ids) > 0 {
			d.AvgDegree = float64(totalDegree) / float64(len(ids))
		}
		d.God = totalDegree > godFileDegree
		maxComplexity = math.Max(maxComplexity, d.Complexity)
		entries = append(entries, d)
	}
	if maxComplexity == 0 {
		maxComplexity = 1
	}

	for i := range entries {
		d := &entries[i]
		d.ComplexityNorm = d.Complexity / maxComplexity
		d.ChurnPercentile = percentileRank(d.Churn, churns)
		if d.Exported > 0 {
			d.DeadRatio = float64(d.DeadExports) / float64(d.Exported)
		}
		cycle, god := flag(d.InCycle), flag(d.God)

		d.RemediationMinutes = math.Round(d.ComplexityNorm*remediationComplexity +
			cycle*remediationCycle + god*remediationGodSplit + float64(d.DeadExports)*remediationDeadExport)
		health := 0.4*d.ComplexityNorm + 0.3*cycle + 0.2*god + 0.1*d.DeadRatio
		hotspot := math.Max(1, 3*d.ChurnPercentile)
		d.Score = round3(health * hotspot)
		d.HealthPenalty = round3(health)
		d.HotspotFactor = math.Round(hotspot*100) / 100
		d.ComplexityNorm = round3(d.ComplexityNorm)
		d.ChurnPercentile = round3(d.ChurnPercentile)
		d.DeadRatio = round3(d.DeadRatio)
		d.AvgDegree = math.Round(d.AvgDegree*100) / 100
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Path < entries[j].Path
	})

	report.Summary = summarizeFileDebt(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	report.Files = entries
	return report
}

func summarizeFileDebt(entries []FileDebt) FileDebtSummary {
	s := FileDebtSummary{Files: len(entries)}
	scores := make([]float64, len(entries))
	for i, d := range entries {
		scores[i] = d.Score
		s.TotalDebt += d.Score
		s.RemediationMinutes += d.RemediationMinutes
		if d.InCycle {
			s.CycleFiles++
		}
		if d.God {
			s.GodFiles++
		}
		if d.HotspotFactor > 1 {
			s.HotspotFiles++
		}
	}
	sort.Float64s(scores)
	s.MeanDebt = round3(s.TotalDebt / float64(len(entries)))
	s.MedianDebt = scores[len(scores)/2]
	s.TotalDebt = round1(s.TotalDebt)
	return s
}

// declaresAPI reports whether an exported symbol of kind k counts toward
// dead exports.
func declaresAPI(k graph.SymbolKind) bool {
	switch k {
	case graph.KindFunction, graph.KindClass, graph.KindMethod, graph.KindInterface, graph.KindStruct:
		return true
	}
	return false
}

// percentileRank is the share of sorted values strictly below v.
func percentileRank(v int, sorted []int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	below := sort.SearchInts(sorted, v)
	return float64(below) / float64(len(sorted))
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
