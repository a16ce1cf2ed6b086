package engine

import (
	"context"
	"fmt"
	"sort"
)

// ImpactRequest selects the changed code. Symbol and Files may be combined.
type ImpactRequest struct {
	// Symbol is a name or qualified name resolved with FindByName.
	Symbol string

	// Files are repository-relative paths; every symbol in them is a target.
	Files []string

	// Depth limits the traversal. <= 0 is unlimited.
	Depth int
}

// Impacted is a symbol affected by a change.
type Impacted struct {
	SymbolRef
	Depth int `json:"depth"`
}

// ImpactReport is the blast radius of a change.
type ImpactReport struct {
	Targets       []SymbolRef `json:"targets"`
	Affected      []Impacted  `json:"affected"`
	AffectedFiles []string    `json:"affected_files"`
	ByDepth       map[int]int `json:"by_depth"`
	UnknownFiles  []string    `json:"unknown_files,omitempty"`
}

// Impact returns every symbol that transitively depends on the targets,
// sorted by depth, then id. A symbol query without matches returns
// ErrSymbolNotFound; files without symbols are listed as unknown.
func (e *Engine) Impact(ctx context.Context, req ImpactRequest) (*ImpactReport, error) {
	var report *ImpactReport
	err := e.run(ctx, "impact", func(ctx context.Context, st *State) error {
		g := st.Graph
		report = &ImpactReport{
			Targets:       []SymbolRef{},
			Affected:      []Impacted{},
			AffectedFiles: []string{},
			ByDepth:       map[int]int{},
		}

		var targets []int64
		if req.Symbol != "" {
			matches := g.FindByName(req.Symbol)
			if len(matches) == 0 {
				return fmt.Errorf("%w: %q", ErrSymbolNotFound, req.Symbol)
			}
			for _, n := range matches {
				targets = append(targets, n.ID)
			}
		}
		for _, f := range req.Files {
			ids := g.NodesInFile(f)
			if len(ids) == 0 {
				report.UnknownFiles = append(report.UnknownFiles, f)
				continue
			}
			targets = append(targets, ids...)
		}
		targets = dedupe(targets)
		report.Targets = refs(g, targets)

		isTarget := make(map[int64]bool, len(targets))
		for _, id := range targets {
			isTarget[id] = true
		}
		for id, depth := range g.BlastRadius(targets, req.Depth) {
			if isTarget[id] {
				continue
			}
			n, _ := g.Node(id)
			report.Affected = append(report.Affected, Impacted{SymbolRef: refOf(n), Depth: depth})
			report.ByDepth[depth]++
		}
		sort.Slice(report.Affected, func(i, j int) bool {
			a, b := report.Affected[i], report.Affected[j]
			if a.Depth != b.Depth {
				return a.Depth < b.Depth
			}
			return a.ID < b.ID
		})
		report.AffectedFiles = filesOf(g, affectedIDs(report.Affected))
		return nil
	})
	return report, err
}

func affectedIDs(items []Impacted) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve returns the symbols matching a name query.
func (e *Engine) Resolve(ctx context.Context, query string) ([]SymbolRef, error) {
	st, err := e.current(ctx)
	if err != nil {
		return nil, err
	}
	matches := st.Graph.FindByName(query)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, query)
	}
	result := make([]SymbolRef, len(matches))
	for i, n := range matches {
		result[i] = refOf(n)
	}
	return result, nil
}

