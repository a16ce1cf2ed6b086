package graph

import (
	"strings"
)

// FindByName resolves a user-supplied symbol name.
//
// Exact matches on name or qualified name win. Otherwise nodes whose
// qualified name ends with the query (case-insensitive, on a separator
// boundary) are returned. Results are in ascending id order.
func (g *Graph) FindByName(query string) []Node {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	if idx, ok := g.byName[query]; ok {
		return g.nodesAt(idx)
	}

	lower := strings.ToLower(query)
	var matches []int
	for i, n := range g.nodes {
		qn := strings.ToLower(n.QualifiedName)
		name := strings.ToLower(n.Name)
		if name == lower || hasSuffixOnBoundary(qn, lower) {
			matches = append(matches, i)
		}
	}
	return g.nodesAt(matches)
}

func (g *Graph) nodesAt(idx []int) []Node {
	if len(idx) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(idx))
	nodes := make([]Node, 0, len(idx))
	for _, i := range idx {
		if seen[i] {
			continue
		}
		seen[i] = true
		nodes = append(nodes, g.nodes[i])
	}
	return nodes
}

func hasSuffixOnBoundary(s, suffix string) bool {
	if !strings.HasSuffix(s, suffix) {
		return false
	}
	if len(s) == len(suffix) {
		return true
	}
	switch s[len(s)-len(suffix)-1] {
	case '.', ':', '/', '#':
		return true
	}
	return false
}
