package graph

// Reachable walks successors breadth-first from the start ids and returns
// every node reached mapped to its hop distance. Start nodes are not part of
// the result unless reached again through a cycle. maxDepth <= 0 means
// unlimited. Unknown start ids are ignored.
func (g *Graph) Reachable(start []int64, maxDepth int) map[int64]int {
	result := make(map[int64]int)
	if len(g.nodes) == 0 {
		return result
	}

	type item struct {
		idx   int
		depth int
	}

	visited := make([]bool, len(g.nodes))
	queue := make([]item, 0, len(start))
	for _, id := range start {
		i, ok := g.index[id]
		if !ok || visited[i] {
			continue
		}
		visited[i] = true
		queue = append(queue, item{idx: i})
	}

	isStart := make(map[int]bool, len(queue))
	for _, it := range queue {
		isStart[it.idx] = true
	}

	for head := 0; head < len(queue); head++ {
		current := queue[head]
		if maxDepth > 0 && current.depth >= maxDepth {
			continue
		}
		for _, next := range g.succ[current.idx] {
			if isStart[next] {
				if _, seen := result[g.nodes[next].ID]; !seen {
					result[g.nodes[next].ID] = current.depth + 1
				}
				continue
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			result[g.nodes[next].ID] = current.depth + 1
			queue = append(queue, item{idx: next, depth: current.depth + 1})
		}
	}

	return result
}

// BlastRadius returns the symbols that transitively depend on the given
// ids, mapped to their distance. It is reverse reachability.
func (g *Graph) BlastRadius(ids []int64, maxDepth int) map[int64]int {
	return g.Reverse().Reachable(ids, maxDepth)
}

// ReachesAll reports whether every target is reachable from source.
func (g *Graph) ReachesAll(source int64, targets []int64) bool {
	reached := g.Reachable([]int64{source}, 0)
	for _, t := range targets {
		if t == source {
			continue
		}
		if _, ok := reached[t]; !ok {
			return false
		}
	}
	return true
}
