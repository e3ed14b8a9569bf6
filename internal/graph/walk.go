package graph

import "iter"

// WalkEdges yields every edge reachable from the function's entry line,
// depth-first along outgoing edges, each edge once. Edges of every version are
// followed; callers filter with Edge.ActiveIn when they need one version.
func (g *Graph) WalkEdges(fn *Function) iter.Seq[*Edge] {
	return func(yield func(*Edge) bool) {
		entry := g.lines[fn.Entry]
		if entry == nil {
			return
		}

		visited := make(map[ID]bool)
		var stack []*Edge
		push := func(inst ID) {
			out := g.Outgoing(inst)
			// Reverse so the first outgoing edge is visited first
			for i := len(out) - 1; i >= 0; i-- {
				if !visited[out[i].ID] {
					stack = append(stack, out[i])
				}
			}
		}
		for _, inst := range entry.instructions {
			push(inst)
		}

		for len(stack) > 0 {
			e := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[e.ID] {
				continue
			}
			visited[e.ID] = true
			if !yield(e) {
				return
			}
			push(e.To)
		}
	}
}
