package merge

import (
	"github.com/mvp-joe/mvicfg/internal/graph"
)

// PathReport is the result of a path count over a changed region.
type PathReport struct {
	// Lines are the changed lines the frontier was built from.
	Lines []graph.ID

	// Frontier holds their instructions in line order.
	Frontier []graph.ID

	// Paths is the number of distinct paths through the region.
	Paths int

	// Unreachable holds frontier instructions without incoming edges; no
	// walk starts from them.
	Unreachable []graph.ID
}

// CountPaths counts the distinct paths through the instructions of lines.
// Walks start at each unvisited frontier instruction with an incoming edge and
// follow outgoing edges active in v, or every edge when v is zero. A path ends
// when it leaves the region, which counts one path, or when it reaches an
// instruction already walked, which also counts one and stops there.
func CountPaths(g *graph.Graph, lines []graph.ID, v graph.Version) *PathReport {
	report := &PathReport{Lines: lines}
	region := make(map[graph.ID]bool)
	for _, id := range lines {
		l := g.Line(id)
		if l == nil {
			continue
		}
		for _, inst := range l.Instructions() {
			if !region[inst] {
				region[inst] = true
				report.Frontier = append(report.Frontier, inst)
			}
		}
	}

	active := func(e *graph.Edge) bool {
		return v == 0 || e.ActiveIn(v)
	}

	visited := make(map[graph.ID]bool)
	var walk func(id graph.ID) int
	walk = func(id graph.ID) int {
		if !region[id] || visited[id] {
			return 1
		}
		visited[id] = true
		paths := 0
		for _, e := range g.Outgoing(id) {
			if active(e) {
				paths += walk(e.To)
			}
		}
		return paths
	}

	for _, id := range report.Frontier {
		if visited[id] {
			continue
		}
		entered := false
		for _, e := range g.Incoming(id) {
			if active(e) {
				entered = true
				break
			}
		}
		if !entered {
			report.Unreachable = append(report.Unreachable, id)
			continue
		}
		report.Paths += walk(id)
	}
	return report
}

// AddedPaths counts the paths introduced between versions from and to: the
// region is every line absent in from and present in to, walked over the
// edges of to.
func AddedPaths(g *graph.Graph, from, to graph.Version) *PathReport {
	return CountPaths(g, changedLines(g, from, to), to)
}

// DeletedPaths counts the paths removed between versions from and to: the
// region is every line present in from and absent in to, walked over the
// edges of from.
func DeletedPaths(g *graph.Graph, from, to graph.Version) *PathReport {
	return CountPaths(g, changedLines(g, to, from), from)
}

// changedLines returns the lines numbered in present but not in absent, in program order.
func changedLines(g *graph.Graph, absent, present graph.Version) []graph.ID {
	var out []graph.ID
	for _, fn := range g.Functions() {
		for _, id := range fn.Lines() {
			l := g.Line(id)
			if l.Number(absent) == graph.NoLine && l.Number(present) != graph.NoLine {
				out = append(out, id)
			}
		}
	}
	return out
}
