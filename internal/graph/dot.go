package graph

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	dg "github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// WriteDOT renders the whole multi-version graph. Edge labels list the versions
// an edge is active in followed by its type, e.g. "V1,V2::branch". Parallel
// edges between the same instructions are folded into one labelled edge.
func (g *Graph) WriteDOT(w io.Writer) error {
	p := dg.New(instructionHash, dg.Directed())

	for _, l := range g.linesInOrder() {
		for _, id := range l.instructions {
			inst := g.instructions[id]
			if err := p.AddVertex(inst, dg.VertexAttribute("label", g.multiVersionLabel(inst))); err != nil {
				return fmt.Errorf("failed to add instruction %d: %w", id, err)
			}
		}
	}

	type pair struct{ from, to ID }
	var order []pair
	labels := make(map[pair][]string)
	colors := make(map[pair]string)
	for _, e := range g.Edges() {
		k := pair{e.From, e.To}
		if _, ok := labels[k]; !ok {
			order = append(order, k)
			colors[k] = edgeColor(e.Type)
		}
		labels[k] = append(labels[k], VersionLabel(e.versions)+"::"+e.Type.String())
	}

	for _, k := range order {
		err := p.AddEdge(k.from, k.to,
			dg.EdgeAttribute("label", strings.Join(labels[k], " | ")),
			dg.EdgeAttribute("color", colors[k]),
		)
		if err != nil {
			return fmt.Errorf("failed to add edge %d -> %d: %w", k.from, k.to, err)
		}
	}

	return draw.DOT(p, w, draw.GraphAttribute("label", fmt.Sprintf("MVICFG V%d", g.version)))
}

// WriteVersionDOT renders the single-version projection for v.
func (g *Graph) WriteVersionDOT(w io.Writer, v Version) error {
	p, err := g.Project(v)
	if err != nil {
		return err
	}
	return draw.DOT(p, w, draw.GraphAttribute("label", fmt.Sprintf("ICFG V%d", v)))
}

// VersionLabel formats a version set as "V1,V2,V3" in ascending order.
func VersionLabel(versions []Version) string {
	sorted := slices.Clone(versions)
	slices.Sort(sorted)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = "V" + strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ",")
}

func (g *Graph) multiVersionLabel(inst *Instruction) string {
	l := g.lines[inst.Line]
	if l.Virtual() {
		return g.instructionLabel(inst, 0)
	}

	versions := make([]Version, 0, len(l.numbers))
	for v := range l.numbers {
		versions = append(versions, v)
	}
	slices.Sort(versions)

	var nums []string
	for _, v := range versions {
		if n := l.numbers[v]; n != NoLine {
			nums = append(nums, fmt.Sprintf("V%d:%d", v, n))
		}
	}
	fn := g.functions[l.Function]
	return fmt.Sprintf("%s [%s] %s", fn.Name, strings.Join(nums, ","), inst.Label)
}
