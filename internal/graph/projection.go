package graph

import (
	"errors"
	"fmt"

	dg "github.com/dominikbraun/graph"
)

// Projection is an ordinary directed graph over instruction IDs.
type Projection = dg.Graph[ID, *Instruction]

func instructionHash(i *Instruction) ID { return i.ID }

// Project returns the single-version view of the graph: every instruction whose
// line exists in v, and every edge active in v between two such instructions.
func (g *Graph) Project(v Version) (Projection, error) {
	p := dg.New(instructionHash, dg.Directed())
	active := g.ActiveLines(v)

	for _, l := range g.linesInOrder() {
		if !active[l.ID] {
			continue
		}
		for _, id := range l.instructions {
			inst := g.instructions[id]
			if err := p.AddVertex(inst, dg.VertexAttribute("label", g.instructionLabel(inst, v))); err != nil {
				return nil, fmt.Errorf("failed to add instruction %d: %w", id, err)
			}
		}
	}

	for _, e := range g.Edges() {
		if !e.ActiveIn(v) || !active[g.instructions[e.From].Line] || !active[g.instructions[e.To].Line] {
			continue
		}
		err := p.AddEdge(e.From, e.To, dg.EdgeAttribute("label", e.Type.String()), dg.EdgeAttribute("color", edgeColor(e.Type)))
		if err != nil && !errors.Is(err, dg.ErrEdgeAlreadyExists) {
			return nil, fmt.Errorf("failed to add edge %d: %w", e.ID, err)
		}
	}

	return p, nil
}

// Reachable returns the instructions reachable from fn's entry in version v, in DFS order.
func (g *Graph) Reachable(fn *Function, v Version) ([]ID, error) {
	entry := g.lines[fn.Entry]
	if entry == nil || entry.Number(v) == NoLine {
		return nil, nil
	}

	p, err := g.Project(v)
	if err != nil {
		return nil, err
	}

	var out []ID
	err = dg.DFS(p, entry.First(), func(id ID) bool {
		out = append(out, id)
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk from %s: %w", fn.Name, err)
	}
	return out, nil
}

// linesInOrder returns every line grouped by function in program order.
func (g *Graph) linesInOrder() []*Line {
	out := make([]*Line, 0, len(g.lines))
	for _, fnID := range g.functionOrder {
		for _, id := range g.functions[fnID].lines {
			out = append(out, g.lines[id])
		}
	}
	return out
}

func (g *Graph) instructionLabel(inst *Instruction, v Version) string {
	l := g.lines[inst.Line]
	fn := g.functions[l.Function]
	switch l.Kind {
	case LineEntry:
		if fn.External {
			return inst.Label
		}
		return "Entry::" + fn.Name
	case LineExit:
		return "Exit::" + fn.Name
	}
	return fmt.Sprintf("%s:%d %s", fn.Name, l.Number(v), inst.Label)
}

func edgeColor(t EdgeType) string {
	switch t {
	case EdgeBranch:
		return "blue"
	case EdgeCall:
		return "red"
	case EdgeExternalCall:
		return "orange"
	case EdgeVirtual:
		return "gray"
	case EdgeAdded:
		return "darkgreen"
	case EdgeDeleted:
		return "purple"
	default:
		return "black"
	}
}
